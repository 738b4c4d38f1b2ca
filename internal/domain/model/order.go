package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// 受け取り方法
type DeliveryMethod string

const (
	DeliveryPickup DeliveryMethod = "pickup"
	DeliveryHome   DeliveryMethod = "home"
)

// 支払い方法（記録のみ。決済処理はしない）
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

// 注文。作成後に変わるのは status と courier_id だけ。
// total = subtotal - discount + shipping_fee
type Order struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64           `gorm:"not null;index" json:"user_id"`
	Status         OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	Subtotal       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Discount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount"`
	ShippingFee    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shipping_fee"`
	Total          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	PointsUsed     int64           `gorm:"not null;default:0" json:"points_used"`
	PointsEarned   int64           `gorm:"not null;default:0" json:"points_earned"`
	BonusPoints    int64           `gorm:"not null;default:0" json:"bonus_points"`
	PaymentMethod  PaymentMethod   `gorm:"type:varchar(30);not null;index" json:"payment_method"`
	DeliveryMethod DeliveryMethod  `gorm:"type:varchar(20);not null" json:"delivery_method"`
	PostalCode     string          `gorm:"type:varchar(20)" json:"postal_code,omitempty"`
	ZoneLabel      string          `gorm:"type:varchar(50)" json:"zone_label,omitempty"`
	CourierID      *int64          `gorm:"index" json:"courier_id"`
	CreatedAt      time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
