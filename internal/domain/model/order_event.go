package model

import "time"

type OrderEventType string

const (
	EventOrderCreated       OrderEventType = "order.created"
	EventOrderStatusChanged OrderEventType = "order.status_changed"
)

// 通知サービス（メール送信など）に渡すイベント
type OrderEvent struct {
	ID         string         `json:"id"`
	Type       OrderEventType `json:"type"`
	OrderID    int64          `json:"order_id"`
	UserID     int64          `json:"user_id"`
	Status     OrderStatus    `json:"status"`
	PrevStatus OrderStatus    `json:"prev_status,omitempty"`
	Total      string         `json:"total,omitempty"`
	CourierID  *int64         `json:"courier_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
