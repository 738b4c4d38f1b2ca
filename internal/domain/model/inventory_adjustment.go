package model

import "time"

// 管理者による在庫調整の理由。注文による減算はここに残さない。
type AdjustmentReason string

const (
	AdjustmentRestock    AdjustmentReason = "restock"
	AdjustmentDamage     AdjustmentReason = "damage"
	AdjustmentCorrection AdjustmentReason = "correction"
	AdjustmentReturn     AdjustmentReason = "return"
	AdjustmentOther      AdjustmentReason = "other"
)

func (r AdjustmentReason) Valid() bool {
	switch r {
	case AdjustmentRestock, AdjustmentDamage, AdjustmentCorrection, AdjustmentReturn, AdjustmentOther:
		return true
	}
	return false
}

//在庫調整の履歴

type InventoryAdjustment struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID   int64            `gorm:"not null;index" json:"product_id"`
	AdminUserID int64            `gorm:"not null;index" json:"admin_user_id"`
	Delta       int64            `gorm:"not null" json:"delta"`
	StockAfter  int64            `gorm:"not null" json:"stock_after"`
	Reason      AdjustmentReason `gorm:"type:varchar(20);not null" json:"reason"`
	Note        string           `gorm:"type:varchar(255)" json:"note"`
	CreatedAt   time.Time        `gorm:"not null;autoCreateTime" json:"created_at"`
}
