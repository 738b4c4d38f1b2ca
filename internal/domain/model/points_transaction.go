package model

import "time"

type PointsKind string

const (
	PointsEarned  PointsKind = "earned"
	PointsUsed    PointsKind = "used"
	PointsExpired PointsKind = "expired"
	PointsBonus   PointsKind = "bonus"
)

// 残高を減らす種類か
func (k PointsKind) IsDebit() bool {
	return k == PointsUsed || k == PointsExpired
}

func (k PointsKind) Valid() bool {
	switch k {
	case PointsEarned, PointsUsed, PointsExpired, PointsBonus:
		return true
	}
	return false
}

// ポイント台帳（追記のみ）。
// 残高 = Σearned + Σbonus − Σused − Σexpired。残高そのものは保存しない。
type PointsTransaction struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"not null;index" json:"user_id"`
	Kind      PointsKind `gorm:"type:varchar(20);not null" json:"kind"`
	Amount    int64      `gorm:"not null" json:"amount"`
	Reason    string     `gorm:"type:varchar(255);not null" json:"reason"`
	OrderID   *int64     `gorm:"index" json:"order_id,omitempty"`
	CreatedAt time.Time  `gorm:"not null;index" json:"created_at"`
}
