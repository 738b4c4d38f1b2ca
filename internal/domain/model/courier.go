package model

import "time"

type VehicleType string

const (
	VehicleBike       VehicleType = "bike"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleCar        VehicleType = "car"
	VehicleVan        VehicleType = "van"
)

// 配達員
type Courier struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string      `gorm:"type:varchar(255);not null" json:"name"`
	VehicleType VehicleType `gorm:"type:varchar(20);not null" json:"vehicle_type"`
	IsActive    bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time   `gorm:"not null;autoCreateTime" json:"created_at"`
}

// 配達員の位置情報（時系列、追記のみ）
type CourierPing struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CourierID int64     `gorm:"not null;index:ix_courier_pings_courier_time,priority:1" json:"courier_id"`
	Latitude  float64   `gorm:"not null" json:"latitude"`
	Longitude float64   `gorm:"not null" json:"longitude"`
	Speed     *float64  `json:"speed,omitempty"`
	Label     string    `gorm:"type:varchar(255)" json:"label,omitempty"`
	CreatedAt time.Time `gorm:"not null;index:ix_courier_pings_courier_time,priority:2" json:"created_at"`
}
