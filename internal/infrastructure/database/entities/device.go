package entities

import "time"

// Device represents a registered fleet device.
type Device struct {
	ID        int64  `gorm:"primaryKey"`
	DeviceKey string `gorm:"type:varchar(64);uniqueIndex;not null"`
	ModelID   int64  `gorm:"not null;index"`
	Model     Model  `gorm:"constraint:OnDelete:CASCADE"`
	Chip      string `gorm:"type:varchar(32)"`
	Config    string `gorm:"type:jsonb;default:'{}'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Device) TableName() string {
	return "devices"
}
