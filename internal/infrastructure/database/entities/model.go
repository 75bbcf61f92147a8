package entities

import "time"

// Model represents a hardware model in the device registry.
type Model struct {
	ID                     int64  `gorm:"primaryKey"`
	Code                   string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Name                   string `gorm:"type:varchar(128)"`
	CurrentFirmwareVersion string `gorm:"type:varchar(64)"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (Model) TableName() string {
	return "models"
}
