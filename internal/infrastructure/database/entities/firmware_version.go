package entities

import "time"

// FirmwareVersion tracks one retained firmware build per (model, version).
// The object-store artifacts under its key prefix are a derived copy; the
// row is the source of truth.
type FirmwareVersion struct {
	ID         int64  `gorm:"primaryKey"`
	ModelCode  string `gorm:"type:varchar(64);not null;uniqueIndex:uniq_model_version"`
	Version    string `gorm:"type:varchar(64);not null;uniqueIndex:uniq_model_version"`
	UploadedAt time.Time
	CreatedAt  time.Time
}

func (FirmwareVersion) TableName() string {
	return "firmware_versions"
}
