package entities

import "time"

// CrashDump is the metadata row for one recorded device crash dump. The
// object key is derived from the row id, never stored.
type CrashDump struct {
	ID              int64  `gorm:"primaryKey"`
	DeviceID        int64  `gorm:"not null;index"`
	Device          Device `gorm:"constraint:OnDelete:CASCADE"`
	Chip            string `gorm:"type:varchar(32)"`
	FirmwareVersion string `gorm:"type:varchar(64);index:idx_dump_fw_status"`
	SizeBytes       int64  `gorm:"not null"`
	Status          string `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_dump_fw_status"`
	AnalysisOutput  *string
	// LegacyFilename is only populated for rows created before the object
	// store cutover; the migration tool clears it. Dropped in a later,
	// standalone schema change once every environment has migrated.
	LegacyFilename *string `gorm:"type:varchar(255)"`
	UploadedAt     time.Time
	AnalyzedAt     *time.Time
}

func (CrashDump) TableName() string {
	return "crash_dumps"
}
