package crashdump

import (
	"context"
	"errors"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "fleethub/internal/domain/crashdump"
	"fleethub/internal/infrastructure/database/entities"
	"fleethub/internal/utils/platformerrors"
)

// Repository handles crash dump metadata persistence. It also writes the
// terminal analysis outcomes for the analysis worker.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InTransaction runs fn against a transaction-scoped repository.
func (r *Repository) InTransaction(ctx context.Context, fn func(tx domain.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// Create inserts the dump row and copies the assigned id back.
func (r *Repository) Create(ctx context.Context, d *domain.Dump) error {
	entity := entities.CrashDump{
		DeviceID:        d.DeviceID,
		Chip:            d.Chip,
		FirmwareVersion: d.FirmwareVersion,
		SizeBytes:       d.SizeBytes,
		Status:          string(d.Status),
		LegacyFilename:  d.LegacyFilename,
		UploadedAt:      d.UploadedAt,
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&entity).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create crash dump",
			err,
			"1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d",
		)
	}
	d.ID = entity.ID
	return nil
}

// Get loads a dump scoped to its owning device. A row that exists under
// another device is not found from this device's point of view.
func (r *Repository) Get(ctx context.Context, deviceID, dumpID int64) (*domain.Dump, error) {
	var entity entities.CrashDump
	err := r.db.WithContext(ctx).
		Where("id = ? AND device_id = ?", dumpID, deviceID).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				"crash dump not found",
				domain.ErrNotFound,
				"2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d6e",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to load crash dump",
			err,
			"3c4d5e6f-7a8b-4c9d-8e0f-2a3b4c5d6e7f",
		)
	}
	dump := mapEntity(entity)
	return &dump, nil
}

// ListByDevice returns the device's dumps ordered newest first.
func (r *Repository) ListByDevice(ctx context.Context, deviceID int64) ([]domain.Dump, error) {
	var rows []entities.CrashDump
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("uploaded_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list crash dumps",
			err,
			"4d5e6f7a-8b9c-4d0e-9f1a-3b4c5d6e7f8a",
		)
	}
	dumps := make([]domain.Dump, 0, len(rows))
	for _, row := range rows {
		dumps = append(dumps, mapEntity(row))
	}
	return dumps, nil
}

// ListExcess returns the rows beyond the newest keep entries.
func (r *Repository) ListExcess(ctx context.Context, deviceID int64, keep int) ([]domain.Dump, error) {
	if keep < 0 {
		keep = 0
	}
	// An explicit limit keeps the generated SQL valid on dialects that
	// reject a bare OFFSET.
	var rows []entities.CrashDump
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("uploaded_at DESC, id DESC").
		Limit(math.MaxInt32).
		Offset(keep).
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list excess crash dumps",
			err,
			"5e6f7a8b-9c0d-4e1f-8a2b-4c5d6e7f8a9b",
		)
	}
	dumps := make([]domain.Dump, 0, len(rows))
	for _, row := range rows {
		dumps = append(dumps, mapEntity(row))
	}
	return dumps, nil
}

func (r *Repository) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Delete(&entities.CrashDump{}, ids).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to delete crash dumps",
			err,
			"6f7a8b9c-0d1e-4f2a-9b3c-5d6e7f8a9b0c",
		)
	}
	return nil
}

// MarkAnalyzed records a successful analysis. The status guard makes the
// write a no-op when the dump was deleted or already reached a terminal
// state, so stale workers can never overwrite an outcome.
func (r *Repository) MarkAnalyzed(ctx context.Context, dumpID int64, output string) error {
	return r.markTerminal(ctx, dumpID, domain.StatusAnalyzed, output, "7a8b9c0d-1e2f-4a3b-8c4d-6e7f8a9b0c1d")
}

// MarkFailed records a failed analysis with the failure reason as output.
func (r *Repository) MarkFailed(ctx context.Context, dumpID int64, message string) error {
	return r.markTerminal(ctx, dumpID, domain.StatusFailed, message, "8b9c0d1e-2f3a-4b4c-9d5e-7f8a9b0c1d2e")
}

func (r *Repository) markTerminal(ctx context.Context, dumpID int64, status domain.Status, output, errUUID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entities.CrashDump{}).
			Where("id = ? AND status = ?", dumpID, string(domain.StatusPending)).
			Updates(map[string]interface{}{
				"status":          string(status),
				"analysis_output": output,
				"analyzed_at":     time.Now().UTC(),
			})
		if res.Error != nil {
			return platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeDatabaseError,
				"failed to record analysis outcome",
				res.Error,
				errUUID,
			)
		}
		if res.RowsAffected == 0 {
			return platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				"crash dump missing or no longer pending",
				domain.ErrNotFound,
				"9c0d1e2f-3a4b-4c5d-8e6f-8a9b0c1d2e3f",
			)
		}
		return nil
	})
}

// FindByLegacyFilename locates a pre-cutover dump row by its original
// on-disk filename. Used only by the storage migration.
func (r *Repository) FindByLegacyFilename(ctx context.Context, deviceID int64, filename string) (*domain.Dump, error) {
	var entity entities.CrashDump
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND legacy_filename = ?", deviceID, filename).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				"crash dump not found",
				domain.ErrNotFound,
				"0d1e2f3a-4b5c-4d6e-9f7a-9b0c1d2e3f4a",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to load crash dump by legacy filename",
			err,
			"1e2f3a4b-5c6d-4e7f-8a8b-0c1d2e3f4a5b",
		)
	}
	dump := mapEntity(entity)
	return &dump, nil
}

// ClearLegacyFilename marks a dump as migrated to the object store.
func (r *Repository) ClearLegacyFilename(ctx context.Context, dumpID int64) error {
	err := r.db.WithContext(ctx).
		Model(&entities.CrashDump{}).
		Where("id = ?", dumpID).
		Update("legacy_filename", nil).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to clear legacy filename",
			err,
			"2f3a4b5c-6d7e-4f8a-9b9c-1d2e3f4a5b6c",
		)
	}
	return nil
}

func mapEntity(entity entities.CrashDump) domain.Dump {
	return domain.Dump{
		ID:              entity.ID,
		DeviceID:        entity.DeviceID,
		Chip:            entity.Chip,
		FirmwareVersion: entity.FirmwareVersion,
		SizeBytes:       entity.SizeBytes,
		Status:          domain.Status(entity.Status),
		AnalysisOutput:  entity.AnalysisOutput,
		LegacyFilename:  entity.LegacyFilename,
		UploadedAt:      entity.UploadedAt,
		AnalyzedAt:      entity.AnalyzedAt,
	}
}
