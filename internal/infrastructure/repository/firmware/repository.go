package firmware

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "fleethub/internal/domain/firmware"
	"fleethub/internal/infrastructure/database/entities"
	"fleethub/internal/utils/platformerrors"
)

// Repository handles firmware version persistence and the model
// registry's current-version pointer.
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

// Upsert inserts the version row or refreshes its upload timestamp when
// the (model_code, version) pair already exists.
func (r *Repository) Upsert(ctx context.Context, v *domain.Version) error {
	entity := entities.FirmwareVersion{
		ModelCode:  v.ModelCode,
		Version:    v.Version,
		UploadedAt: v.UploadedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "model_code"}, {Name: "version"}},
			DoUpdates: clause.AssignmentColumns([]string{"uploaded_at"}),
		}).
		Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to upsert firmware version",
			err,
			"3f6a1c8e-92d4-4b7a-b1e0-5c2f8d9a4e71",
		)
	}
	v.ID = entity.ID
	v.CreatedAt = entity.CreatedAt
	return nil
}

// ListByModel returns the model's versions ordered newest first.
func (r *Repository) ListByModel(ctx context.Context, modelCode string) ([]domain.Version, error) {
	var rows []entities.FirmwareVersion
	err := r.db.WithContext(ctx).
		Where("model_code = ?", modelCode).
		Order("uploaded_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list firmware versions",
			err,
			"b82e4d16-7f3a-4c5d-9e8b-0a1f2c3d4e5f",
		)
	}
	versions := make([]domain.Version, 0, len(rows))
	for _, row := range rows {
		versions = append(versions, mapEntity(row))
	}
	return versions, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Delete(&entities.FirmwareVersion{}, id).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to delete firmware version",
			err,
			"c1d2e3f4-a5b6-4c7d-8e9f-1a2b3c4d5e6f",
		)
	}
	return nil
}

func (r *Repository) DeleteByModel(ctx context.Context, modelCode string) error {
	err := r.db.WithContext(ctx).
		Where("model_code = ?", modelCode).
		Delete(&entities.FirmwareVersion{}).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to delete firmware versions",
			err,
			"d4e5f6a7-b8c9-4d0e-9f1a-2b3c4d5e6f7a",
		)
	}
	return nil
}

// CurrentVersion reads the model's current firmware pointer from the
// registry. An unknown model is a not-found error; a known model without
// firmware yields an empty string.
func (r *Repository) CurrentVersion(ctx context.Context, modelCode string) (string, error) {
	var model entities.Model
	err := r.db.WithContext(ctx).Where("code = ?", modelCode).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				"model not found",
				domain.ErrNotFound,
				"e7f8a9b0-c1d2-4e3f-8a9b-3c4d5e6f7a8b",
			)
		}
		return "", platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to load model",
			err,
			"f0a1b2c3-d4e5-4f6a-9b0c-4d5e6f7a8b9c",
		)
	}
	return model.CurrentFirmwareVersion, nil
}

// SetCurrentVersion updates the registry's current firmware pointer.
func (r *Repository) SetCurrentVersion(ctx context.Context, modelCode, version string) error {
	res := r.db.WithContext(ctx).
		Model(&entities.Model{}).
		Where("code = ?", modelCode).
		Update("current_firmware_version", version)
	if res.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update current firmware version",
			res.Error,
			"a3b4c5d6-e7f8-4a9b-8c0d-5e6f7a8b9c0d",
		)
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotFound,
			"model not found",
			domain.ErrNotFound,
			"b6c7d8e9-f0a1-4b2c-9d3e-6f7a8b9c0d1e",
		)
	}
	return nil
}

// HasPendingDumps reports whether any crash dump still awaiting analysis
// references the firmware version string.
func (r *Repository) HasPendingDumps(ctx context.Context, firmwareVersion string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.CrashDump{}).
		Where("firmware_version = ? AND status = ?", firmwareVersion, "PENDING").
		Count(&count).Error
	if err != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to count pending crash dumps",
			err,
			"c9d0e1f2-a3b4-4c5d-8e6f-7a8b9c0d1e2f",
		)
	}
	return count > 0, nil
}

func mapEntity(entity entities.FirmwareVersion) domain.Version {
	return domain.Version{
		ID:         entity.ID,
		ModelCode:  entity.ModelCode,
		Version:    entity.Version,
		UploadedAt: entity.UploadedAt,
		CreatedAt:  entity.CreatedAt,
	}
}
