// Package registry is the device and model registry: lookups consumed by
// the firmware and crash dump stores, plus the admin CRUD surface.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleethub/internal/domain/crashdump"
	"fleethub/internal/infrastructure/database/entities"
	"fleethub/internal/utils/platformerrors"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrModelNotFound  = errors.New("model not found")
	// ErrConflict is returned when a unique code or key already exists.
	ErrConflict = errors.New("already registered")
)

// Model is a registry entry for a hardware model.
type Model struct {
	ID                     int64     `json:"id"`
	Code                   string    `json:"code"`
	Name                   string    `json:"name"`
	CurrentFirmwareVersion string    `json:"current_firmware_version,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// Device is a registry entry for a fleet device.
type Device struct {
	ID        int64           `json:"id"`
	Key       string          `json:"device_key"`
	ModelCode string          `json:"model_code"`
	Chip      string          `json:"chip"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DeviceByKey resolves a device by its fleet key. Satisfies the crash
// dump store's registry dependency.
func (r *Repository) DeviceByKey(ctx context.Context, key string) (*crashdump.Device, error) {
	var entity entities.Device
	err := r.db.WithContext(ctx).Where("device_key = ?", key).First(&entity).Error
	if err != nil {
		return nil, r.deviceLookupError(ctx, err, "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c01")
	}
	return r.toStoreDevice(ctx, entity)
}

// DeviceByID resolves a device by its registry id.
func (r *Repository) DeviceByID(ctx context.Context, id int64) (*crashdump.Device, error) {
	var entity entities.Device
	err := r.db.WithContext(ctx).First(&entity, id).Error
	if err != nil {
		return nil, r.deviceLookupError(ctx, err, "b2c3d4e5-f6a7-4b8c-9d0e-1f2a3b4c5d02")
	}
	return r.toStoreDevice(ctx, entity)
}

func (r *Repository) toStoreDevice(ctx context.Context, entity entities.Device) (*crashdump.Device, error) {
	var model entities.Model
	if err := r.db.WithContext(ctx).First(&model, entity.ModelID).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to load device model",
			err,
			"c3d4e5f6-a7b8-4c9d-8e0f-2a3b4c5d6e03",
		)
	}
	return &crashdump.Device{
		ID:        entity.ID,
		Key:       entity.DeviceKey,
		ModelCode: model.Code,
	}, nil
}

func (r *Repository) deviceLookupError(ctx context.Context, err error, uuid string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotFound,
			"device not found",
			ErrDeviceNotFound,
			uuid,
		)
	}
	return platformerrors.NewError(
		ctx,
		platformerrors.LayerRepository,
		platformerrors.ErrorTypeDatabaseError,
		"failed to load device",
		err,
		uuid,
	)
}

// ListDevices returns all registered devices with their model codes.
func (r *Repository) ListDevices(ctx context.Context) ([]Device, error) {
	var rows []entities.Device
	err := r.db.WithContext(ctx).Order("device_key ASC").Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list devices",
			err,
			"d4e5f6a7-b8c9-4d0e-9f1a-3b4c5d6e7f04",
		)
	}
	models, err := r.modelCodes(ctx)
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, mapDevice(row, models[row.ModelID]))
	}
	return devices, nil
}

// GetDevice returns one device by id.
func (r *Repository) GetDevice(ctx context.Context, id int64) (*Device, error) {
	var entity entities.Device
	if err := r.db.WithContext(ctx).First(&entity, id).Error; err != nil {
		return nil, r.deviceLookupError(ctx, err, "e5f6a7b8-c9d0-4e1f-8a2b-4c5d6e7f8a05")
	}
	var model entities.Model
	if err := r.db.WithContext(ctx).First(&model, entity.ModelID).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to load device model",
			err,
			"f6a7b8c9-d0e1-4f2a-9b3c-5d6e7f8a9b06",
		)
	}
	device := mapDevice(entity, model.Code)
	return &device, nil
}

// CreateDevice registers a device under an existing model.
func (r *Repository) CreateDevice(ctx context.Context, key, modelCode, chip string) (*Device, error) {
	var model entities.Model
	err := r.db.WithContext(ctx).Where("code = ?", modelCode).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				"model not found",
				ErrModelNotFound,
				"a7b8c9d0-e1f2-4a3b-8c4d-6e7f8a9b0c07",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to load model",
			err,
			"b8c9d0e1-f2a3-4b4c-9d5e-7f8a9b0c1d08",
		)
	}

	entity := entities.Device{
		DeviceKey: key,
		ModelID:   model.ID,
		Chip:      chip,
		Config:    "{}",
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&entity).Error; err != nil {
		return nil, r.writeError(ctx, err, "failed to create device", "c9d0e1f2-a3b4-4c5d-8e6f-8a9b0c1d2e09")
	}
	device := mapDevice(entity, model.Code)
	return &device, nil
}

// DeleteDevice removes a device row. Its crash dump rows go with it via
// the foreign key cascade; object cleanup is the caller's concern.
func (r *Repository) DeleteDevice(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&entities.Device{}, id)
	if res.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to delete device",
			res.Error,
			"d0e1f2a3-b4c5-4d6e-9f7a-9b0c1d2e3f10",
		)
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotFound,
			"device not found",
			ErrDeviceNotFound,
			"e1f2a3b4-c5d6-4e7f-8a8b-0c1d2e3f4a11",
		)
	}
	return nil
}

// DeviceConfig returns the device's configuration document.
func (r *Repository) DeviceConfig(ctx context.Context, id int64) (json.RawMessage, error) {
	var entity entities.Device
	if err := r.db.WithContext(ctx).First(&entity, id).Error; err != nil {
		return nil, r.deviceLookupError(ctx, err, "f2a3b4c5-d6e7-4f8a-9b9c-1d2e3f4a5b12")
	}
	return json.RawMessage(entity.Config), nil
}

// SetDeviceConfig replaces the device's configuration document. The body
// must be a valid JSON object.
func (r *Repository) SetDeviceConfig(ctx context.Context, id int64, config json.RawMessage) error {
	if !json.Valid(config) {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeValidation,
			"device config is not valid JSON",
			nil,
			"a3b4c5d6-e7f8-4a9b-8c0d-2e3f4a5b6c13",
		)
	}
	res := r.db.WithContext(ctx).
		Model(&entities.Device{}).
		Where("id = ?", id).
		Update("config", string(config))
	if res.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update device config",
			res.Error,
			"b4c5d6e7-f8a9-4b0c-9d1e-3f4a5b6c7d14",
		)
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotFound,
			"device not found",
			ErrDeviceNotFound,
			"c5d6e7f8-a9b0-4c1d-8e2f-4a5b6c7d8e15",
		)
	}
	return nil
}

// ListModels returns all registered models.
func (r *Repository) ListModels(ctx context.Context) ([]Model, error) {
	var rows []entities.Model
	err := r.db.WithContext(ctx).Order("code ASC").Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list models",
			err,
			"d6e7f8a9-b0c1-4d2e-9f3a-5b6c7d8e9f16",
		)
	}
	models := make([]Model, 0, len(rows))
	for _, row := range rows {
		models = append(models, mapModel(row))
	}
	return models, nil
}

// CreateModel registers a hardware model.
func (r *Repository) CreateModel(ctx context.Context, code, name string) (*Model, error) {
	entity := entities.Model{Code: code, Name: name}
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return nil, r.writeError(ctx, err, "failed to create model", "e7f8a9b0-c1d2-4e3f-8a4b-6c7d8e9f0a17")
	}
	model := mapModel(entity)
	return &model, nil
}

func (r *Repository) modelCodes(ctx context.Context) (map[int64]string, error) {
	var rows []entities.Model
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list models",
			err,
			"f8a9b0c1-d2e3-4f4a-9b5c-7d8e9f0a1b18",
		)
	}
	codes := make(map[int64]string, len(rows))
	for _, row := range rows {
		codes[row.ID] = row.Code
	}
	return codes, nil
}

func (r *Repository) writeError(ctx context.Context, err error, message, uuid string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeConflict,
			"already registered",
			ErrConflict,
			uuid,
		)
	}
	return platformerrors.NewError(
		ctx,
		platformerrors.LayerRepository,
		platformerrors.ErrorTypeDatabaseError,
		message,
		err,
		uuid,
	)
}

func mapDevice(entity entities.Device, modelCode string) Device {
	return Device{
		ID:        entity.ID,
		Key:       entity.DeviceKey,
		ModelCode: modelCode,
		Chip:      entity.Chip,
		Config:    json.RawMessage(entity.Config),
		CreatedAt: entity.CreatedAt,
	}
}

func mapModel(entity entities.Model) Model {
	return Model{
		ID:                     entity.ID,
		Code:                   entity.Code,
		Name:                   entity.Name,
		CurrentFirmwareVersion: entity.CurrentFirmwareVersion,
		CreatedAt:              entity.CreatedAt,
	}
}
