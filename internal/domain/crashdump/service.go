package crashdump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"fleethub/internal/config"
	"fleethub/internal/infrastructure/metrics"
	"fleethub/internal/infrastructure/objectstore"
)

// Service is the crash dump store. It owns CrashDump rows and their
// derived objects under coredumps/{deviceKey}/, enforces the per-device
// quota at commit time, and hands newly stored dumps to the analysis
// pipeline.
type Service struct {
	cfg       *config.Config
	repo      Repository
	registry  Registry
	store     ObjectStore
	scheduler Scheduler
	log       zerolog.Logger
}

func NewService(cfg *config.Config, repo Repository, registry Registry, store ObjectStore, scheduler Scheduler, log zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		repo:      repo,
		registry:  registry,
		store:     store,
		scheduler: scheduler,
		log:       log.With().Str("component", "crashdump-store").Logger(),
	}
}

// Save persists one crash dump: row first (id assigned inside the open
// transaction), then the object, then the quota check, then commit. The
// analysis pipeline is scheduled only after the transaction succeeds.
// Returns the assigned dump id.
func (s *Service) Save(ctx context.Context, deviceKey, chip, firmwareVersion string, content []byte) (int64, error) {
	if len(content) == 0 {
		return 0, fmt.Errorf("%w: empty content", ErrValidation)
	}
	if int64(len(content)) > s.cfg.MaxDumpBytes {
		return 0, fmt.Errorf("%w: content exceeds %d bytes", ErrValidation, s.cfg.MaxDumpBytes)
	}

	device, err := s.registry.DeviceByKey(ctx, deviceKey)
	if err != nil {
		return 0, err
	}

	dump := &Dump{
		DeviceID:        device.ID,
		Chip:            chip,
		FirmwareVersion: firmwareVersion,
		SizeBytes:       int64(len(content)),
		Status:          StatusPending,
		UploadedAt:      time.Now().UTC(),
	}

	var evicted []Dump
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		if err := tx.Create(ctx, dump); err != nil {
			return err
		}
		key := ObjectKey(deviceKey, dump.ID)
		if err := s.store.Put(ctx, key, bytes.NewReader(content), "application/octet-stream"); err != nil {
			metrics.RecordObjectStoreOperation("put", "error")
			return fmt.Errorf("upload %s: %w", key, err)
		}
		metrics.RecordObjectStoreOperation("put", "success")

		// Quota enforcement inside the same transaction: after this save
		// commits the device never holds more rows than the quota.
		excess, err := tx.ListExcess(ctx, device.ID, s.cfg.DumpsPerDevice)
		if err != nil {
			return err
		}
		if len(excess) > 0 {
			ids := make([]int64, 0, len(excess))
			for _, d := range excess {
				ids = append(ids, d.ID)
			}
			if err := tx.Delete(ctx, ids...); err != nil {
				return err
			}
			evicted = excess
		}
		return nil
	})
	if err != nil {
		metrics.RecordDumpUpload("error")
		return 0, err
	}

	// Metadata is committed; object removal for evicted rows is
	// best-effort, an orphaned object is acceptable.
	for _, d := range evicted {
		if err := s.store.Delete(ctx, ObjectKey(deviceKey, d.ID)); err != nil {
			s.log.Warn().Err(err).Int64("dump_id", d.ID).Msg("quota: dump object left behind after metadata delete")
		}
	}

	metrics.RecordDumpUpload("success")
	s.log.Info().
		Str("device", deviceKey).
		Int64("dump_id", dump.ID).
		Int64("bytes", dump.SizeBytes).
		Msg("crash dump stored")

	s.scheduler.Schedule(AnalysisJob{
		DumpID:          dump.ID,
		DeviceKey:       deviceKey,
		ModelCode:       device.ModelCode,
		Chip:            chip,
		FirmwareVersion: firmwareVersion,
	})
	return dump.ID, nil
}

// GetStream verifies the dump belongs to the device, then streams its
// object. Returns ErrNotFound when either the row or the object is missing.
func (s *Service) GetStream(ctx context.Context, deviceID, dumpID int64) (io.ReadCloser, string, error) {
	dump, err := s.repo.Get(ctx, deviceID, dumpID)
	if err != nil {
		return nil, "", err
	}
	device, err := s.registry.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, "", err
	}
	reader, contentType, err := s.store.Get(ctx, ObjectKey(device.Key, dump.ID))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return reader, contentType, nil
}

// List returns the device's dumps, newest first.
func (s *Service) List(ctx context.Context, deviceID int64) ([]Dump, error) {
	return s.repo.ListByDevice(ctx, deviceID)
}

// Delete removes one dump after the ownership check: metadata commits
// first, then the object is removed best-effort.
func (s *Service) Delete(ctx context.Context, deviceID, dumpID int64) error {
	dump, err := s.repo.Get(ctx, deviceID, dumpID)
	if err != nil {
		return err
	}
	device, err := s.registry.DeviceByID(ctx, deviceID)
	if err != nil {
		return err
	}

	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		return tx.Delete(ctx, dump.ID)
	})
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, ObjectKey(device.Key, dump.ID)); err != nil {
		s.log.Warn().Err(err).Int64("dump_id", dump.ID).Msg("dump object left behind after metadata delete")
	}
	return nil
}

// DeleteAll removes every dump of the device, then best-effort deletes
// the device's whole object prefix.
func (s *Service) DeleteAll(ctx context.Context, deviceID int64) error {
	device, err := s.registry.DeviceByID(ctx, deviceID)
	if err != nil {
		return err
	}
	dumps, err := s.repo.ListByDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if len(dumps) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(dumps))
	for _, d := range dumps {
		ids = append(ids, d.ID)
	}
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		return tx.Delete(ctx, ids...)
	})
	if err != nil {
		return err
	}

	if err := s.store.DeletePrefix(ctx, DevicePrefix(device.Key)); err != nil {
		metrics.RecordObjectStoreOperation("delete_prefix", "error")
		s.log.Warn().Err(err).Str("device", device.Key).Msg("dump objects left behind after metadata delete")
	}
	return nil
}
