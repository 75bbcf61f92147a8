package firmware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"fleethub/internal/config"
	"fleethub/internal/infrastructure/metrics"
	"fleethub/internal/infrastructure/objectstore"
)

// Service is the firmware version store. It owns FirmwareVersion rows and
// the derived artifact objects, and keeps the two consistent: metadata is
// flushed first so the identity is known, objects are uploaded, and only
// then does the transaction commit. Deletions commit metadata first and
// treat object removal as best-effort.
type Service struct {
	cfg   *config.Config
	repo  Repository
	store ObjectStore
	log   zerolog.Logger
}

func NewService(cfg *config.Config, repo Repository, store ObjectStore, log zerolog.Logger) *Service {
	return &Service{
		cfg:   cfg,
		repo:  repo,
		store: store,
		log:   log.With().Str("component", "firmware-store").Logger(),
	}
}

// Save persists one firmware build as a named set of objects under
// firmware/{modelCode}/{version}/ and records the version row. Re-uploading
// an existing version overwrites its objects and leaves exactly one row.
// Returns the version string extracted from the image.
func (s *Service) Save(ctx context.Context, modelCode string, bundle Bundle) (string, error) {
	version, err := ExtractVersion(bundle.Image)
	if err != nil {
		return "", err
	}
	for name, data := range bundle.artifacts() {
		if len(data) == 0 {
			return "", fmt.Errorf("%w: missing %s artifact", ErrInvalidBundle, name)
		}
	}

	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		row := &Version{
			ModelCode:  modelCode,
			Version:    version,
			UploadedAt: time.Now().UTC(),
		}
		if err := tx.Upsert(ctx, row); err != nil {
			return err
		}
		if err := tx.SetCurrentVersion(ctx, modelCode, version); err != nil {
			return err
		}
		// Uploads happen before the transaction commits: a failed upload
		// rolls back the row so no version is ever visible without its
		// backing objects.
		for name, data := range bundle.artifacts() {
			key := ArtifactKey(modelCode, version, name)
			contentType := mimetype.Detect(data).String()
			if err := s.store.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
				metrics.RecordObjectStoreOperation("put", "error")
				return fmt.Errorf("upload %s: %w", key, err)
			}
			metrics.RecordObjectStoreOperation("put", "success")
		}
		return nil
	})
	if err != nil {
		metrics.RecordFirmwareUpload(modelCode, "error")
		return "", err
	}

	metrics.RecordFirmwareUpload(modelCode, "success")
	s.log.Info().Str("model", modelCode).Str("version", version).Msg("firmware version stored")

	// The version is durably stored at this point; retention is
	// housekeeping and must not fail the upload.
	if err := s.EnforceRetention(ctx, modelCode); err != nil {
		s.log.Warn().Err(err).Str("model", modelCode).Msg("retention enforcement failed after save")
	}
	return version, nil
}

// GetStream resolves the model's current version and streams the named
// artifact. Returns ErrNotFound when the model has no firmware or the
// object is missing.
func (s *Service) GetStream(ctx context.Context, modelCode, artifactName string) (io.ReadCloser, string, error) {
	if !IsArtifactName(artifactName) {
		return nil, "", ErrNotFound
	}
	version, err := s.repo.CurrentVersion(ctx, modelCode)
	if err != nil {
		return nil, "", err
	}
	if version == "" {
		return nil, "", ErrNotFound
	}
	reader, contentType, err := s.store.Get(ctx, ArtifactKey(modelCode, version, artifactName))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return reader, contentType, nil
}

// Exists reports whether the model has a current firmware version.
func (s *Service) Exists(ctx context.Context, modelCode string) (bool, error) {
	version, err := s.repo.CurrentVersion(ctx, modelCode)
	if err != nil {
		return false, err
	}
	return version != "", nil
}

// Delete removes every firmware version of the model: metadata commits
// first, then the whole key prefix is deleted best-effort.
func (s *Service) Delete(ctx context.Context, modelCode string) error {
	err := s.repo.InTransaction(ctx, func(tx Repository) error {
		if err := tx.DeleteByModel(ctx, modelCode); err != nil {
			return err
		}
		return tx.SetCurrentVersion(ctx, modelCode, "")
	})
	if err != nil {
		return err
	}

	if err := s.store.DeletePrefix(ctx, ModelPrefix(modelCode)); err != nil {
		metrics.RecordObjectStoreOperation("delete_prefix", "error")
		s.log.Warn().Err(err).Str("model", modelCode).Msg("firmware objects left behind after metadata delete")
	}
	return nil
}

// EnforceRetention prunes versions beyond the configured limit, newest
// first. A version referenced by a crash dump still awaiting analysis is
// protected: its symbol file is needed to analyze that dump, so pruning it
// would make the dump permanently unanalyzable. Keeping extra protected
// versions is accepted; losing a needed one is not.
func (s *Service) EnforceRetention(ctx context.Context, modelCode string) error {
	versions, err := s.repo.ListByModel(ctx, modelCode)
	if err != nil {
		return err
	}
	keep := s.cfg.FirmwareKeepVersions
	if len(versions) <= keep {
		return nil
	}

	for _, v := range versions[keep:] {
		protected, err := s.repo.HasPendingDumps(ctx, v.Version)
		if err != nil {
			return err
		}
		if protected {
			s.log.Info().
				Str("model", modelCode).
				Str("version", v.Version).
				Msg("retention: version protected by pending crash dump analysis")
			continue
		}

		v := v
		err = s.repo.InTransaction(ctx, func(tx Repository) error {
			return tx.Delete(ctx, v.ID)
		})
		if err != nil {
			return err
		}
		if err := s.store.DeletePrefix(ctx, VersionPrefix(modelCode, v.Version)); err != nil {
			metrics.RecordObjectStoreOperation("delete_prefix", "error")
			s.log.Warn().Err(err).
				Str("model", modelCode).
				Str("version", v.Version).
				Msg("retention: firmware objects left behind after metadata delete")
		}
		s.log.Info().Str("model", modelCode).Str("version", v.Version).Msg("retention: pruned firmware version")
	}
	return nil
}
