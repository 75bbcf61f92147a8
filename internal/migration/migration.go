// Package migration moves artifacts from the legacy on-disk layout into
// the object store and metadata rows. It is an offline one-time cutover,
// idempotent so an interrupted run can simply be repeated.
package migration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"fleethub/internal/domain/crashdump"
	"fleethub/internal/domain/firmware"
)

// DumpIndex locates pre-cutover crash dump rows by their original
// filename and marks them migrated.
type DumpIndex interface {
	FindByLegacyFilename(ctx context.Context, deviceID int64, filename string) (*crashdump.Dump, error)
	ClearLegacyFilename(ctx context.Context, dumpID int64) error
}

// ObjectStore is the slice of object storage the migration writes to.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Health(ctx context.Context) error
}

// Report summarizes one migration run.
type Report struct {
	FirmwareVersions int
	Artifacts        int
	Dumps            int
	Skipped          int
}

// Migrator walks the legacy directory tree and re-creates its contents
// under the deterministic object key layout.
type Migrator struct {
	firmwareRepo firmware.Repository
	dumpIndex    DumpIndex
	registry     crashdump.Registry
	store        ObjectStore
	dryRun       bool
	log          zerolog.Logger
}

func NewMigrator(firmwareRepo firmware.Repository, dumpIndex DumpIndex, registry crashdump.Registry, store ObjectStore, dryRun bool, log zerolog.Logger) *Migrator {
	return &Migrator{
		firmwareRepo: firmwareRepo,
		dumpIndex:    dumpIndex,
		registry:     registry,
		store:        store,
		dryRun:       dryRun,
		log:          log.With().Str("component", "migration").Logger(),
	}
}

// Run migrates firmware then crash dumps from the legacy root. Orphaned
// entries are logged and skipped, never fatal; a later run after fixing
// the registry picks them up.
func (m *Migrator) Run(ctx context.Context, legacyRoot string) (*Report, error) {
	if err := m.store.Health(ctx); err != nil {
		return nil, fmt.Errorf("object store not reachable: %w", err)
	}

	report := &Report{}
	if err := m.migrateFirmware(ctx, filepath.Join(legacyRoot, "firmware"), report); err != nil {
		return report, err
	}
	if err := m.migrateDumps(ctx, filepath.Join(legacyRoot, "coredumps"), report); err != nil {
		return report, err
	}
	return report, nil
}

// Legacy firmware layout: <root>/firmware/<modelCode>/<version>/<file>.
func (m *Migrator) migrateFirmware(ctx context.Context, root string, report *Report) error {
	modelDirs, err := readSubdirs(root)
	if err != nil {
		return err
	}

	for _, modelCode := range modelDirs {
		if _, err := m.firmwareRepo.CurrentVersion(ctx, modelCode); err != nil {
			if errors.Is(err, firmware.ErrNotFound) {
				m.log.Warn().Str("model", modelCode).Msg("unknown model code, skipping firmware directory")
				report.Skipped++
				continue
			}
			return err
		}

		versionDirs, err := readSubdirs(filepath.Join(root, modelCode))
		if err != nil {
			return err
		}
		for _, version := range versionDirs {
			if err := m.migrateVersion(ctx, root, modelCode, version, report); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Migrator) migrateVersion(ctx context.Context, root, modelCode, version string, report *Report) error {
	dir := filepath.Join(root, modelCode, version)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	artifacts := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := artifactNameFor(entry.Name())
		if name == "" {
			m.log.Warn().Str("file", entry.Name()).Str("model", modelCode).Str("version", version).Msg("unrecognized firmware file, skipping")
			report.Skipped++
			continue
		}
		artifacts[name] = filepath.Join(dir, entry.Name())
	}
	if len(artifacts) == 0 {
		return nil
	}

	m.log.Info().Str("model", modelCode).Str("version", version).Int("artifacts", len(artifacts)).Bool("dry_run", m.dryRun).Msg("migrating firmware version")
	if m.dryRun {
		report.FirmwareVersions++
		report.Artifacts += len(artifacts)
		return nil
	}

	err = m.firmwareRepo.InTransaction(ctx, func(tx firmware.Repository) error {
		row := &firmware.Version{
			ModelCode:  modelCode,
			Version:    version,
			UploadedAt: time.Now().UTC(),
		}
		if err := tx.Upsert(ctx, row); err != nil {
			return err
		}
		for name, path := range artifacts {
			if err := m.uploadFile(ctx, path, firmware.ArtifactKey(modelCode, version, name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate firmware %s/%s: %w", modelCode, version, err)
	}
	report.FirmwareVersions++
	report.Artifacts += len(artifacts)
	return nil
}

// Legacy dump layout: <root>/coredumps/<deviceKey>/<file>. Rows already
// exist; each file is matched by device + original filename.
func (m *Migrator) migrateDumps(ctx context.Context, root string, report *Report) error {
	deviceDirs, err := readSubdirs(root)
	if err != nil {
		return err
	}

	for _, deviceKey := range deviceDirs {
		device, err := m.registry.DeviceByKey(ctx, deviceKey)
		if err != nil {
			m.log.Warn().Str("device", deviceKey).Err(err).Msg("unknown device key, skipping dump directory")
			report.Skipped++
			continue
		}

		entries, err := os.ReadDir(filepath.Join(root, deviceKey))
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := m.migrateDump(ctx, root, device, entry.Name(), report); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Migrator) migrateDump(ctx context.Context, root string, device *crashdump.Device, filename string, report *Report) error {
	dump, err := m.dumpIndex.FindByLegacyFilename(ctx, device.ID, filename)
	if err != nil {
		if errors.Is(err, crashdump.ErrNotFound) {
			m.log.Warn().Str("device", device.Key).Str("file", filename).Msg("no metadata row for dump file, skipping")
			report.Skipped++
			return nil
		}
		return err
	}

	m.log.Info().Str("device", device.Key).Int64("dump_id", dump.ID).Str("file", filename).Bool("dry_run", m.dryRun).Msg("migrating crash dump")
	if m.dryRun {
		report.Dumps++
		return nil
	}

	path := filepath.Join(root, device.Key, filename)
	if err := m.uploadFile(ctx, path, crashdump.ObjectKey(device.Key, dump.ID)); err != nil {
		return fmt.Errorf("migrate dump %d: %w", dump.ID, err)
	}
	if err := m.dumpIndex.ClearLegacyFilename(ctx, dump.ID); err != nil {
		return err
	}
	report.Dumps++
	return nil
}

func (m *Migrator) uploadFile(ctx context.Context, path, key string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	contentType := mimetype.Detect(data).String()
	return m.store.Put(ctx, key, bytes.NewReader(data), contentType)
}

func artifactNameFor(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".bin"):
		return firmware.ArtifactImage
	case strings.HasSuffix(lower, ".elf"):
		return firmware.ArtifactSymbols
	case strings.HasPrefix(lower, "sizemap"):
		return firmware.ArtifactSizeMap
	case strings.HasPrefix(lower, "debugmap"):
		return firmware.ArtifactDebugMap
	case strings.HasPrefix(lower, "manifest"):
		return firmware.ArtifactManifest
	}
	return ""
}

func readSubdirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}
