package migration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"fleethub/internal/domain/crashdump"
	"fleethub/internal/domain/firmware"
	"fleethub/internal/infrastructure/objectstore"
)

type fakeFirmwareRepo struct {
	models   map[string]bool
	versions map[string]int64
	nextID   int64
}

func (r *fakeFirmwareRepo) InTransaction(ctx context.Context, fn func(tx firmware.Repository) error) error {
	return fn(r)
}

func (r *fakeFirmwareRepo) Upsert(ctx context.Context, v *firmware.Version) error {
	key := v.ModelCode + "/" + v.Version
	if id, ok := r.versions[key]; ok {
		v.ID = id
		return nil
	}
	r.nextID++
	r.versions[key] = r.nextID
	v.ID = r.nextID
	return nil
}

func (r *fakeFirmwareRepo) ListByModel(ctx context.Context, modelCode string) ([]firmware.Version, error) {
	return nil, nil
}

func (r *fakeFirmwareRepo) Delete(ctx context.Context, id int64) error            { return nil }
func (r *fakeFirmwareRepo) DeleteByModel(ctx context.Context, modelCode string) error { return nil }

func (r *fakeFirmwareRepo) CurrentVersion(ctx context.Context, modelCode string) (string, error) {
	if !r.models[modelCode] {
		return "", firmware.ErrNotFound
	}
	return "", nil
}

func (r *fakeFirmwareRepo) SetCurrentVersion(ctx context.Context, modelCode, version string) error {
	return nil
}

func (r *fakeFirmwareRepo) HasPendingDumps(ctx context.Context, firmwareVersion string) (bool, error) {
	return false, nil
}

type fakeDumpIndex struct {
	// keyed by deviceID + filename
	dumps   map[int64]map[string]*crashdump.Dump
	cleared []int64
}

func (i *fakeDumpIndex) FindByLegacyFilename(ctx context.Context, deviceID int64, filename string) (*crashdump.Dump, error) {
	if d, ok := i.dumps[deviceID][filename]; ok {
		return d, nil
	}
	return nil, crashdump.ErrNotFound
}

func (i *fakeDumpIndex) ClearLegacyFilename(ctx context.Context, dumpID int64) error {
	i.cleared = append(i.cleared, dumpID)
	return nil
}

type fakeRegistry struct {
	devices map[string]*crashdump.Device
}

func (r *fakeRegistry) DeviceByKey(ctx context.Context, key string) (*crashdump.Device, error) {
	if d, ok := r.devices[key]; ok {
		return d, nil
	}
	return nil, crashdump.ErrNotFound
}

func (r *fakeRegistry) DeviceByID(ctx context.Context, id int64) (*crashdump.Device, error) {
	for _, d := range r.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, crashdump.ErrNotFound
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func legacyTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "firmware/thermo-v2/1.4.2/firmware.bin"), "image-bytes")
	writeFile(t, filepath.Join(root, "firmware/thermo-v2/1.4.2/app.elf"), "elf-bytes")
	writeFile(t, filepath.Join(root, "firmware/thermo-v2/1.4.2/sizemap.txt"), "sizemap-bytes")
	writeFile(t, filepath.Join(root, "firmware/thermo-v2/1.4.2/debugmap.txt"), "debugmap-bytes")
	writeFile(t, filepath.Join(root, "firmware/thermo-v2/1.4.2/manifest.json"), "{}")
	writeFile(t, filepath.Join(root, "coredumps/dev-001/crash_0137.dmp"), "dump-bytes")
	return root
}

func testMigrator(t *testing.T, dryRun bool) (*Migrator, *fakeFirmwareRepo, *fakeDumpIndex, *objectstore.LocalStore) {
	t.Helper()
	fwRepo := &fakeFirmwareRepo{
		models:   map[string]bool{"thermo-v2": true},
		versions: map[string]int64{},
	}
	index := &fakeDumpIndex{dumps: map[int64]map[string]*crashdump.Dump{
		7: {"crash_0137.dmp": &crashdump.Dump{ID: 137, DeviceID: 7}},
	}}
	registry := &fakeRegistry{devices: map[string]*crashdump.Device{
		"dev-001": {ID: 7, Key: "dev-001", ModelCode: "thermo-v2"},
	}}
	store, err := objectstore.NewLocalStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return NewMigrator(fwRepo, index, registry, store, dryRun, zerolog.Nop()), fwRepo, index, store
}

func TestMigratorRun(t *testing.T) {
	root := legacyTree(t)
	m, fwRepo, index, store := testMigrator(t, false)

	report, err := m.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.FirmwareVersions != 1 || report.Artifacts != 5 || report.Dumps != 1 || report.Skipped != 0 {
		t.Errorf("report = %+v", report)
	}

	if _, ok := fwRepo.versions["thermo-v2/1.4.2"]; !ok {
		t.Error("firmware version row not created")
	}
	for _, name := range firmware.ArtifactNames {
		key := firmware.ArtifactKey("thermo-v2", "1.4.2", name)
		if _, _, err := store.Get(context.Background(), key); err != nil {
			t.Errorf("artifact %s not migrated: %v", name, err)
		}
	}
	if _, _, err := store.Get(context.Background(), crashdump.ObjectKey("dev-001", 137)); err != nil {
		t.Errorf("dump not migrated: %v", err)
	}
	if len(index.cleared) != 1 || index.cleared[0] != 137 {
		t.Errorf("cleared legacy filenames = %v, want [137]", index.cleared)
	}
}

func TestMigratorRunIsIdempotent(t *testing.T) {
	root := legacyTree(t)
	m, fwRepo, _, _ := testMigrator(t, false)

	for i := 0; i < 2; i++ {
		if _, err := m.Run(context.Background(), root); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}
	if len(fwRepo.versions) != 1 {
		t.Errorf("version rows after two runs = %d, want 1", len(fwRepo.versions))
	}
}

func TestMigratorDryRun(t *testing.T) {
	root := legacyTree(t)
	m, fwRepo, index, store := testMigrator(t, true)

	report, err := m.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.FirmwareVersions != 1 || report.Dumps != 1 {
		t.Errorf("dry-run report = %+v", report)
	}
	if len(fwRepo.versions) != 0 {
		t.Error("dry-run created version rows")
	}
	if len(index.cleared) != 0 {
		t.Error("dry-run cleared legacy filenames")
	}
	keys, _ := store.List(context.Background(), "")
	if len(keys) != 0 {
		t.Errorf("dry-run wrote objects: %v", keys)
	}
}

func TestMigratorSkipsOrphans(t *testing.T) {
	root := legacyTree(t)
	// Unknown model directory, unknown device directory, and a dump file
	// with no metadata row.
	writeFile(t, filepath.Join(root, "firmware/ghost-model/0.1.0/firmware.bin"), "x")
	writeFile(t, filepath.Join(root, "coredumps/ghost-device/crash.dmp"), "x")
	writeFile(t, filepath.Join(root, "coredumps/dev-001/untracked.dmp"), "x")

	m, _, _, store := testMigrator(t, false)
	report, err := m.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", report.Skipped)
	}
	if _, _, err := store.Get(context.Background(), firmware.ArtifactKey("ghost-model", "0.1.0", firmware.ArtifactImage)); err == nil {
		t.Error("orphan firmware was migrated")
	}
}

func TestMigratorMissingLegacyRoot(t *testing.T) {
	m, _, _, _ := testMigrator(t, false)

	report, err := m.Run(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.FirmwareVersions != 0 || report.Dumps != 0 {
		t.Errorf("report for empty root = %+v", report)
	}
}
