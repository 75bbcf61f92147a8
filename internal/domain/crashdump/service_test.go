package crashdump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fleethub/internal/config"
	"fleethub/internal/infrastructure/objectstore"
)

type fakeRepo struct {
	dumps  []Dump
	nextID int64
}

func (r *fakeRepo) InTransaction(ctx context.Context, fn func(tx Repository) error) error {
	snapshot := append([]Dump(nil), r.dumps...)
	if err := fn(r); err != nil {
		r.dumps = snapshot
		return err
	}
	return nil
}

func (r *fakeRepo) Create(ctx context.Context, d *Dump) error {
	r.nextID++
	d.ID = r.nextID
	r.dumps = append(r.dumps, *d)
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, deviceID, dumpID int64) (*Dump, error) {
	for _, d := range r.dumps {
		if d.ID == dumpID && d.DeviceID == deviceID {
			dump := d
			return &dump, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepo) ListByDevice(ctx context.Context, deviceID int64) ([]Dump, error) {
	var out []Dump
	for _, d := range r.dumps {
		if d.DeviceID == deviceID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeRepo) ListExcess(ctx context.Context, deviceID int64, keep int) ([]Dump, error) {
	all, _ := r.ListByDevice(ctx, deviceID)
	if len(all) <= keep {
		return nil, nil
	}
	return all[keep:], nil
}

func (r *fakeRepo) Delete(ctx context.Context, ids ...int64) error {
	drop := map[int64]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.dumps[:0]
	for _, d := range r.dumps {
		if !drop[d.ID] {
			kept = append(kept, d)
		}
	}
	r.dumps = kept
	return nil
}

type fakeRegistry struct {
	devices []Device
}

func (r *fakeRegistry) DeviceByKey(ctx context.Context, key string) (*Device, error) {
	for _, d := range r.devices {
		if d.Key == key {
			device := d
			return &device, nil
		}
	}
	return nil, fmt.Errorf("device not found")
}

func (r *fakeRegistry) DeviceByID(ctx context.Context, id int64) (*Device, error) {
	for _, d := range r.devices {
		if d.ID == id {
			device := d
			return &device, nil
		}
	}
	return nil, fmt.Errorf("device not found")
}

type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *fakeStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := s.objects[key]
	if !ok {
		// The real stores report a missing key with their own sentinel,
		// never the domain's.
		return nil, "", objectstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), "application/octet-stream", nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) DeletePrefix(ctx context.Context, prefix string) error {
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

type fakeScheduler struct {
	jobs []AnalysisJob
}

func (s *fakeScheduler) Schedule(job AnalysisJob) {
	s.jobs = append(s.jobs, job)
}

func testSetup(quota int) (*Service, *fakeRepo, *fakeStore, *fakeScheduler) {
	repo := &fakeRepo{}
	registry := &fakeRegistry{devices: []Device{{ID: 7, Key: "dev-001", ModelCode: "thermo-v2"}}}
	store := newFakeStore()
	scheduler := &fakeScheduler{}
	cfg := &config.Config{DumpsPerDevice: quota, MaxDumpBytes: 8 * 1024 * 1024}
	svc := NewService(cfg, repo, registry, store, scheduler, zerolog.Nop())
	return svc, repo, store, scheduler
}

func TestServiceSave(t *testing.T) {
	svc, repo, store, scheduler := testSetup(20)
	content := bytes.Repeat([]byte{0xAB}, 2048)

	dumpID, err := svc.Save(context.Background(), "dev-001", "esp32s3", "1.4.2", content)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if dumpID != 1 {
		t.Errorf("dumpID = %d, want 1", dumpID)
	}
	if len(repo.dumps) != 1 {
		t.Fatalf("rows = %d, want 1", len(repo.dumps))
	}
	row := repo.dumps[0]
	if row.Status != StatusPending {
		t.Errorf("status = %s, want PENDING", row.Status)
	}
	if row.SizeBytes != 2048 {
		t.Errorf("size = %d, want 2048", row.SizeBytes)
	}

	stored, ok := store.objects[ObjectKey("dev-001", dumpID)]
	if !ok {
		t.Fatal("object missing")
	}
	if !bytes.Equal(stored, content) {
		t.Error("stored object differs from uploaded content")
	}

	if len(scheduler.jobs) != 1 {
		t.Fatalf("scheduled jobs = %d, want 1", len(scheduler.jobs))
	}
	job := scheduler.jobs[0]
	if job.DumpID != dumpID || job.DeviceKey != "dev-001" || job.ModelCode != "thermo-v2" ||
		job.Chip != "esp32s3" || job.FirmwareVersion != "1.4.2" {
		t.Errorf("unexpected job: %+v", job)
	}
}

func TestServiceSaveValidation(t *testing.T) {
	svc, repo, _, scheduler := testSetup(20)

	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"oversized", bytes.Repeat([]byte{1}, 8*1024*1024+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), "dev-001", "esp32s3", "1.4.2", tt.content)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
	if len(repo.dumps) != 0 {
		t.Errorf("rows after rejected saves = %d, want 0", len(repo.dumps))
	}
	if len(scheduler.jobs) != 0 {
		t.Errorf("jobs scheduled for rejected saves = %d, want 0", len(scheduler.jobs))
	}
}

func TestServiceSaveQuota(t *testing.T) {
	svc, repo, store, _ := testSetup(2)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := svc.Save(context.Background(), "dev-001", "esp32s3", "1.4.2", []byte(fmt.Sprintf("dump-%d", i)))
		if err != nil {
			t.Fatalf("Save #%d: %v", i+1, err)
		}
		ids = append(ids, id)
	}

	if len(repo.dumps) != 2 {
		t.Fatalf("rows after quota = %d, want 2", len(repo.dumps))
	}
	for _, d := range repo.dumps {
		if d.ID == ids[0] {
			t.Error("oldest dump survived quota eviction")
		}
	}
	if _, ok := store.objects[ObjectKey("dev-001", ids[0])]; ok {
		t.Error("evicted dump's object still present")
	}
	if _, ok := store.objects[ObjectKey("dev-001", ids[2])]; !ok {
		t.Error("newest dump's object missing")
	}
}

func TestServiceGetStream(t *testing.T) {
	svc, _, _, _ := testSetup(20)
	content := []byte("panic backtrace bytes")

	dumpID, err := svc.Save(context.Background(), "dev-001", "esp32s3", "1.4.2", content)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	reader, _, err := svc.GetStream(context.Background(), 7, dumpID)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if !bytes.Equal(data, content) {
		t.Error("streamed content differs from uploaded content")
	}
}

func TestServiceGetStreamMissingObject(t *testing.T) {
	svc, _, store, _ := testSetup(20)

	dumpID, err := svc.Save(context.Background(), "dev-001", "esp32s3", "1.4.2", []byte("data"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Row committed, object gone: the store sentinel must not leak past
	// the package boundary.
	delete(store.objects, ObjectKey("dev-001", dumpID))

	_, _, err = svc.GetStream(context.Background(), 7, dumpID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if errors.Is(err, objectstore.ErrNotFound) {
		t.Errorf("err = %v, store sentinel leaked", err)
	}
}

func TestServiceGetStreamOwnership(t *testing.T) {
	svc, _, _, _ := testSetup(20)

	dumpID, err := svc.Save(context.Background(), "dev-001", "esp32s3", "1.4.2", []byte("data"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A different device id must not reach another device's dump.
	if _, _, err := svc.GetStream(context.Background(), 99, dumpID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-device read err = %v, want ErrNotFound", err)
	}
}

func TestServiceDelete(t *testing.T) {
	svc, repo, store, _ := testSetup(20)

	dumpID, err := svc.Save(context.Background(), "dev-001", "esp32s3", "1.4.2", []byte("data"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := svc.Delete(context.Background(), 7, dumpID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(repo.dumps) != 0 {
		t.Errorf("rows after delete = %d, want 0", len(repo.dumps))
	}
	if len(store.objects) != 0 {
		t.Errorf("objects after delete = %d, want 0", len(store.objects))
	}

	if err := svc.Delete(context.Background(), 7, dumpID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestServiceDeleteAll(t *testing.T) {
	svc, repo, store, _ := testSetup(20)

	for i := 0; i < 3; i++ {
		if _, err := svc.Save(context.Background(), "dev-001", "esp32s3", "1.4.2", []byte(fmt.Sprintf("dump-%d", i))); err != nil {
			t.Fatalf("Save #%d: %v", i+1, err)
		}
	}

	if err := svc.DeleteAll(context.Background(), 7); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if len(repo.dumps) != 0 {
		t.Errorf("rows after delete-all = %d, want 0", len(repo.dumps))
	}
	if len(store.objects) != 0 {
		t.Errorf("objects after delete-all = %d, want 0", len(store.objects))
	}

	// Deleting an empty set is a no-op, not an error.
	if err := svc.DeleteAll(context.Background(), 7); err != nil {
		t.Errorf("DeleteAll on empty device: %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	svc, _, _, _ := testSetup(20)

	for i := 0; i < 3; i++ {
		if _, err := svc.Save(context.Background(), "dev-001", "esp32s3", "1.4.2", []byte{byte(i + 1)}); err != nil {
			t.Fatalf("Save #%d: %v", i+1, err)
		}
		time.Sleep(time.Millisecond)
	}

	dumps, err := svc.List(context.Background(), 7)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(dumps) != 3 {
		t.Fatalf("dumps = %d, want 3", len(dumps))
	}
	for i := 1; i < len(dumps); i++ {
		if dumps[i-1].ID < dumps[i].ID {
			t.Errorf("dumps not newest first: %d before %d", dumps[i-1].ID, dumps[i].ID)
		}
	}
}
