package crashdump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when the dump row or its object is missing,
	// or the dump does not belong to the given device.
	ErrNotFound = errors.New("crash dump not found")
	// ErrValidation is returned for empty or oversized dump content.
	ErrValidation = errors.New("invalid crash dump")
)

// Status is the analysis state of a crash dump. PENDING is the sole
// initial state; ANALYZED and FAILED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAnalyzed Status = "ANALYZED"
	StatusFailed   Status = "FAILED"
)

// Dump represents one recorded crash dump. The object key derives from
// the row id; no filename is stored.
type Dump struct {
	ID              int64      `json:"id"`
	DeviceID        int64      `json:"device_id"`
	Chip            string     `json:"chip"`
	FirmwareVersion string     `json:"firmware_version"`
	SizeBytes       int64      `json:"size_bytes"`
	Status          Status     `json:"status"`
	AnalysisOutput  *string    `json:"analysis_output,omitempty"`
	LegacyFilename  *string    `json:"-"`
	UploadedAt      time.Time  `json:"uploaded_at"`
	AnalyzedAt      *time.Time `json:"analyzed_at,omitempty"`
}

// Device is the slice of the device registry the store consumes.
type Device struct {
	ID        int64
	Key       string
	ModelCode string
}

// ObjectKey builds the deterministic object key for a dump.
func ObjectKey(deviceKey string, dumpID int64) string {
	return fmt.Sprintf("coredumps/%s/%d.dmp", deviceKey, dumpID)
}

// DevicePrefix is the object key prefix holding all of a device's dumps.
func DevicePrefix(deviceKey string) string {
	return fmt.Sprintf("coredumps/%s/", deviceKey)
}

// Repository defines persistence operations needed by the store.
type Repository interface {
	// InTransaction runs fn against a transaction-scoped repository; fn
	// returning an error rolls the transaction back.
	InTransaction(ctx context.Context, fn func(tx Repository) error) error
	// Create inserts the row with status PENDING and assigns its id.
	Create(ctx context.Context, d *Dump) error
	// Get loads a dump by id, scoped to the owning device. Querying by
	// both ids is the ownership check.
	Get(ctx context.Context, deviceID, dumpID int64) (*Dump, error)
	// ListByDevice returns the device's dumps ordered newest first.
	ListByDevice(ctx context.Context, deviceID int64) ([]Dump, error)
	// ListExcess returns the oldest rows beyond the keep quota, oldest
	// first.
	ListExcess(ctx context.Context, deviceID int64, keep int) ([]Dump, error)
	Delete(ctx context.Context, ids ...int64) error
}

// Registry is the consumed slice of the device registry.
type Registry interface {
	DeviceByKey(ctx context.Context, key string) (*Device, error)
	DeviceByID(ctx context.Context, id int64) (*Device, error)
}

// AnalysisJob carries everything the analysis pipeline needs by value,
// so the worker never depends on reading the not-yet-committed row that
// triggered it.
type AnalysisJob struct {
	DumpID          int64
	DeviceKey       string
	ModelCode       string
	Chip            string
	FirmwareVersion string
}

// Scheduler hands a stored dump to the analysis pipeline. Scheduling is
// fire-and-forget; the pipeline runs detached from the request.
type Scheduler interface {
	Schedule(job AnalysisJob)
}

// ObjectStore defines the object storage operations the store needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}
