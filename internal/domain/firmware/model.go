package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when a model has no firmware or the requested
	// artifact is missing.
	ErrNotFound = errors.New("firmware not found")
	// ErrInvalidBundle is returned when an uploaded bundle fails validation.
	ErrInvalidBundle = errors.New("invalid firmware bundle")
)

// Artifact names within a version prefix. The prefix already encodes
// identity, so the names are fixed and generic.
const (
	ArtifactImage    = "image"
	ArtifactSymbols  = "symbols"
	ArtifactSizeMap  = "sizemap"
	ArtifactDebugMap = "debugmap"
	ArtifactManifest = "manifest"
)

// ArtifactNames lists the artifacts stored for every firmware version.
var ArtifactNames = []string{ArtifactImage, ArtifactSymbols, ArtifactSizeMap, ArtifactDebugMap, ArtifactManifest}

// IsArtifactName reports whether name is one of the fixed artifact names.
func IsArtifactName(name string) bool {
	for _, known := range ArtifactNames {
		if name == known {
			return true
		}
	}
	return false
}

// Version represents one retained firmware build for a model.
type Version struct {
	ID         int64     `json:"id"`
	ModelCode  string    `json:"model_code"`
	Version    string    `json:"version"`
	UploadedAt time.Time `json:"uploaded_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Bundle holds the artifacts of one uploaded firmware build. The HTTP
// layer validates and splits the upload; the store never parses HTTP.
type Bundle struct {
	Image    []byte
	Symbols  []byte
	SizeMap  []byte
	DebugMap []byte
	Manifest []byte
}

func (b Bundle) artifacts() map[string][]byte {
	return map[string][]byte{
		ArtifactImage:    b.Image,
		ArtifactSymbols:  b.Symbols,
		ArtifactSizeMap:  b.SizeMap,
		ArtifactDebugMap: b.DebugMap,
		ArtifactManifest: b.Manifest,
	}
}

// ArtifactKey builds the deterministic object key for one artifact.
func ArtifactKey(modelCode, version, name string) string {
	return fmt.Sprintf("firmware/%s/%s/%s", modelCode, version, name)
}

// VersionPrefix is the object key prefix holding one version's artifacts.
func VersionPrefix(modelCode, version string) string {
	return fmt.Sprintf("firmware/%s/%s/", modelCode, version)
}

// ModelPrefix is the object key prefix holding all of a model's firmware.
func ModelPrefix(modelCode string) string {
	return fmt.Sprintf("firmware/%s/", modelCode)
}

// Repository defines persistence operations needed by the store. The
// current-version pointer lives in the model registry; the store updates
// it but does not own its lifecycle.
type Repository interface {
	// InTransaction runs fn against a transaction-scoped repository; fn
	// returning an error rolls the transaction back.
	InTransaction(ctx context.Context, fn func(tx Repository) error) error
	// Upsert inserts the version row, or refreshes the upload timestamp
	// when the (model, version) pair already exists.
	Upsert(ctx context.Context, v *Version) error
	// ListByModel returns the model's versions ordered newest first.
	ListByModel(ctx context.Context, modelCode string) ([]Version, error)
	Delete(ctx context.Context, id int64) error
	DeleteByModel(ctx context.Context, modelCode string) error
	CurrentVersion(ctx context.Context, modelCode string) (string, error)
	SetCurrentVersion(ctx context.Context, modelCode, version string) error
	// HasPendingDumps reports whether any crash dump with analysis still
	// pending references the given firmware version string.
	HasPendingDumps(ctx context.Context, firmwareVersion string) (bool, error)
}

// ObjectStore defines the object storage operations the store needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}
