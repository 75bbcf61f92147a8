package objectstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LocalStore is the filesystem-backed equivalent of S3Store, used for
// development and tests. Keys map to paths under the base directory.
type LocalStore struct {
	basePath string
	log      zerolog.Logger
}

// NewLocalStore creates a local filesystem storage backend rooted at basePath.
func NewLocalStore(basePath string, log zerolog.Logger) (*LocalStore, error) {
	logger := log.With().Str("component", "local-store").Logger()

	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, fmt.Errorf("FLEET_LOCAL_STORAGE_PATH is required for the local storage backend")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage directory: %w", err)
	}

	logger.Info().Str("path", basePath).Msg("local object store initialized")
	return &LocalStore{basePath: basePath, log: logger}, nil
}

func (l *LocalStore) pathFor(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

// Put stores an object to the local filesystem.
func (l *LocalStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	fullPath := l.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, body)
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	l.log.Debug().Str("key", key).Int64("bytes", written).Msg("object written")
	return nil
}

// Get reads an object from the local filesystem.
func (l *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	file, err := os.Open(l.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("open file: %w", err)
	}
	return file, "application/octet-stream", nil
}

// Delete removes a single object. Deleting a missing key is not an error.
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(l.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns the keys under the given prefix.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// DeletePrefix removes every object under the given prefix.
func (l *LocalStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := l.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := l.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Health checks that the storage directory is writable.
func (l *LocalStore) Health(ctx context.Context) error {
	testFile := filepath.Join(l.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
