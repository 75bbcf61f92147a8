// Package objectstore wraps the S3-compatible binary storage service used
// for firmware artifacts and crash dumps. The clients are stateless and
// safe for concurrent use by request and worker goroutines.
package objectstore

import "errors"

// ErrNotFound is returned when a key has no object behind it.
var ErrNotFound = errors.New("object not found")
