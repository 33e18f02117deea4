// Package storage provides the durable string-keyed storage medium that the
// persistence manager writes through. Values are opaque strings; encoding is
// the caller's concern.
package storage

import (
	"errors"
	"fmt"
)

// Medium is a synchronous string-keyed key/value store.
type Medium interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)
	// Set writes value under key, replacing any previous value.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// Keys returns every stored key in ascending order.
	Keys() ([]string, error)
	// Close releases the medium.
	Close() error
}

// Supported backend names.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var (
	ErrQuotaExceeded  = errors.New("storage quota exceeded")
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Open creates the medium for backend. path is ignored for the memory
// backend; quota is only enforced by the memory backend.
func Open(backend, path string, quota int) (Medium, error) {
	switch backend {
	case BackendBolt, "":
		return NewBoltMedium(path)
	case BackendSQLite:
		return NewSQLiteMedium(path)
	case BackendMemory:
		return NewMemoryMedium(quota), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
