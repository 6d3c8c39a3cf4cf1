// Package kv is the shared string-keyed store every tab of the tracker
// writes through: the global registry, the per-user local mirrors, the
// session record and the device id all live under well-known keys here.
package kv

import (
	"context"
	"errors"
)

// ErrStorageFailure marks serialization or quota failures on the
// underlying store. Callers must treat a failed write as "not yet durable"
// and retry later; it is never fatal.
var ErrStorageFailure = errors.New("storage failure")

// Store is an opaque string-keyed, string-valued store. A missing key is
// reported through the bool, not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// BackendType selects the store implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

func (bt BackendType) String() string { return string(bt) }

// IsValid returns true if the backend type is known.
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
