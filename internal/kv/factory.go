package kv

import (
	"fmt"
	"log/slog"
)

// CleanupFunc releases resources held by a store.
type CleanupFunc func() error

// Result bundles a store with its optional cleanup.
type Result struct {
	Store   Store
	Cleanup CleanupFunc
}

// Config holds what Open needs to build a store.
type Config struct {
	Type         BackendType
	SQLiteDBPath string
}

// Open builds the configured store backend.
func Open(cfg Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid kv backend type: %s", cfg.Type)
	}

	switch cfg.Type {
	case SQLiteBackend:
		store, err := NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite store: %w", err)
		}
		logger.Info("Initialized sqlite kv store", "db_path", cfg.SQLiteDBPath)
		return &Result{Store: store, Cleanup: store.Close}, nil
	default:
		logger.Info("Initialized memory kv store")
		return &Result{Store: NewMemoryStore()}, nil
	}
}
