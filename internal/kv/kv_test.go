package kv

import (
	"context"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("get: got %q ok=%v err=%v", v, ok, err)
	}

	// Overwrite keeps a single entry.
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _, _ := s.Get(ctx, "k"); v != "v2" {
		t.Fatalf("expected overwrite, got %q", v)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 key, got %d", s.Len())
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key gone after delete")
	}

	// Deleting an absent key is a no-op, not an error.
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestBackendTypeIsValid(t *testing.T) {
	if !MemoryBackend.IsValid() || !SQLiteBackend.IsValid() {
		t.Fatalf("known backends must be valid")
	}
	if BackendType("postgres").IsValid() {
		t.Fatalf("unknown backend must be invalid")
	}
}

func TestOpenMemory(t *testing.T) {
	res, err := Open(Config{Type: MemoryBackend}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Store == nil {
		t.Fatalf("expected a store")
	}
	if res.Cleanup != nil {
		t.Fatalf("memory store needs no cleanup")
	}
}

func TestOpenInvalid(t *testing.T) {
	if _, err := Open(Config{Type: BackendType("bogus")}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
