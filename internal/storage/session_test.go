package storage

import (
	"context"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/kv"
)

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(kv.NewMemoryStore())

	if _, ok := s.Load(ctx); ok {
		t.Fatalf("expected no session initially")
	}

	sess := Session{User: core.User{Username: "alice", Email: "a@b.c"}, Token: "tok"}
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok := s.Load(ctx)
	if !ok || got.User.Username != "alice" || got.Token != "tok" {
		t.Fatalf("unexpected session %+v ok=%v", got, ok)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := s.Load(ctx); ok {
		t.Fatalf("expected session gone after clear")
	}
}

func TestSessionCorruptOrIncomplete(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := NewSessionStore(store)

	if err := store.Set(ctx, "financeAuth", "{oops"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := s.Load(ctx); ok {
		t.Fatalf("corrupt session must read as absent")
	}

	// A record without a token is not an authenticated session.
	if err := store.Set(ctx, "financeAuth", `{"user":{"username":"alice"}}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := s.Load(ctx); ok {
		t.Fatalf("tokenless session must read as absent")
	}
}
