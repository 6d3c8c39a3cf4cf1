package impexp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/kv"
	"fintrack/internal/reconcile"
	"fintrack/internal/storage"
)

func newFixture(t *testing.T) (*Merger, *storage.RegistryStore, *storage.LedgerStore) {
	t.Helper()
	store := kv.NewMemoryStore()
	registry := storage.NewRegistryStore(store)
	mirror := storage.NewLedgerStore(store)
	engine := reconcile.NewEngine(registry, mirror, reconcile.Config{Interval: time.Hour})

	err := registry.RegisterUser(context.Background(), core.User{
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "Abc123",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewMerger(registry, engine), registry, mirror
}

func tx(id string, cents int64) core.Transaction {
	return core.Transaction{
		ID:          id,
		Type:        core.Expense,
		Amount:      core.Money{Cents: cents},
		Category:    "Продукты",
		Description: "t",
		Date:        time.Now(),
	}
}

func seedRegistryLedger(t *testing.T, registry *storage.RegistryStore, username string, l core.Ledger) {
	t.Helper()
	ctx := context.Background()
	reg := registry.Load(ctx)
	reg.Ledgers[username] = l
	u := reg.Users[username]
	u.LastModified = time.Now()
	reg.Users[username] = u
	if err := registry.Save(ctx, reg); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	m, registry, _ := newFixture(t)
	seedRegistryLedger(t, registry, "alice", core.Ledger{tx("1", 100), tx("2", 200)})

	doc, err := m.Export(ctx, "alice")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if doc.User == nil || doc.User.Username != "alice" {
		t.Fatalf("unexpected user %+v", doc.User)
	}
	if len(doc.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(doc.Transactions))
	}
	if doc.Version != storage.SchemaVersion || doc.ExportDate.IsZero() {
		t.Fatalf("unexpected metadata %+v", doc)
	}
}

func TestExportUnknownUser(t *testing.T) {
	m, _, _ := newFixture(t)
	if _, err := m.Export(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImportRejectsBadDocuments(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newFixture(t)

	if _, err := m.Import(ctx, Document{Transactions: []core.Transaction{}}, "alice"); !errors.Is(err, ErrFormatInvalid) {
		t.Fatalf("missing user: expected ErrFormatInvalid, got %v", err)
	}
	if _, err := m.Import(ctx, Document{User: &core.User{Username: "alice"}}, "alice"); !errors.Is(err, ErrFormatInvalid) {
		t.Fatalf("missing transactions: expected ErrFormatInvalid, got %v", err)
	}
	doc := Document{User: &core.User{Username: "bob"}, Transactions: []core.Transaction{}}
	if _, err := m.Import(ctx, doc, "alice"); !errors.Is(err, ErrUserMismatch) {
		t.Fatalf("expected ErrUserMismatch, got %v", err)
	}
}

func TestImportMergesDisjoint(t *testing.T) {
	ctx := context.Background()
	m, registry, mirror := newFixture(t)
	seedRegistryLedger(t, registry, "alice", core.Ledger{tx("1", 100)})

	doc := Document{
		User:         &core.User{Username: "alice"},
		Transactions: []core.Transaction{tx("2", 200), tx("3", 300)},
	}
	res, err := m.Import(ctx, doc, "alice")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Merged != 2 || res.Skipped != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	reg := registry.Load(ctx)
	if len(reg.Ledgers["alice"]) != 3 {
		t.Fatalf("expected 3 transactions in registry, got %d", len(reg.Ledgers["alice"]))
	}
	// The post-import sync pulled the merged ledger into the mirror.
	if l := mirror.ReadLedger(ctx, "alice"); len(l) != 3 {
		t.Fatalf("expected mirror to pick up merge, got %d entries", len(l))
	}
}

func TestImportDeduplicatesByID(t *testing.T) {
	ctx := context.Background()
	m, registry, _ := newFixture(t)
	seedRegistryLedger(t, registry, "alice", core.Ledger{tx("1", 100), tx("2", 200)})

	doc := Document{
		User:         &core.User{Username: "alice"},
		Transactions: []core.Transaction{tx("2", 200), tx("3", 300)},
	}
	res, err := m.Import(ctx, doc, "alice")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Merged != 1 || res.Skipped != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExportImportIdempotent(t *testing.T) {
	ctx := context.Background()
	m, registry, _ := newFixture(t)
	seedRegistryLedger(t, registry, "alice", core.Ledger{tx("1", 100), tx("2", 200)})

	doc, err := m.Export(ctx, "alice")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	res, err := m.Import(ctx, doc, "alice")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Merged != 0 || res.Skipped != 2 {
		t.Fatalf("re-importing an export must merge nothing, got %+v", res)
	}
}

func TestParseRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, registry, _ := newFixture(t)
	seedRegistryLedger(t, registry, "alice", core.Ledger{tx("1", 100)})

	doc, err := m.Export(ctx, "alice")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.User == nil || parsed.User.Username != "alice" || len(parsed.Transactions) != 1 {
		t.Fatalf("unexpected parsed document %+v", parsed)
	}

	if _, err := Parse([]byte("not json")); !errors.Is(err, ErrFormatInvalid) {
		t.Fatalf("expected ErrFormatInvalid, got %v", err)
	}
}
