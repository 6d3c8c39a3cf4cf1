// Package impexp moves a user's ledger in and out of the tracker as a
// portable JSON document. Imports are strictly self-scoped: a user may
// only import their own export.
package impexp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/reconcile"
	"fintrack/internal/storage"
)

var (
	ErrFormatInvalid = errors.New("invalid document format")
	ErrUserMismatch  = errors.New("document belongs to a different user")
)

// Document is the portable export format. User and Transactions must both
// be present for the document to import.
type Document struct {
	User         *core.User         `json:"user"`
	Transactions []core.Transaction `json:"transactions"`
	ExportDate   time.Time          `json:"exportDate"`
	Version      int                `json:"version"`
}

// MergeResult reports what an import did.
type MergeResult struct {
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
}

// Syncer runs a reconciliation cycle for one user; satisfied by the
// reconcile engine.
type Syncer interface {
	SyncUser(ctx context.Context, username string) (reconcile.Action, error)
}

// Merger builds and merges export documents against the global registry.
type Merger struct {
	registry *storage.RegistryStore
	syncer   Syncer
	now      func() time.Time
}

func NewMerger(registry *storage.RegistryStore, syncer Syncer) *Merger {
	return &Merger{registry: registry, syncer: syncer, now: time.Now}
}

// Export builds the document for a user from the global registry. Pure
// read, no mutation.
func (m *Merger) Export(ctx context.Context, username string) (Document, error) {
	reg := m.registry.Load(ctx)
	u, ok := reg.Users[username]
	if !ok {
		return Document{}, fmt.Errorf("export %s: %w", username, storage.ErrNotFound)
	}
	ledger := reg.Ledgers[username]
	if ledger == nil {
		ledger = core.Ledger{}
	}
	return Document{
		User:         &u,
		Transactions: ledger,
		ExportDate:   m.now(),
		Version:      storage.SchemaVersion,
	}, nil
}

// Parse decodes a serialized document.
func Parse(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFormatInvalid, err)
	}
	return doc, nil
}

// Import merges the document's transactions into the current user's
// registry ledger, deduplicating by transaction id, then runs a
// reconciliation cycle so the local mirror picks up the merged result.
func (m *Merger) Import(ctx context.Context, doc Document, currentUsername string) (MergeResult, error) {
	if doc.User == nil || doc.Transactions == nil {
		return MergeResult{}, ErrFormatInvalid
	}
	if doc.User.Username != currentUsername {
		return MergeResult{}, ErrUserMismatch
	}

	reg := m.registry.Load(ctx)
	existing := reg.Ledgers[currentUsername]
	ids := existing.IDs()

	merged := make(core.Ledger, 0, len(doc.Transactions))
	for _, t := range doc.Transactions {
		if _, dup := ids[t.ID]; dup {
			continue
		}
		merged = append(merged, t)
	}
	result := MergeResult{Merged: len(merged), Skipped: len(doc.Transactions) - len(merged)}
	if result.Merged == 0 {
		return result, nil
	}

	reg.Ledgers[currentUsername] = append(existing, merged...)
	if u, ok := reg.Users[currentUsername]; ok {
		u.LastModified = m.now()
		reg.Users[currentUsername] = u
	}
	if err := m.registry.Save(ctx, reg); err != nil {
		return MergeResult{}, fmt.Errorf("persist merged registry: %w", err)
	}

	if m.syncer != nil {
		if _, err := m.syncer.SyncUser(ctx, currentUsername); err != nil {
			// The merge is durable; the mirror catches up on a later tick.
			slog.WarnContext(ctx, "Post-import sync failed",
				"username", currentUsername, "error", err)
		}
	}

	slog.InfoContext(ctx, "Imported transactions",
		"username", currentUsername, "merged", result.Merged, "skipped", result.Skipped)
	return result, nil
}
