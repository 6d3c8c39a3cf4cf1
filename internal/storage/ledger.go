package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/kv"
)

// LedgerStore is the per-user local mirror: a cached copy of the ledger
// plus a standalone last-modified stamp, stored outside the global
// registry so a tab can work offline and detect conflicts later.
type LedgerStore struct {
	store kv.Store
	now   func() time.Time
}

func NewLedgerStore(store kv.Store) *LedgerStore {
	return &LedgerStore{store: store, now: time.Now}
}

// ReadLedger returns the cached ledger for the user. A missing key or a
// value that fails to parse degrades to an empty ledger, never an error.
func (s *LedgerStore) ReadLedger(ctx context.Context, username string) core.Ledger {
	raw, ok, err := s.store.Get(ctx, ledgerKey(username))
	if err != nil || !ok {
		if err != nil {
			slog.WarnContext(ctx, "Failed to read local ledger, using empty",
				"username", username, "error", err)
		}
		return core.Ledger{}
	}
	var l core.Ledger
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		slog.WarnContext(ctx, "Corrupt local ledger, using empty",
			"username", username, "error", err)
		return core.Ledger{}
	}
	return l
}

// WriteLedger persists the ledger and stamps the mirror's last-modified
// with the current instant.
func (s *LedgerStore) WriteLedger(ctx context.Context, username string, l core.Ledger) error {
	if err := s.writeLedgerOnly(ctx, username, l); err != nil {
		return err
	}
	return s.StampLastModified(ctx, username, s.now())
}

// WriteMirror overwrites the ledger and the last-modified stamp together,
// used when pulling the global copy so both sides compare equal afterward.
// A zero instant leaves the stamp untouched, which happens on a first sync
// against a registry that carries no last-modified for the user yet.
func (s *LedgerStore) WriteMirror(ctx context.Context, username string, l core.Ledger, at time.Time) error {
	if err := s.writeLedgerOnly(ctx, username, l); err != nil {
		return err
	}
	if at.IsZero() {
		return nil
	}
	return s.StampLastModified(ctx, username, at)
}

func (s *LedgerStore) writeLedgerOnly(ctx context.Context, username string, l core.Ledger) error {
	if l == nil {
		l = core.Ledger{}
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("%w: marshal ledger: %v", kv.ErrStorageFailure, err)
	}
	if err := s.store.Set(ctx, ledgerKey(username), string(raw)); err != nil {
		return fmt.Errorf("write ledger for %s: %w", username, err)
	}
	return nil
}

// AppendTransaction reads, appends and rewrites the user's ledger.
func (s *LedgerStore) AppendTransaction(ctx context.Context, username string, t core.Transaction) error {
	l := s.ReadLedger(ctx, username)
	l = append(l, t)
	return s.WriteLedger(ctx, username, l)
}

// RemoveTransaction drops the transaction with the given id and rewrites
// the ledger and stamp. An absent id is not an error.
func (s *LedgerStore) RemoveTransaction(ctx context.Context, username, id string) error {
	l := s.ReadLedger(ctx, username)
	out := make(core.Ledger, 0, len(l))
	for _, t := range l {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return s.WriteLedger(ctx, username, out)
}

// LastModified returns the mirror's last-modified stamp. The bool is
// false when no stamp exists or the stored value does not parse.
func (s *LedgerStore) LastModified(ctx context.Context, username string) (time.Time, bool) {
	raw, ok, err := s.store.Get(ctx, lastModifiedKey(username))
	if err != nil || !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		slog.WarnContext(ctx, "Corrupt local last-modified stamp",
			"username", username, "error", err)
		return time.Time{}, false
	}
	return ts, true
}

// StampLastModified persists the mirror's last-modified instant.
func (s *LedgerStore) StampLastModified(ctx context.Context, username string, at time.Time) error {
	if err := s.store.Set(ctx, lastModifiedKey(username), at.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("stamp last-modified for %s: %w", username, err)
	}
	return nil
}

// DeviceID returns the opaque per-device identifier, generating and
// persisting one on first use.
func (s *LedgerStore) DeviceID(ctx context.Context) (string, error) {
	id, ok, err := s.store.Get(ctx, keyDeviceID)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}
	id = core.NewDeviceID(s.now())
	if err := s.store.Set(ctx, keyDeviceID, id); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
