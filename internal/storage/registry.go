package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/kv"
)

// SchemaVersion is stamped into the registry record. A mismatch on load
// restamps the record; no field transformation happens yet.
const SchemaVersion = 1

var (
	ErrDuplicateUser      = errors.New("user already exists")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Registry is the single shared record all tabs reconcile against. The
// users and ledgers maps share a key set for every user that ever
// registered; Load normalizes the record to keep that invariant.
type Registry struct {
	Users       map[string]core.User   `json:"users"`
	Ledgers     map[string]core.Ledger `json:"transactions"`
	Version     int                    `json:"version"`
	LastUpdated time.Time              `json:"lastUpdated"`
}

func newRegistry() *Registry {
	return &Registry{
		Users:   make(map[string]core.User),
		Ledgers: make(map[string]core.Ledger),
		Version: SchemaVersion,
	}
}

func (r *Registry) normalize() {
	if r.Users == nil {
		r.Users = make(map[string]core.User)
	}
	if r.Ledgers == nil {
		r.Ledgers = make(map[string]core.Ledger)
	}
	for username := range r.Users {
		if _, ok := r.Ledgers[username]; !ok {
			r.Ledgers[username] = core.Ledger{}
		}
	}
}

// RegistryStore reads and writes the global registry record.
type RegistryStore struct {
	store kv.Store
	now   func() time.Time
}

func NewRegistryStore(store kv.Store) *RegistryStore {
	return &RegistryStore{store: store, now: time.Now}
}

// Load reads the shared record. An absent record initializes a fresh one
// at the current schema version; corrupt JSON silently degrades to a
// fresh empty registry. A version mismatch restamps the record, a
// placeholder for future migrations.
func (s *RegistryStore) Load(ctx context.Context) *Registry {
	raw, ok, err := s.store.Get(ctx, keyGlobalData)
	if err != nil || !ok {
		if err != nil {
			slog.WarnContext(ctx, "Failed to read global registry, using empty", "error", err)
		}
		reg := newRegistry()
		if err := s.Save(ctx, reg); err != nil {
			slog.WarnContext(ctx, "Failed to initialize global registry", "error", err)
		}
		return reg
	}

	reg := newRegistry()
	if err := json.Unmarshal([]byte(raw), reg); err != nil {
		slog.WarnContext(ctx, "Corrupt global registry, using empty", "error", err)
		return newRegistry()
	}
	reg.normalize()

	if reg.Version != SchemaVersion {
		slog.InfoContext(ctx, "Registry schema version changed",
			"from", reg.Version, "to", SchemaVersion)
		reg.Version = SchemaVersion
		if err := s.Save(ctx, reg); err != nil {
			slog.WarnContext(ctx, "Failed to restamp registry version", "error", err)
		}
	}
	return reg
}

// Save persists the registry with a refreshed updated-time. A failure
// means the changes are not yet durable; callers retry on a later tick.
func (s *RegistryStore) Save(ctx context.Context, reg *Registry) error {
	reg.LastUpdated = s.now()
	raw, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("%w: marshal registry: %v", kv.ErrStorageFailure, err)
	}
	if err := s.store.Set(ctx, keyGlobalData, string(raw)); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

// RegisterUser inserts the user with an empty ledger.
func (s *RegistryStore) RegisterUser(ctx context.Context, u core.User) error {
	reg := s.Load(ctx)
	if _, exists := reg.Users[u.Username]; exists {
		return ErrDuplicateUser
	}
	reg.Users[u.Username] = u
	reg.Ledgers[u.Username] = core.Ledger{}
	return s.Save(ctx, reg)
}

// FindUser authenticates by exact, case-sensitive username and password
// match. Misses and wrong passwords are indistinguishable to the caller.
func (s *RegistryStore) FindUser(ctx context.Context, username, password string) (core.User, error) {
	reg := s.Load(ctx)
	u, ok := reg.Users[username]
	if !ok || u.Password != password {
		return core.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// User looks up a user record without checking credentials.
func (s *RegistryStore) User(ctx context.Context, username string) (core.User, error) {
	reg := s.Load(ctx)
	u, ok := reg.Users[username]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return u, nil
}
