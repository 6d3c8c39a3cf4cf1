package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/kv"
)

// Session is the current-session auth record. Presence plus parseability
// is the whole authentication check on load; there is no expiry and no
// server-side validation.
type Session struct {
	User  core.User `json:"user"`
	Token string    `json:"token"`
}

// SessionStore persists the single session record.
type SessionStore struct {
	store kv.Store
}

func NewSessionStore(store kv.Store) *SessionStore {
	return &SessionStore{store: store}
}

func (s *SessionStore) Save(ctx context.Context, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%w: marshal session: %v", kv.ErrStorageFailure, err)
	}
	if err := s.store.Set(ctx, keySession, string(raw)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the stored session. Missing or unparseable records report
// no session, never an error.
func (s *SessionStore) Load(ctx context.Context) (Session, bool) {
	raw, ok, err := s.store.Get(ctx, keySession)
	if err != nil || !ok {
		return Session{}, false
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		slog.WarnContext(ctx, "Corrupt session record", "error", err)
		return Session{}, false
	}
	if sess.User.Username == "" || sess.Token == "" {
		return Session{}, false
	}
	return sess, true
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, keySession)
}
