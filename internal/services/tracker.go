// Package services exposes the tracker's command surface: the operations
// the presentation layer calls and the change notifications it renders
// from. All state lives in the shared kv store underneath.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/impexp"
	"fintrack/internal/reconcile"
	"fintrack/internal/storage"
)

// ErrNotAuthenticated is returned when an operation requires a session
// and none is stored.
var ErrNotAuthenticated = errors.New("not authenticated")

// Overview bundles the derived views for the current period.
type Overview struct {
	Period        core.Period           `json:"period"`
	Stats         core.Stats            `json:"stats"`
	TopCategories []core.CategoryAmount `json:"topCategories"`
}

// AddTransactionInput is the raw form input a transaction is built from.
type AddTransactionInput struct {
	Type        core.TransactionType
	Amount      string // decimal string, dot or comma separator
	Category    string
	Description string
	Date        time.Time // zero means "now"
}

// Tracker is the finance tracker core behind the UI.
type Tracker struct {
	registry *storage.RegistryStore
	mirror   *storage.LedgerStore
	sessions *storage.SessionStore
	engine   *reconcile.Engine
	merger   *impexp.Merger
	bus      *events.Bus
	overview *cache.LRUCache[Overview]
	topN     int
	now      func() time.Time

	mu     sync.Mutex
	period core.Period
}

func NewTracker(
	registry *storage.RegistryStore,
	mirror *storage.LedgerStore,
	sessions *storage.SessionStore,
	engine *reconcile.Engine,
	merger *impexp.Merger,
	bus *events.Bus,
	topN int,
) *Tracker {
	if topN <= 0 {
		topN = core.DefaultTopCategories
	}
	t := &Tracker{
		registry: registry,
		mirror:   mirror,
		sessions: sessions,
		engine:   engine,
		merger:   merger,
		bus:      bus,
		overview: cache.NewLRUCache[Overview](64, 30*time.Second),
		topN:     topN,
		now:      time.Now,
		period:   core.PeriodMonth,
	}
	if engine != nil {
		engine.OnChange(t.handleSyncChange)
	}
	return t
}

// OverviewCache exposes the cache for cleanup registration.
func (t *Tracker) OverviewCache() *cache.LRUCache[Overview] {
	return t.overview
}

// Resume restores the stored session, if any, and points the
// reconciliation loop at its user. A session for a user the registry no
// longer knows is dropped. Called once on startup.
func (t *Tracker) Resume(ctx context.Context) (core.User, bool) {
	sess, ok := t.sessions.Load(ctx)
	if !ok {
		return core.User{}, false
	}
	if _, err := t.registry.User(ctx, sess.User.Username); err != nil {
		slog.WarnContext(ctx, "Dropping session for unknown user",
			"username", sess.User.Username, "error", err)
		_ = t.sessions.Clear(ctx)
		return core.User{}, false
	}
	if t.engine != nil {
		t.engine.SetUser(sess.User.Username)
	}
	slog.InfoContext(ctx, "Resumed session", "username", sess.User.Username)
	return sess.User, true
}

// Login authenticates against the global registry, stores the session and
// runs an immediate sync so the mirror is current.
func (t *Tracker) Login(ctx context.Context, username, password string) (storage.Session, error) {
	u, err := t.registry.FindUser(ctx, username, password)
	if err != nil {
		return storage.Session{}, err
	}

	sess := storage.Session{User: u.Public(), Token: uuid.NewString()}
	if err := t.sessions.Save(ctx, sess); err != nil {
		return storage.Session{}, fmt.Errorf("store session: %w", err)
	}

	if t.engine != nil {
		t.engine.SetUser(u.Username)
		if _, err := t.engine.RunOnce(ctx, u.Username, reconcile.TriggerStartup); err != nil {
			// Non-fatal: the loop retries on the next tick.
			slog.WarnContext(ctx, "Initial sync failed", "username", u.Username, "error", err)
		}
	}
	t.invalidateOverview(u.Username)

	slog.InfoContext(ctx, "User logged in", "username", u.Username)
	return sess, nil
}

// Register creates the account with an empty ledger and logs it in.
func (t *Tracker) Register(ctx context.Context, username, email, password string) (storage.Session, error) {
	if err := core.ValidateRegistration(username, email, password); err != nil {
		return storage.Session{}, err
	}

	deviceID, err := t.mirror.DeviceID(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to resolve device id", "error", err)
	}

	now := t.now()
	u := core.User{
		Username:     username,
		Email:        email,
		Password:     password,
		CreatedAt:    now,
		LastModified: now,
		DeviceID:     deviceID,
	}
	if err := t.registry.RegisterUser(ctx, u); err != nil {
		return storage.Session{}, err
	}

	sess := storage.Session{User: u.Public(), Token: uuid.NewString()}
	if err := t.sessions.Save(ctx, sess); err != nil {
		return storage.Session{}, fmt.Errorf("store session: %w", err)
	}
	if t.engine != nil {
		t.engine.SetUser(username)
	}

	slog.InfoContext(ctx, "User registered", "username", username)
	return sess, nil
}

// Logout drops the session and detaches the reconciliation loop.
func (t *Tracker) Logout(ctx context.Context) error {
	username, _ := t.currentUsername(ctx)
	if err := t.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if t.engine != nil {
		t.engine.SetUser("")
	}
	if username != "" {
		t.invalidateOverview(username)
		slog.InfoContext(ctx, "User logged out", "username", username)
	}
	return nil
}

// Session returns the stored session, if any.
func (t *Tracker) Session(ctx context.Context) (storage.Session, bool) {
	return t.sessions.Load(ctx)
}

func (t *Tracker) currentUsername(ctx context.Context) (string, error) {
	sess, ok := t.sessions.Load(ctx)
	if !ok {
		return "", ErrNotAuthenticated
	}
	return sess.User.Username, nil
}

// AddTransaction validates the raw input, appends to the local mirror and
// asks for a prompt push.
func (t *Tracker) AddTransaction(ctx context.Context, in AddTransactionInput) (core.Transaction, error) {
	username, err := t.currentUsername(ctx)
	if err != nil {
		return core.Transaction{}, err
	}

	cents, err := core.ParseDecimalToCents(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	now := t.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	tx := core.Transaction{
		ID:          core.NewTransactionID(now),
		Type:        in.Type,
		Amount:      core.Money{Cents: cents},
		Category:    in.Category,
		Description: in.Description,
		Date:        date,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := t.mirror.AppendTransaction(ctx, username, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	t.afterMutation(ctx, username, events.KindTransactionAdded)

	slog.InfoContext(ctx, "Transaction added",
		"username", username,
		"transaction_id", tx.ID,
		"transaction_type", string(tx.Type),
		"amount_cents", tx.Amount.Cents,
		"category", tx.Category)
	return tx, nil
}

// DeleteTransaction removes the entry from the local mirror. An unknown
// id is a no-op, matching the store underneath.
func (t *Tracker) DeleteTransaction(ctx context.Context, id string) error {
	username, err := t.currentUsername(ctx)
	if err != nil {
		return err
	}
	if err := t.mirror.RemoveTransaction(ctx, username, id); err != nil {
		return fmt.Errorf("remove transaction: %w", err)
	}
	t.afterMutation(ctx, username, events.KindTransactionDeleted)

	slog.InfoContext(ctx, "Transaction deleted", "username", username, "transaction_id", id)
	return nil
}

func (t *Tracker) afterMutation(ctx context.Context, username, kind string) {
	t.invalidateOverview(username)
	if t.bus != nil {
		t.bus.Emit(ctx, events.NewEvent(username, kind))
	}
	if t.engine != nil {
		t.engine.Trigger(reconcile.TriggerManual)
	}
}

// SetPeriod changes the window derived views are computed over. Unknown
// values fall back to all-time.
func (t *Tracker) SetPeriod(p core.Period) {
	t.mu.Lock()
	t.period = p.Normalize()
	t.mu.Unlock()
}

// Period returns the current period selector.
func (t *Tracker) Period() core.Period {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// Transactions returns the mirror's ledger filtered by the current
// period, oldest first.
func (t *Tracker) Transactions(ctx context.Context) (core.Ledger, error) {
	username, err := t.currentUsername(ctx)
	if err != nil {
		return nil, err
	}
	l := t.mirror.ReadLedger(ctx, username)
	return core.FilterByPeriod(l, t.Period(), t.now()), nil
}

// Overview returns the period-filtered stats and top categories, cached
// per user and period.
func (t *Tracker) Overview(ctx context.Context) (Overview, error) {
	username, err := t.currentUsername(ctx)
	if err != nil {
		return Overview{}, err
	}
	period := t.Period()

	key := overviewKey(username, period)
	if cached, ok := t.overview.Get(key); ok {
		return cached, nil
	}

	filtered := core.FilterByPeriod(t.mirror.ReadLedger(ctx, username), period, t.now())
	ov := Overview{
		Period:        period,
		Stats:         core.Aggregate(filtered),
		TopCategories: core.TopCategories(filtered, t.topN),
	}
	t.overview.Set(key, ov)
	return ov, nil
}

// Stats returns the period-filtered totals.
func (t *Tracker) Stats(ctx context.Context) (core.Stats, error) {
	ov, err := t.Overview(ctx)
	return ov.Stats, err
}

// TopCategories returns the period-filtered category leaders.
func (t *Tracker) TopCategories(ctx context.Context) ([]core.CategoryAmount, error) {
	ov, err := t.Overview(ctx)
	return ov.TopCategories, err
}

// Export builds the portable document for the current user.
func (t *Tracker) Export(ctx context.Context) (impexp.Document, error) {
	username, err := t.currentUsername(ctx)
	if err != nil {
		return impexp.Document{}, err
	}
	return t.merger.Export(ctx, username)
}

// Import merges a document into the current user's ledger.
func (t *Tracker) Import(ctx context.Context, doc impexp.Document) (impexp.MergeResult, error) {
	username, err := t.currentUsername(ctx)
	if err != nil {
		return impexp.MergeResult{}, err
	}
	res, err := t.merger.Import(ctx, doc, username)
	if err != nil {
		return impexp.MergeResult{}, err
	}
	if res.Merged > 0 {
		t.invalidateOverview(username)
		if t.bus != nil {
			t.bus.Emit(ctx, events.NewEvent(username, events.KindImportMerged))
		}
	}
	return res, nil
}

// SyncNow runs a reconciliation cycle for the current user immediately
// and returns the engine's status.
func (t *Tracker) SyncNow(ctx context.Context, trigger reconcile.Trigger) (reconcile.Status, error) {
	username, err := t.currentUsername(ctx)
	if err != nil {
		return reconcile.Status{}, err
	}
	if _, err := t.engine.RunOnce(ctx, username, trigger); err != nil {
		return t.engine.Status(), fmt.Errorf("sync (%s): %w", trigger, err)
	}
	return t.engine.Status(), nil
}

// SyncStatus returns the engine's last outcome for the UI indicator.
func (t *Tracker) SyncStatus() reconcile.Status {
	return t.engine.Status()
}

// handleSyncChange reacts to cycles that moved data: derived views are
// stale and the UI needs a nudge.
func (t *Tracker) handleSyncChange(username string, action reconcile.Action) {
	t.invalidateOverview(username)
	if t.bus == nil {
		return
	}
	kind := events.KindSyncPull
	if action == reconcile.ActionPush {
		kind = events.KindSyncPush
	}
	t.bus.Emit(context.Background(), events.NewEvent(username, kind))
}

func (t *Tracker) invalidateOverview(username string) {
	for _, p := range []core.Period{core.PeriodMonth, core.PeriodYear, core.PeriodAll} {
		t.overview.Delete(overviewKey(username, p))
	}
}

func overviewKey(username string, p core.Period) string {
	return username + "|" + string(p)
}

// SeedTestUser creates the legacy demo account if it does not exist yet.
func (t *Tracker) SeedTestUser(ctx context.Context) {
	u := core.User{
		Username:     "test",
		Email:        "test@example.com",
		Password:     "Test123",
		CreatedAt:    t.now(),
		LastModified: t.now(),
	}
	if id, err := t.mirror.DeviceID(ctx); err == nil {
		u.DeviceID = id
	}
	err := t.registry.RegisterUser(ctx, u)
	if err != nil && !errors.Is(err, storage.ErrDuplicateUser) {
		slog.WarnContext(ctx, "Failed to seed test user", "error", err)
		return
	}
	if err == nil {
		slog.InfoContext(ctx, "Seeded test user", "username", u.Username)
	}
}
