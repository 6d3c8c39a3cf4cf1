package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/storage"
)

// Config holds engine settings.
type Config struct {
	// Interval is how often the periodic tick fires (default: 5s).
	Interval time.Duration
}

// DefaultConfig returns engine defaults.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second}
}

// Status is the sync indicator surfaced to the presentation layer.
type Status struct {
	LastSync   time.Time `json:"lastSync"`
	LastAction string    `json:"lastAction"`
	LastError  string    `json:"lastError,omitempty"`
}

// ChangeFunc is called after a cycle that moved data in either direction,
// so the UI can refresh its derived aggregates.
type ChangeFunc func(username string, action Action)

// Engine reconciles the current user's local mirror against the global
// registry. Cross-process races resolve by last write wins at the storage
// layer; two simultaneous pushes are not serialized and the later write
// survives. That is an accepted limitation, not something the engine
// works around.
type Engine struct {
	registry *storage.RegistryStore
	mirror   *storage.LedgerStore
	config   Config
	now      func() time.Time
	onChange ChangeFunc

	mu       sync.Mutex
	running  bool
	username string
	status   Status
	stopCh   chan struct{}
	doneCh   chan struct{}

	triggerCh chan Trigger
}

func NewEngine(registry *storage.RegistryStore, mirror *storage.LedgerStore, config Config) *Engine {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Engine{
		registry:  registry,
		mirror:    mirror,
		config:    config,
		now:       time.Now,
		triggerCh: make(chan Trigger, 8),
	}
}

// OnChange registers the change callback. Must be set before Start.
func (e *Engine) OnChange(fn ChangeFunc) {
	e.onChange = fn
}

// SetUser sets the user the periodic loop reconciles. An empty username
// makes ticks no-ops, which is how logout clears the timer's work.
func (e *Engine) SetUser(username string) {
	e.mu.Lock()
	e.username = username
	e.mu.Unlock()
}

func (e *Engine) currentUser() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.username
}

// Status returns the last cycle's outcome.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Start begins the reconciliation loop. Returns an error if already
// running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("reconcile engine is already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	go e.runLoop(ctx)

	slog.InfoContext(ctx, "Reconcile engine started", "interval", e.config.Interval)
	return nil
}

// Stop gracefully stops the loop and waits for completion.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	close(e.stopCh)

	select {
	case <-e.doneCh:
		slog.InfoContext(ctx, "Reconcile engine stopped")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile engine stop timed out")
		return ctx.Err()
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	return nil
}

// IsRunning reports whether the loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Trigger requests an out-of-band cycle, used for the focus, visibility
// and manual sync edges. Never blocks; a full queue drops the request
// because a cycle is already pending.
func (e *Engine) Trigger(t Trigger) {
	select {
	case e.triggerCh <- t:
	default:
	}
}

func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	e.runCycle(ctx, TriggerStartup)

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycle(ctx, TriggerTick)
		case t := <-e.triggerCh:
			e.runCycle(ctx, t)
		}
	}
}

// runCycle executes one reconciliation for the current user. Errors are
// logged as non-fatal sync problems and recorded in the status; nothing
// is mutated on failure and the next tick retries.
func (e *Engine) runCycle(ctx context.Context, trigger Trigger) {
	username := e.currentUser()
	if username == "" {
		return
	}
	_, _ = e.RunOnce(ctx, username, trigger)
}

// RunOnce executes one full cycle for a user: sync, status update and
// change notification. Manual sync requests go through here so the
// status indicator reflects them the same as periodic ticks.
func (e *Engine) RunOnce(ctx context.Context, username string, trigger Trigger) (Action, error) {
	action, err := e.SyncUser(ctx, username)

	e.mu.Lock()
	e.status.LastAction = action.String()
	if err != nil {
		e.status.LastError = err.Error()
	} else {
		e.status.LastError = ""
		e.status.LastSync = e.now()
	}
	e.mu.Unlock()

	if err != nil {
		slog.WarnContext(ctx, "Sync cycle failed",
			"username", username, "trigger", trigger, "error", err)
		return action, err
	}

	if action != ActionNone {
		slog.InfoContext(ctx, "Sync cycle completed",
			"username", username, "trigger", trigger, "action", action.String())
		if e.onChange != nil {
			e.onChange(username, action)
		}
	}
	return action, nil
}

// SyncUser runs the comparison for one user and applies the decided
// action. Safe to call outside the loop; import uses it for the
// push-direction reconciliation after a merge.
func (e *Engine) SyncUser(ctx context.Context, username string) (Action, error) {
	reg := e.registry.Load(ctx)

	var global *time.Time
	if u, ok := reg.Users[username]; ok && !u.LastModified.IsZero() {
		ts := u.LastModified
		global = &ts
	}
	var local *time.Time
	if ts, ok := e.mirror.LastModified(ctx, username); ok {
		local = &ts
	}

	action := Decide(global, local)
	switch action {
	case ActionPull:
		var stamp time.Time
		if global != nil {
			stamp = *global
		}
		if err := e.mirror.WriteMirror(ctx, username, reg.Ledgers[username], stamp); err != nil {
			return action, fmt.Errorf("pull: %w", err)
		}
	case ActionPush:
		now := e.now()
		reg.Ledgers[username] = e.mirror.ReadLedger(ctx, username)
		if u, ok := reg.Users[username]; ok {
			u.LastModified = now
			reg.Users[username] = u
		}
		if err := e.registry.Save(ctx, reg); err != nil {
			return action, fmt.Errorf("push: %w", err)
		}
		// Stamp the mirror to the same instant so the next comparison
		// sees equality instead of a false pending push.
		if err := e.mirror.StampLastModified(ctx, username, now); err != nil {
			return action, fmt.Errorf("push: %w", err)
		}
	}
	return action, nil
}
