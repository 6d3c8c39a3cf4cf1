// Package reconcile keeps a user's local ledger mirror and the global
// registry converged. One routine runs the comparison; a periodic tick and
// the edge triggers (focus regained, visibility regained, manual sync) all
// feed it through the same channel.
package reconcile

import "time"

// Action is the outcome of comparing the global and local last-modified
// stamps for a user.
type Action int

const (
	// ActionNone means the stamps are equal: already converged. A merge of
	// divergent edits made since the last sync is deliberately not
	// attempted here; that stays a product decision.
	ActionNone Action = iota
	// ActionPull overwrites the local mirror from the registry.
	ActionPull
	// ActionPush overwrites the registry from the local mirror.
	ActionPush
)

func (a Action) String() string {
	switch a {
	case ActionPull:
		return "pull"
	case ActionPush:
		return "push"
	default:
		return "none"
	}
}

// Trigger names the source that requested a reconciliation cycle.
type Trigger string

const (
	TriggerTick       Trigger = "tick"
	TriggerFocus      Trigger = "focus"
	TriggerVisibility Trigger = "visibility"
	TriggerManual     Trigger = "manual"
	TriggerStartup    Trigger = "startup"
)

// Decide picks the sync direction from the two last-modified instants.
// A nil pointer means the stamp is absent.
//
//	both absent          -> pull (first sync)
//	global absent        -> push
//	local absent         -> pull
//	global after local   -> pull
//	local after global   -> push
//	equal                -> none
func Decide(global, local *time.Time) Action {
	switch {
	case global == nil && local == nil:
		return ActionPull
	case global == nil:
		return ActionPush
	case local == nil:
		return ActionPull
	case global.After(*local):
		return ActionPull
	case local.After(*global):
		return ActionPush
	default:
		return ActionNone
	}
}
