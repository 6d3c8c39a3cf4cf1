// Package events fans change notifications out to anything rendering the
// tracker's state. Subscribers in-process always work; an AMQP publisher
// is layered on top when a broker is configured, so dashboards outside
// the process can refresh too. Reconciliation itself never depends on
// the broker.
package events

import (
	"encoding/json"
	"time"
)

// Event kinds.
const (
	KindTransactionAdded   = "transaction_added"
	KindTransactionDeleted = "transaction_deleted"
	KindSyncPull           = "sync_pull"
	KindSyncPush           = "sync_push"
	KindImportMerged       = "import_merged"
)

// Event is a change notification for one user's ledger.
type Event struct {
	Username  string    `json:"username"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(username, kind string) Event {
	return Event{Username: username, Kind: kind, Timestamp: time.Now()}
}

// ToJSON converts the event to JSON bytes.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON creates an event from JSON bytes.
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
