package events

import (
	"context"
	"errors"
	"testing"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.events = append(p.events, e)
	return p.err
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil)
	var got []Event
	bus.Subscribe(func(e Event) { got = append(got, e) })

	bus.Emit(context.Background(), NewEvent("alice", KindTransactionAdded))
	if len(got) != 1 || got[0].Username != "alice" || got[0].Kind != KindTransactionAdded {
		t.Fatalf("unexpected events %+v", got)
	}
	if got[0].Timestamp.IsZero() {
		t.Fatalf("event must carry a timestamp")
	}
}

func TestBusPublishesExternally(t *testing.T) {
	pub := &recordingPublisher{}
	bus := NewBus(pub)
	bus.Emit(context.Background(), NewEvent("alice", KindSyncPush))
	if len(pub.events) != 1 || pub.events[0].Kind != KindSyncPush {
		t.Fatalf("unexpected published events %+v", pub.events)
	}
}

func TestBusPublishFailureIsNonFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	bus := NewBus(pub)
	called := false
	bus.Subscribe(func(Event) { called = true })

	// Must not panic or block; subscribers still run.
	bus.Emit(context.Background(), NewEvent("alice", KindSyncPull))
	if !called {
		t.Fatalf("subscriber skipped on publish failure")
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	e := NewEvent("alice", KindImportMerged)
	raw, err := e.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := EventFromJSON(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Username != e.Username || got.Kind != e.Kind {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, e)
	}
}
