package reconcile

import (
	"testing"
	"time"
)

func TestDecide(t *testing.T) {
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	cases := []struct {
		name   string
		global *time.Time
		local  *time.Time
		want   Action
	}{
		{"both absent", nil, nil, ActionPull},
		{"global absent", nil, &older, ActionPush},
		{"local absent", &older, nil, ActionPull},
		{"global newer", &newer, &older, ActionPull},
		{"local newer", &older, &newer, ActionPush},
		{"equal", &older, &older, ActionNone},
	}
	for _, tc := range cases {
		if got := Decide(tc.global, tc.local); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestActionString(t *testing.T) {
	if ActionPull.String() != "pull" || ActionPush.String() != "push" || ActionNone.String() != "none" {
		t.Fatalf("unexpected action names")
	}
}
