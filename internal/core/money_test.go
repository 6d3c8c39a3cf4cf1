package core

import (
	"encoding/json"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"12.34", 1234, true},
		{"12,34", 1234, true},
		{"12", 1200, true},
		{"0.01", 1, true},
		{"12.345", 1234, true},
		{"12.346", 1235, true},
		{"", 0, false},
		{"-5", 0, false},
		{"+5", 0, false},
		{"0", 0, false},
		{"1.2.3", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: got %d, %v; want %d", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.in)
		}
	}
}

func TestMoneyJSONBareInteger(t *testing.T) {
	b, err := json.Marshal(Money{Cents: 10050})
	if err != nil || string(b) != "10050" {
		t.Fatalf("got %s, %v", b, err)
	}
	var m Money
	if err := json.Unmarshal([]byte("1234"), &m); err != nil || m.Cents != 1234 {
		t.Fatalf("got %+v, %v", m, err)
	}
	if err := json.Unmarshal([]byte(`"12.34"`), &m); err == nil {
		t.Fatal("expected error for quoted amount")
	}
}

func TestMoneyString(t *testing.T) {
	if got := (Money{Cents: 1234}).String(); got != "12.34" {
		t.Fatalf("got %q", got)
	}
	if got := (Money{Cents: -5}).String(); got != "-0.05" {
		t.Fatalf("got %q", got)
	}
}
