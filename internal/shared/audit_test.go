package shared

import (
	"testing"
	"time"
)

func TestOccurredAtDefaultsZeroTime(t *testing.T) {
	before := time.Now().UTC()
	got := occurredAt(time.Time{})
	if got.Before(before) || got.After(time.Now().UTC().Add(time.Second)) {
		t.Fatalf("zero time defaulted to %v, want roughly now", got)
	}
}

func TestOccurredAtKeepsExplicitTime(t *testing.T) {
	at := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	if got := occurredAt(at); !got.Equal(at) {
		t.Fatalf("explicit time changed: %v", got)
	}
}
