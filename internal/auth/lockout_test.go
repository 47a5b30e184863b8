package auth

import (
	"fmt"
	"testing"
	"time"
)

func TestLockoutAfterThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewLockoutTracker(WithLockoutClock(func() time.Time { return now }))

	for i := 0; i < 4; i++ {
		if tracker.RecordFailure("a@example.com") {
			t.Fatalf("locked after %d failures", i+1)
		}
	}
	if !tracker.RecordFailure("a@example.com") {
		t.Fatal("fifth failure did not lock")
	}
	if !tracker.Locked("a@example.com") {
		t.Fatal("expected locked state")
	}
	if tracker.Locked("b@example.com") {
		t.Fatal("other keys must be unaffected")
	}

	now = now.Add(15*time.Minute - time.Second)
	if !tracker.Locked("a@example.com") {
		t.Fatal("lock released early")
	}
	now = now.Add(time.Second)
	if tracker.Locked("a@example.com") {
		t.Fatal("lock not released after its duration")
	}
}

func TestLockoutWindowResetsCount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewLockoutTracker(WithLockoutClock(func() time.Time { return now }))

	for i := 0; i < 4; i++ {
		tracker.RecordFailure("a@example.com")
	}
	// Stale failures stop counting once the window passes.
	now = now.Add(6 * time.Minute)
	if tracker.RecordFailure("a@example.com") {
		t.Fatal("stale failures still counted toward the lock")
	}
}

func TestLockoutSweepsStaleEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewLockoutTracker(WithLockoutClock(func() time.Time { return now }))

	// Spraying nonexistent emails must not grow the map forever.
	for i := 0; i < 100; i++ {
		tracker.RecordFailure(fmt.Sprintf("ghost%d@example.com", i))
	}
	// An active lock outlives its failure window.
	for i := 0; i < 5; i++ {
		tracker.RecordFailure("locked@example.com")
	}

	now = now.Add(failureWindow + time.Minute)
	tracker.RecordFailure("fresh@example.com")

	tracker.mu.Lock()
	size := len(tracker.state)
	_, lockedKept := tracker.state["locked@example.com"]
	_, ghostKept := tracker.state["ghost0@example.com"]
	tracker.mu.Unlock()
	if ghostKept {
		t.Fatal("stale entry survived the sweep")
	}
	if !lockedKept {
		t.Fatal("locked entry was swept while its lock was active")
	}
	if size != 2 {
		t.Fatalf("tracker holds %d entries, want 2", size)
	}
	if !tracker.Locked("locked@example.com") {
		t.Fatal("lock lost across the sweep")
	}
}

func TestLockoutReset(t *testing.T) {
	tracker := NewLockoutTracker()
	for i := 0; i < 4; i++ {
		tracker.RecordFailure("a@example.com")
	}
	tracker.Reset("a@example.com")
	if tracker.RecordFailure("a@example.com") {
		t.Fatal("failure after reset locked immediately")
	}
}
