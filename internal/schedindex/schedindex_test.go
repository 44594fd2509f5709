package schedindex

import (
	"context"
	"testing"
	"time"

	"cronbridge"
)

// TestUpsertReplaces is invariant I-1: at most one NextFiring per
// schedule id.
func TestUpsertReplaces(t *testing.T) {
	x := New()
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	x.Upsert(cronbridge.NextFiring{ScheduleID: "S1", FiresAtUTC: t1})
	x.Upsert(cronbridge.NextFiring{ScheduleID: "S1", FiresAtUTC: t2})

	if got := x.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	got, ok := x.PeekEarliest()
	if !ok {
		t.Fatal("expected an entry")
	}
	if !got.FiresAtUTC.Equal(t2) {
		t.Fatalf("PeekEarliest() = %v, want %v", got.FiresAtUTC, t2)
	}
}

// TestOrderedView is invariant I-2: the ordered view stays consistent
// with the map.
func TestOrderedView(t *testing.T) {
	x := New()
	x.Upsert(cronbridge.NextFiring{ScheduleID: "S1", FiresAtUTC: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)})
	x.Upsert(cronbridge.NextFiring{ScheduleID: "S2", FiresAtUTC: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	x.Upsert(cronbridge.NextFiring{ScheduleID: "S3", FiresAtUTC: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)})

	snap := x.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].FiresAtUTC.Before(snap[i-1].FiresAtUTC) {
			t.Fatalf("Snapshot() not ordered: %v before %v", snap[i].FiresAtUTC, snap[i-1].FiresAtUTC)
		}
	}
	earliest, _ := x.PeekEarliest()
	if earliest.ScheduleID != "S2" {
		t.Fatalf("PeekEarliest() = %s, want S2", earliest.ScheduleID)
	}
}

func TestRemove(t *testing.T) {
	x := New()
	x.Upsert(cronbridge.NextFiring{ScheduleID: "S1", FiresAtUTC: time.Now().UTC()})
	x.Remove("S1")
	if got := x.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0 after Remove", got)
	}
	x.Remove("nonexistent")
}

func TestWaitUntilDueReturnsPastEntry(t *testing.T) {
	x := New()
	past := time.Now().UTC().Add(-time.Hour)
	x.Upsert(cronbridge.NextFiring{ScheduleID: "S1", FiresAtUTC: past})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	due, err := x.WaitUntilDue(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if due.ScheduleID != "S1" {
		t.Fatalf("got %s, want S1", due.ScheduleID)
	}
}

func TestWaitUntilDueObservesLateInsertion(t *testing.T) {
	x := New()
	x.Upsert(cronbridge.NextFiring{ScheduleID: "far", FiresAtUTC: time.Now().UTC().Add(time.Hour)})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan cronbridge.NextFiring, 1)
	go func() {
		due, err := x.WaitUntilDue(ctx, 20*time.Millisecond)
		if err == nil {
			done <- due
		}
	}()

	time.Sleep(50 * time.Millisecond)
	x.Upsert(cronbridge.NextFiring{ScheduleID: "near", FiresAtUTC: time.Now().UTC().Add(-time.Minute)})

	select {
	case due := <-done:
		if due.ScheduleID != "near" {
			t.Fatalf("got %s, want near", due.ScheduleID)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitUntilDue did not observe the late insertion")
	}
}

func TestWaitUntilDueCancellation(t *testing.T) {
	x := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := x.WaitUntilDue(ctx, time.Millisecond); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}
