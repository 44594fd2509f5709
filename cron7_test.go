package cronbridge

import (
	"testing"
	"time"
)

func TestNormaliseFieldCounts(t *testing.T) {
	cases := []string{
		"*/5 * * * *",
		"0 */5 * * * *",
		"0 0 7 * * * *",
		"0 0 7 * * MON-FRI *",
	}
	for _, s := range cases {
		c, err := Normalise(s)
		if err != nil {
			t.Fatalf("Normalise(%q): %v", s, err)
		}
		if c.Seconds == "" || c.Year == "" {
			t.Fatalf("Normalise(%q) produced incomplete Cron7: %+v", s, c)
		}
	}
}

func TestNormaliseRejectsBadFieldCount(t *testing.T) {
	_, err := Normalise("* * *")
	if err == nil {
		t.Fatal("expected error for 3-field input")
	}
}

// TestNextNFiringsMonotonic is property P-1: firings must be strictly
// increasing.
func TestNextNFiringsMonotonic(t *testing.T) {
	c, err := Normalise("*/5 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	firings, inert := NextNFirings(c, time.UTC, now, 10)
	if inert {
		t.Fatal("expected a live cron")
	}
	if len(firings) != 10 {
		t.Fatalf("got %d firings, want 10", len(firings))
	}
	for i := 1; i < len(firings); i++ {
		if !firings[i].After(firings[i-1]) {
			t.Fatalf("firings not strictly increasing at index %d: %v <= %v", i, firings[i], firings[i-1])
		}
	}
}

// TestNextNFiringsSpringForward is property P-2: a 7am-local daily
// cron in America/Los_Angeles crosses the spring-forward boundary
// from 15:00Z to 14:00Z.
func TestNextNFiringsSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	c, err := Normalise("0 0 7 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	// 2026-03-08 is the US spring-forward date.
	before := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	firings, inert := NextNFirings(c, loc, before, 3)
	if inert {
		t.Fatal("expected a live cron")
	}
	if len(firings) != 3 {
		t.Fatalf("got %d firings, want 3", len(firings))
	}
	if firings[0].Hour() != 15 {
		t.Fatalf("firing before spring-forward: got hour %d, want 15 (UTC)", firings[0].Hour())
	}
	if firings[1].Hour() != 14 {
		t.Fatalf("firing on spring-forward day: got hour %d, want 14 (UTC)", firings[1].Hour())
	}
}

// TestNextNFiringsFallBack is property P-2's fall-back half: the
// firing moves from 14:00Z back to 15:00Z.
func TestNextNFiringsFallBack(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	c, err := Normalise("0 0 7 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	// 2026-11-01 is the US fall-back date.
	before := time.Date(2026, 10, 31, 12, 0, 0, 0, time.UTC)
	firings, inert := NextNFirings(c, loc, before, 3)
	if inert {
		t.Fatal("expected a live cron")
	}
	if firings[0].Hour() != 14 {
		t.Fatalf("firing before fall-back: got hour %d, want 14 (UTC)", firings[0].Hour())
	}
	if firings[1].Hour() != 15 {
		t.Fatalf("firing on fall-back day: got hour %d, want 15 (UTC)", firings[1].Hour())
	}
}

// TestNextNFiringsSkipsNonexistentLocalTime exercises a cron firing
// at a wall-clock time that does not exist on the spring-forward day
// itself (here a 2:00am-local schedule in America/Los_Angeles, whose
// clocks jump from 2:00 to 3:00).
func TestNextNFiringsSkipsNonexistentLocalTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	c, err := Normalise("0 0 2 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	before := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	firings, inert := NextNFirings(c, loc, before, 2)
	if inert {
		t.Fatal("expected a live cron")
	}
	// firings[0] is 03-07 02:00 PST (10:00Z); 03-08 02:00 does not exist
	// (spring forward) and is skipped, so firings[1] is 03-09 02:00 PDT
	// (09:00Z) — a 47h gap, not the usual 24h.
	if got := firings[1].Sub(firings[0]); got != 47*time.Hour {
		t.Fatalf("gap = %v, want 47h (the skipped 03-08 firing should widen it)", got)
	}
}

func TestInertCron(t *testing.T) {
	c, err := Normalise("0 0 0 1 1 * 1971")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, inert := NextNFirings(c, time.UTC, now, 1)
	if !inert {
		t.Fatal("expected a cron restricted to a past year to be inert")
	}
}

func TestJobID(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := JobID("S1", ts)
	want := "schedule.S1." + "1767225600"
	if got != want {
		t.Fatalf("JobID() = %q, want %q", got, want)
	}
}
