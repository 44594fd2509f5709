package cronbridge

import (
	"fmt"
	"time"
)

// Schedule is the canonical in-memory record for one row of the
// system-of-record.
type Schedule struct {
	ID            string
	Enabled       bool
	CronLocal     string
	TimeZone      string
	QueueName     string
	TaskID        string
	RetryCount    int
	ResultTTLSecs int
}

// Hints are transport hints passed through to the queue enqueuer.
type Hints struct {
	RetryCount    int
	ResultTTLSecs int
}

func (s Schedule) hints() Hints {
	return Hints{RetryCount: s.RetryCount, ResultTTLSecs: s.ResultTTLSecs}
}

// Hints returns the transport hints carried by this schedule.
func (s Schedule) Hints() Hints { return s.hints() }

// Validate checks invariant S-1: a Schedule is valid only if its
// cron expression normalises and its time zone resolves.
func (s Schedule) Validate() (Cron7, *time.Location, error) {
	cron7, err := Normalise(s.CronLocal)
	if err != nil {
		return Cron7{}, nil, fmt.Errorf("schedule %s: %w", s.ID, err)
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return Cron7{}, nil, fmt.Errorf("schedule %s: unknown time zone %q: %w", s.ID, s.TimeZone, err)
	}
	return cron7, loc, nil
}

// NextFiring is a pair (schedule id, UTC firing instant) where the
// instant is strictly greater than "now" at the time it was computed.
type NextFiring struct {
	ScheduleID string
	FiresAtUTC time.Time
}

// JobID returns the deterministic external-store identifier for a
// firing of this schedule: "schedule.<id>.<epoch>".
func (n NextFiring) JobID() string {
	return JobID(n.ScheduleID, n.FiresAtUTC)
}

// JobID builds the deterministic job identifier used by the queue
// enqueuer to locate and replace any previously scheduled job for the
// same schedule id.
func JobID(scheduleID string, firesAtUTC time.Time) string {
	return fmt.Sprintf("schedule.%s.%d", scheduleID, firesAtUTC.Unix())
}
