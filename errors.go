package cronbridge

import "errors"

// Error kinds recognised by the daemon's error handling design
// (spec §7). Workers classify an error into one of these and either
// requeue via the internal work queue, evict from the scheduler
// index, or exit the process.
var (
	// ErrInvalidCron is returned by Normalise when a cron string does
	// not reduce to a well-formed Cron7 expression.
	ErrInvalidCron = errors.New("cronbridge: invalid cron expression")

	// ErrNotFound is returned by a source reader when a schedule id
	// no longer exists in the system-of-record.
	ErrNotFound = errors.New("cronbridge: schedule not found")

	// ErrSource wraps a transient error from the source reader (C2).
	ErrSource = errors.New("cronbridge: source read failed")

	// ErrFetch wraps a transient error from the task payload fetcher (C3).
	ErrFetch = errors.New("cronbridge: payload fetch failed")

	// ErrEnqueue wraps a transient error from the queue enqueuer (C4).
	ErrEnqueue = errors.New("cronbridge: enqueue failed")

	// ErrInert names the case of a cron expression with no firing
	// within the search horizon. NextNFirings reports that case through
	// its bool result, and the review and timer workers log it and drop
	// the schedule; none of them returns ErrInert.
	ErrInert = errors.New("cronbridge: cron is inert")
)

// Transient reports whether err represents a retriable failure that
// should be re-pushed onto the internal work queue with back-off,
// rather than evicted from the scheduler index.
func Transient(err error) bool {
	return errors.Is(err, ErrSource) || errors.Is(err, ErrFetch) || errors.Is(err, ErrEnqueue)
}
