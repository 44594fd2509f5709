// Package timer implements the timer loop (C9): the component that
// wakes on the scheduler index's earliest due entry, re-reads the
// schedule, enqueues the firing, and advances the index to the next
// one.
package timer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cronbridge"
	"cronbridge/internal/metrics"
	"cronbridge/internal/schedindex"
	"cronbridge/internal/workqueue"
)

// Worker is the timer loop. The zero value is not usable; construct
// with New.
type Worker struct {
	Index    *schedindex.Index
	Queue    *workqueue.Queue
	Source   cronbridge.SourceReader
	Fetcher  cronbridge.PayloadFetcher
	Enqueuer cronbridge.QueueEnqueuer
	Poll     time.Duration
	Log      zerolog.Logger
}

// New returns a ready-to-use timer loop.
func New(idx *schedindex.Index, q *workqueue.Queue, src cronbridge.SourceReader, fetch cronbridge.PayloadFetcher,
	enq cronbridge.QueueEnqueuer, poll time.Duration, log zerolog.Logger) *Worker {
	return &Worker{
		Index:    idx,
		Queue:    q,
		Source:   src,
		Fetcher:  fetch,
		Enqueuer: enq,
		Poll:     poll,
		Log:      log.With().Str("component", "timer").Logger(),
	}
}

// Run executes the five-step loop from spec §4.6 until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		due, err := w.Index.WaitUntilDue(ctx, w.Poll)
		if err != nil {
			return
		}
		// Remove the due entry; if it was already removed by a
		// concurrent review-worker eviction, Remove is a no-op and
		// advance still re-reads the row, pushing a disabled or
		// vanished schedule back for the review worker to evict.
		w.Index.Remove(due.ScheduleID)
		w.advance(ctx, due.ScheduleID)
	}
}

func (w *Worker) advance(ctx context.Context, id string) {
	row, err := w.Source.ReadOne(ctx, id)
	if err != nil {
		// Spec step 5: any error in steps 3-4 pushes back to C5 rather
		// than retrying inline here; C7 owns eviction (NotFound,
		// disabled) since it is the only component allowed to apply
		// that side effect to C4/C6.
		w.Queue.Push(id)
		return
	}
	if !row.Enabled {
		w.Queue.Push(id)
		return
	}

	cron7, loc, err := row.Validate()
	if err != nil {
		w.Log.Warn().Err(err).Str("schedule_id", id).Msg("invalid cron at fire time")
		w.Queue.Push(id)
		return
	}
	firings, inert := cronbridge.NextNFirings(cron7, loc, time.Now().UTC(), 1)
	if inert {
		w.Log.Warn().Str("schedule_id", id).Msg("cron became inert at fire time")
		return
	}
	next := firings[0]

	payload, err := w.Fetcher.FetchPayload(ctx, row.TaskID)
	if err != nil {
		metrics.ReviewErrorsTotal.WithLabelValues("fetch").Inc()
		w.Queue.Push(id)
		return
	}

	if _, err := w.Enqueuer.EnqueueAt(ctx, id, row.QueueName, row.TaskID, payload, next, row.Hints()); err != nil {
		metrics.EnqueueTotal.WithLabelValues("error").Inc()
		w.Queue.Push(id)
		return
	}
	metrics.EnqueueTotal.WithLabelValues("ok").Inc()

	w.Index.Upsert(cronbridge.NextFiring{ScheduleID: id, FiresAtUTC: next})
	metrics.SchedulerIndexSize.Set(float64(w.Index.Len()))
}
