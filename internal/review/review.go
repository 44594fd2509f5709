// Package review implements the review worker (C7): the single
// component that drains the internal work queue, reconciles one
// schedule id at a time against the source of record, and materialises
// the result into the scheduler index and the external queue store.
package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cronbridge"
	"cronbridge/internal/metrics"
	"cronbridge/internal/schedindex"
	"cronbridge/internal/workqueue"
)

// initialBackoff and maxBackoff bound the back-off applied to a
// schedule id re-pushed after a transient failure (spec §4.3, §7).
const (
	initialBackoff = 30 * time.Second
	maxBackoff     = 5 * time.Minute
)

// Worker is the review worker. The zero value is not usable;
// construct with New.
type Worker struct {
	Queue    *workqueue.Queue
	Source   cronbridge.SourceReader
	Fetcher  cronbridge.PayloadFetcher
	Enqueuer cronbridge.QueueEnqueuer
	Index    *schedindex.Index
	Log      zerolog.Logger

	mu      sync.Mutex
	backoff map[string]time.Duration
}

// New returns a ready-to-use review worker.
func New(q *workqueue.Queue, src cronbridge.SourceReader, fetch cronbridge.PayloadFetcher,
	enq cronbridge.QueueEnqueuer, idx *schedindex.Index, log zerolog.Logger) *Worker {
	return &Worker{
		Queue:    q,
		Source:   src,
		Fetcher:  fetch,
		Enqueuer: enq,
		Index:    idx,
		Log:      log.With().Str("component", "review").Logger(),
		backoff:  make(map[string]time.Duration),
	}
}

// Run drains the queue until ctx is cancelled, processing one id at a
// time (spec §4.7).
func (w *Worker) Run(ctx context.Context) {
	for {
		id, err := w.Queue.Pop(ctx)
		if err != nil {
			return
		}
		w.process(ctx, id)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	row, err := w.Source.ReadOne(ctx, id)
	if errors.Is(err, cronbridge.ErrNotFound) || (err == nil && !row.Enabled) {
		if cerr := w.Enqueuer.CancelAllFor(ctx, id); cerr != nil {
			w.Log.Warn().Err(cerr).Str("schedule_id", id).Msg("cancel_all_for failed during eviction")
		}
		w.Index.Remove(id)
		w.resetBackoff(id)
		return
	}
	if err != nil {
		metrics.ReviewErrorsTotal.WithLabelValues("source").Inc()
		w.requeue(id)
		return
	}

	cron7, loc, err := row.Validate()
	if err != nil {
		w.Log.Warn().Err(err).Str("schedule_id", id).Msg("invalid cron, dropping from index")
		w.Index.Remove(id)
		w.resetBackoff(id)
		return
	}

	firings, inert := cronbridge.NextNFirings(cron7, loc, time.Now().UTC(), 1)
	if inert {
		w.Log.Warn().Str("schedule_id", id).Msg("cron is inert, dropping from index")
		w.Index.Remove(id)
		w.resetBackoff(id)
		return
	}
	next := firings[0]

	payload, err := w.Fetcher.FetchPayload(ctx, row.TaskID)
	if err != nil {
		metrics.ReviewErrorsTotal.WithLabelValues("fetch").Inc()
		w.requeue(id)
		return
	}

	if _, err := w.Enqueuer.EnqueueAt(ctx, id, row.QueueName, row.TaskID, payload, next, row.Hints()); err != nil {
		metrics.ReviewErrorsTotal.WithLabelValues("enqueue").Inc()
		w.requeue(id)
		return
	}

	w.Index.Upsert(cronbridge.NextFiring{ScheduleID: id, FiresAtUTC: next})
	metrics.SchedulerIndexSize.Set(float64(w.Index.Len()))
	w.resetBackoff(id)
}

// requeue re-pushes id onto the work queue after a back-off delay that
// starts at 30s and doubles on each consecutive failure, capped at 5m.
func (w *Worker) requeue(id string) {
	w.mu.Lock()
	delay := w.backoff[id]
	if delay == 0 {
		delay = initialBackoff
	} else {
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
	w.backoff[id] = delay
	w.mu.Unlock()

	time.AfterFunc(delay, func() { w.Queue.Push(id) })
}

func (w *Worker) resetBackoff(id string) {
	w.mu.Lock()
	delete(w.backoff, id)
	w.mu.Unlock()
}
