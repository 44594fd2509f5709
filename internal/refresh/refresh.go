// Package refresh implements the refresh worker (C8): the periodic
// and on-demand mechanism that re-establishes consistency by pushing
// every enabled schedule id back onto the internal work queue.
package refresh

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cronbridge"
	"cronbridge/internal/workqueue"
)

// Worker periodically enumerates every enabled schedule and pushes
// each id onto the work queue, and can also run a single pass on
// demand (startup, or the IPC "full_refresh" request).
type Worker struct {
	Queue    *workqueue.Queue
	Source   cronbridge.SourceReader
	Interval time.Duration
	Log      zerolog.Logger
}

// New returns a ready-to-use refresh worker.
func New(q *workqueue.Queue, src cronbridge.SourceReader, interval time.Duration, log zerolog.Logger) *Worker {
	return &Worker{
		Queue:    q,
		Source:   src,
		Interval: interval,
		Log:      log.With().Str("component", "refresh").Logger(),
	}
}

// Run performs one synchronous pass immediately (spec §4.8: "also
// performed once synchronously at daemon startup before C7 begins"),
// then repeats every Interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.Once(ctx)

	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Once(ctx)
		}
	}
}

// Once performs a single enumerate-and-push pass, used by Run's
// startup pass and by the IPC "full_refresh" request.
func (w *Worker) Once(ctx context.Context) {
	schedules, err := w.Source.ReadAllEnabled(ctx)
	if err != nil {
		w.Log.Warn().Err(err).Msg("full refresh: source read failed")
		return
	}
	for _, s := range schedules {
		w.Queue.Push(s.ID)
	}
	w.Log.Debug().Int("count", len(schedules)).Msg("full refresh pushed schedules")
}
