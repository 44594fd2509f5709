// Package workqueue implements the internal work queue (C5): a
// deduplicating FIFO of schedule ids shared by four producers (the
// IPC listener, the refresh worker, the review worker's own back-off
// re-push, and the timer loop's push-back on failure) and drained by
// a single consumer (the review worker).
package workqueue

import (
	"container/list"
	"context"
	"sync"

	"cronbridge/internal/metrics"
)

// Queue is a deduplicating FIFO of schedule ids. Pushing an id
// already present is a no-op: this formalises the "TODO: make it a
// unique set" left in the system this daemon replaces. The zero value
// is not usable; construct with New.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	order    *list.List
	present  map[string]*list.Element
}

// New returns an empty, ready-to-use Queue.
func New() *Queue {
	q := &Queue{
		order:   list.New(),
		present: make(map[string]*list.Element),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push enqueues id if it is not already present. FIFO order among
// distinct ids pushed by the same caller is preserved; an id that is
// pushed while already present keeps its original position.
func (q *Queue) Push(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.present[id]; ok {
		return
	}
	elem := q.order.PushBack(id)
	q.present[id] = elem
	metrics.WorkQueueLength.Set(float64(q.order.Len()))
	q.notEmpty.Signal()
}

// Pop blocks until an id is available or ctx is cancelled.
func (q *Queue) Pop(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	for q.order.Len() == 0 {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		q.notEmpty.Wait()
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	front := q.order.Front()
	id := front.Value.(string)
	q.order.Remove(front)
	delete(q.present, id)
	metrics.WorkQueueLength.Set(float64(q.order.Len()))
	return id, nil
}

// Len reports the current number of distinct ids in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}

// Snapshot returns the current contents in FIFO order, for the
// IPC "show_queue" request. It does not mutate the queue.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, q.order.Len())
	for e := q.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}
