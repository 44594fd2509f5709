// Package schedindex implements the scheduler index (C6): a mapping
// from schedule id to its next UTC firing, simultaneously exposed as
// an ordered view by ascending firing time so the timer loop (C9) can
// always find the earliest due entry in O(1).
package schedindex

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"cronbridge"
)

// Index is the scheduler index. The zero value is not usable;
// construct with New.
type Index struct {
	mu      sync.Mutex
	dueSoon *sync.Cond
	byID    map[string]*entry
	order   entryHeap
}

type entry struct {
	firing cronbridge.NextFiring
	idx    int // position in order, maintained by container/heap
}

// New returns an empty, ready-to-use Index.
func New() *Index {
	idx := &Index{byID: make(map[string]*entry)}
	idx.dueSoon = sync.NewCond(&idx.mu)
	return idx
}

// Upsert replaces any existing entry for firing.ScheduleID (invariant
// I-1: at most one NextFiring per schedule id).
func (x *Index) Upsert(firing cronbridge.NextFiring) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.byID[firing.ScheduleID]; ok {
		e.firing = firing
		heap.Fix(&x.order, e.idx)
	} else {
		e := &entry{firing: firing}
		x.byID[firing.ScheduleID] = e
		heap.Push(&x.order, e)
	}
	x.dueSoon.Broadcast()
}

// Remove deletes the entry for id, if any.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.byID[id]
	if !ok {
		return
	}
	heap.Remove(&x.order, e.idx)
	delete(x.byID, id)
}

// PeekEarliest returns the entry with the smallest FiresAtUTC, if any.
func (x *Index) PeekEarliest() (cronbridge.NextFiring, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.order) == 0 {
		return cronbridge.NextFiring{}, false
	}
	return x.order[0].firing, true
}

// Len reports the number of entries currently held.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.order)
}

// Snapshot returns all entries ordered by ascending FiresAtUTC, for
// the IPC "show_schedule" request.
func (x *Index) Snapshot() []cronbridge.NextFiring {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]cronbridge.NextFiring, len(x.order))
	ordered := append(entryHeap{}, x.order...)
	// Sorting a copy keeps the live heap's invariants untouched.
	for i := range ordered {
		out[i] = ordered[i].firing
	}
	sortByFiring(out)
	return out
}

func sortByFiring(fs []cronbridge.NextFiring) {
	for i := 1; i < len(fs); i++ {
		for j := i; j > 0 && fs[j].FiresAtUTC.Before(fs[j-1].FiresAtUTC); j-- {
			fs[j], fs[j-1] = fs[j-1], fs[j]
		}
	}
}

// WaitUntilDue blocks until the earliest entry's FiresAtUTC is at or
// before now, re-checking every poll interval so a late insertion
// ahead of the previous earliest entry is observed, or until ctx is
// cancelled.
func (x *Index) WaitUntilDue(ctx context.Context, poll time.Duration) (cronbridge.NextFiring, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(poll)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				x.mu.Lock()
				x.dueSoon.Broadcast()
				x.mu.Unlock()
				return
			case <-t.C:
				x.mu.Lock()
				x.dueSoon.Broadcast()
				x.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return cronbridge.NextFiring{}, ctx.Err()
		}
		if len(x.order) > 0 {
			head := x.order[0].firing
			if !head.FiresAtUTC.After(time.Now().UTC()) {
				return head, nil
			}
		}
		x.dueSoon.Wait()
	}
}

// entryHeap is a container/heap min-heap ordered by FiresAtUTC.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	return h[i].firing.FiresAtUTC.Before(h[j].firing.FiresAtUTC)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx, h[j].idx = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.idx = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
