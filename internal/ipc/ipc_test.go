package ipc

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"cronbridge"
	"cronbridge/internal/refresh"
	"cronbridge/internal/schedindex"
	"cronbridge/internal/workqueue"
)

type fakeSource struct {
	schedules map[string]cronbridge.Schedule
}

func (f *fakeSource) ReadOne(ctx context.Context, id string) (cronbridge.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return cronbridge.Schedule{}, cronbridge.ErrNotFound
	}
	return s, nil
}

func (f *fakeSource) ReadAllEnabled(ctx context.Context) ([]cronbridge.Schedule, error) {
	var out []cronbridge.Schedule
	for _, s := range f.schedules {
		out = append(out, s)
	}
	return out, nil
}

type fakeFetcher struct{}

func (fakeFetcher) FetchPayload(ctx context.Context, taskID string) ([]byte, error) {
	return []byte("payload"), nil
}

type fakeEnqueuer struct {
	enqueuedNow []string
	cancelled   []string
}

func (f *fakeEnqueuer) EnqueueAt(ctx context.Context, scheduleID, queueName, taskID string,
	payload []byte, firesAtUTC time.Time, hints cronbridge.Hints) (string, error) {
	f.enqueuedNow = append(f.enqueuedNow, scheduleID)
	return cronbridge.JobID(scheduleID, firesAtUTC), nil
}

func (f *fakeEnqueuer) CancelAllFor(ctx context.Context, scheduleID string) error {
	f.cancelled = append(f.cancelled, scheduleID)
	return nil
}

func newTestServer() (*Server, *fakeEnqueuer) {
	src := &fakeSource{schedules: map[string]cronbridge.Schedule{
		"S1": {ID: "S1", Enabled: true, QueueName: "default", TaskID: "T1"},
	}}
	enq := &fakeEnqueuer{}
	q := workqueue.New()
	idx := schedindex.New()
	rf := refresh.New(q, src, time.Hour, zerolog.Nop())
	s := New("/tmp/unused.sock", "", q, idx, src, fakeFetcher{}, enq, rf, zerolog.Nop())
	return s, enq
}

func TestDispatchPing(t *testing.T) {
	s, _ := newTestServer()
	resp, err := s.dispatch(context.Background(), request{RequestType: "ping"})
	if err != nil {
		t.Fatal(err)
	}
	if resp != "pong" {
		t.Fatalf("got %v, want pong", resp)
	}
}

func TestDispatchReloadSchedule(t *testing.T) {
	s, _ := newTestServer()
	content, _ := json.Marshal(scheduleIDContent{ScheduleID: "S1"})
	resp, err := s.dispatch(context.Background(), request{RequestType: "reload_schedule", RequestContent: content})
	if err != nil {
		t.Fatal(err)
	}
	if resp != "queued" {
		t.Fatalf("got %v, want queued", resp)
	}
	if s.Queue.Len() != 1 {
		t.Fatalf("queue len = %d, want 1", s.Queue.Len())
	}
}

func TestDispatchRemoveSchedule(t *testing.T) {
	s, enq := newTestServer()
	s.Index.Upsert(cronbridge.NextFiring{ScheduleID: "S1", FiresAtUTC: time.Now().UTC()})
	content, _ := json.Marshal(scheduleIDContent{ScheduleID: "S1"})

	resp, err := s.dispatch(context.Background(), request{RequestType: "remove_schedule", RequestContent: content})
	if err != nil {
		t.Fatal(err)
	}
	if resp != "removed" {
		t.Fatalf("got %v, want removed", resp)
	}
	if s.Index.Len() != 0 {
		t.Fatal("expected the index entry to be removed")
	}
	if len(enq.cancelled) != 1 || enq.cancelled[0] != "S1" {
		t.Fatalf("expected CancelAllFor(S1), got %v", enq.cancelled)
	}
}

func TestDispatchShowQueueAndSchedule(t *testing.T) {
	s, _ := newTestServer()
	s.Queue.Push("S1")
	s.Index.Upsert(cronbridge.NextFiring{ScheduleID: "S1", FiresAtUTC: time.Now().UTC()})

	qResp, err := s.dispatch(context.Background(), request{RequestType: "show_queue"})
	if err != nil {
		t.Fatal(err)
	}
	if ids, ok := qResp.([]string); !ok || len(ids) != 1 || ids[0] != "S1" {
		t.Fatalf("show_queue = %v", qResp)
	}

	sResp, err := s.dispatch(context.Background(), request{RequestType: "show_schedule"})
	if err != nil {
		t.Fatal(err)
	}
	if firings, ok := sResp.([]cronbridge.NextFiring); !ok || len(firings) != 1 {
		t.Fatalf("show_schedule = %v", sResp)
	}
}

func TestDispatchRunNow(t *testing.T) {
	s, enq := newTestServer()
	content, _ := json.Marshal(scheduleIDContent{ScheduleID: "S1"})

	resp, err := s.dispatch(context.Background(), request{RequestType: "run_now", RequestContent: content})
	if err != nil {
		t.Fatal(err)
	}
	if resp != "enqueued" {
		t.Fatalf("got %v, want enqueued", resp)
	}
	if len(enq.enqueuedNow) != 1 || enq.enqueuedNow[0] != "S1" {
		t.Fatalf("expected S1 to be enqueued immediately, got %v", enq.enqueuedNow)
	}
}

func TestDispatchUnknownRequestType(t *testing.T) {
	s, _ := newTestServer()
	if _, err := s.dispatch(context.Background(), request{RequestType: "bogus"}); err == nil {
		t.Fatal("expected an error for an unknown request_type")
	}
}
