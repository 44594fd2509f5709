package cronbridge

import (
	"context"
	"time"
)

// SourceReader is the capability surface of the Source Reader (C2).
type SourceReader interface {
	ReadOne(ctx context.Context, id string) (Schedule, error)
	ReadAllEnabled(ctx context.Context) ([]Schedule, error)
}

// PayloadFetcher is the capability surface of the Task Payload
// Fetcher (C3).
type PayloadFetcher interface {
	FetchPayload(ctx context.Context, taskID string) ([]byte, error)
}

// QueueEnqueuer is the capability surface of the Queue Enqueuer (C4).
type QueueEnqueuer interface {
	EnqueueAt(ctx context.Context, scheduleID, queueName, taskID string,
		payload []byte, firesAtUTC time.Time, hints Hints) (jobID string, err error)
	CancelAllFor(ctx context.Context, scheduleID string) error
}
