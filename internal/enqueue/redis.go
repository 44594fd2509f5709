// Package enqueue implements the queue enqueuer (C4): writing a
// scheduled job into the external job-queue store at a precise UTC
// instant, and removing it again. The backing store is a Redis sorted
// set keyed by the deterministic JobID, mirroring the teacher
// ecosystem's own Redis-backed job scheduling (rq: a sorted set of
// "member=job id, score=next run unix time").
package enqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"cronbridge"
)

// redisOpTimeout bounds every Redis call (spec §5: "C4 Redis per-op 2s").
const redisOpTimeout = 2 * time.Second

// scheduledSetKey is the sorted set holding every future job,
// analogous to the original "btu_scheduler:task_execution_times" key.
const scheduledSetKey = "cronbridge:task_execution_times"

// payloadKeyPrefix namespaces the hash holding each job's queue name,
// task id, payload, and hints, keyed by JobID.
const payloadKeyPrefix = "cronbridge:job:"

// Redis is a Redis-backed Queue Enqueuer.
type Redis struct {
	client *redis.Client
}

// New connects to a Redis instance at host:port/db.
func New(host string, port uint16, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
		DB:   db,
	})}
}

// EnqueueAt writes queueName/taskID/payload/hints as the single
// future job for this schedule at firesAtUTC. It is idempotent with
// respect to (scheduleID, firesAtUTC): any previously scheduled job
// for the same schedule id is removed first, so exactly one future
// job exists afterwards (P-7).
func (r *Redis) EnqueueAt(
	ctx context.Context, scheduleID, queueName, taskID string,
	payload []byte, firesAtUTC time.Time, hints cronbridge.Hints,
) (jobID string, err error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.cancelAllForLocked(ctx, scheduleID); err != nil {
		return "", fmt.Errorf("%w: removing prior jobs: %v", cronbridge.ErrEnqueue, err)
	}

	jobID = cronbridge.JobID(scheduleID, firesAtUTC)
	fields := map[string]interface{}{
		"queue_name":      queueName,
		"task_id":         taskID,
		"payload":         payload,
		"retry_count":     hints.RetryCount,
		"result_ttl_secs": hints.ResultTTLSecs,
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, payloadKeyPrefix+jobID, fields)
	pipe.ZAdd(ctx, scheduledSetKey, &redis.Z{
		Score:  float64(firesAtUTC.Unix()),
		Member: jobID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", cronbridge.ErrEnqueue, err)
	}
	return jobID, nil
}

// CancelAllFor removes every future scheduled job for scheduleID.
func (r *Redis) CancelAllFor(ctx context.Context, scheduleID string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := r.cancelAllForLocked(ctx, scheduleID); err != nil {
		return fmt.Errorf("%w: %v", cronbridge.ErrEnqueue, err)
	}
	return nil
}

// cancelAllForLocked assumes ctx already carries a deadline; it scans
// the sorted set for members with the "schedule.<id>." prefix (the
// job-id naming convention from spec §4.4) and removes each one along
// with its payload hash.
func (r *Redis) cancelAllForLocked(ctx context.Context, scheduleID string) error {
	prefix := "schedule." + scheduleID + "."
	members, err := r.client.ZRange(ctx, scheduledSetKey, 0, -1).Result()
	if err != nil {
		return err
	}
	var stale []string
	for _, m := range members {
		if len(m) >= len(prefix) && m[:len(prefix)] == prefix {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, scheduledSetKey, toAnySlice(stale)...)
	for _, jobID := range stale {
		pipe.Del(ctx, payloadKeyPrefix+jobID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
