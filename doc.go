// Package cronbridge bridges a relational system-of-record for
// cron-style task schedules with a job-queue runtime backed by a
// key-value store. It guarantees that, at steady state, the queue
// runtime holds exactly one scheduled invocation per enabled
// schedule, fired at the correct wall-clock moment in the schedule's
// own time zone, with daylight-saving transitions honoured.
package cronbridge
