// Package stmt centralises the SQL text used by the source reader,
// mirroring the teacher's own internal/stmt package.
package stmt

// SelectSchedule reads one schedule row by id.
const SelectSchedule = `
SELECT id, enabled, cron_local, time_zone, queue_name, task_id,
       retry_count, result_ttl_secs
FROM task_schedule
WHERE id = $1`

// SelectAllEnabledSchedules reads every enabled schedule row.
const SelectAllEnabledSchedules = `
SELECT id, enabled, cron_local, time_zone, queue_name, task_id,
       retry_count, result_ttl_secs
FROM task_schedule
WHERE enabled
ORDER BY id`
