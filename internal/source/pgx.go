// Package source implements the source reader (C2): fetching one
// schedule row or all active rows from the relational system-of-record.
// It generalises the teacher's PgxConn interface (Exec, Begin) with
// the Query/QueryRow methods a read-only reader needs.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cronbridge"
	"cronbridge/internal/stmt"
)

// queryTimeout bounds every SQL query issued by Pgx (spec §5: "C2
// SQL per-query 5s").
const queryTimeout = 5 * time.Second

// PgxConn is a pgx.Conn or pgxpool.Pool: whatever cronbridge needs to
// read rows.
type PgxConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pgx is a Postgres-backed Source Reader.
type Pgx struct {
	Conn PgxConn
}

// New wraps a PgxConn (a pgx.Conn or pgxpool.Pool) as a Source Reader.
func New(conn PgxConn) *Pgx {
	return &Pgx{Conn: conn}
}

// ReadOne fetches one schedule row by id.
func (p *Pgx) ReadOne(ctx context.Context, id string) (cronbridge.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := p.Conn.QueryRow(ctx, stmt.SelectSchedule, id)
	s, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return cronbridge.Schedule{}, fmt.Errorf("%w: %s", cronbridge.ErrNotFound, id)
	}
	if err != nil {
		return cronbridge.Schedule{}, fmt.Errorf("%w: %v", cronbridge.ErrSource, err)
	}
	return s, nil
}

// ReadAllEnabled fetches every enabled schedule row.
func (p *Pgx) ReadAllEnabled(ctx context.Context) ([]cronbridge.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.Conn.Query(ctx, stmt.SelectAllEnabledSchedules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cronbridge.ErrSource, err)
	}
	defer rows.Close()

	var out []cronbridge.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cronbridge.ErrSource, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", cronbridge.ErrSource, err)
	}
	return out, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(s scanner) (cronbridge.Schedule, error) {
	var sched cronbridge.Schedule
	err := s.Scan(
		&sched.ID, &sched.Enabled, &sched.CronLocal, &sched.TimeZone,
		&sched.QueueName, &sched.TaskID, &sched.RetryCount, &sched.ResultTTLSecs,
	)
	return sched, err
}
