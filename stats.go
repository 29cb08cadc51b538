// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlrecord

import (
	"fmt"
	"sync/atomic"
	"time"
)

// QueryStats counts the statements run by a DB.
type QueryStats struct {
	queries  atomic.Int64
	execs    atomic.Int64
	rows     atomic.Int64
	slow     atomic.Int64
	errors   atomic.Int64
	duration atomic.Int64 // nanoseconds
}

// Snapshot returns the current values of the counters.
func (s *QueryStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries:       s.queries.Load(),
		Execs:         s.execs.Load(),
		Rows:          s.rows.Load(),
		SlowQueries:   s.slow.Load(),
		Errors:        s.errors.Load(),
		TotalDuration: time.Duration(s.duration.Load()),
	}
}

// StatsSnapshot is a point-in-time copy of [QueryStats].
type StatsSnapshot struct {
	// Queries is the number of statements run that return rows.
	Queries int64
	// Execs is the number of statements run that return no rows.
	Execs int64
	// Rows is the number of rows materialized.
	Rows int64
	// SlowQueries is the number of statements that took longer than the
	// threshold set with WithSlowThreshold.
	SlowQueries int64
	// Errors is the number of statements that failed to start.
	Errors        int64
	TotalDuration time.Duration
}

// AvgDuration returns the average time taken to start a statement.
func (s StatsSnapshot) AvgDuration() time.Duration {
	total := s.Queries + s.Execs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d rows=%d duration=%s avg=%s slow=%d errors=%d",
		s.Queries, s.Execs, s.Rows, s.TotalDuration, s.AvgDuration(),
		s.SlowQueries, s.Errors,
	)
}
