package connpool

import (
	"context"
)

// Conn is a single leased database connection, opaque to the scheduler
// beyond the ConnectionPool contract itself.
type Conn interface {
	// QueryContext submits sql and returns a cursor-like Rows. It must
	// respect ctx cancellation, interrupting the server-side query if
	// the driver exposes a cancel hook (pgx does; the bun/sqlite
	// backend relies on context cancellation alone).
	QueryContext(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Rows is a minimal streaming result cursor, enough for the pipeline's
// WRITING_RESULT stage to format rows without buffering the whole
// result set.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// ConnectionPool is the contract shared by the scheduler (freeCount
// gating admission) and the pipeline (acquire/release around
// EXECUTING_SQL).
type ConnectionPool interface {
	// Acquire returns a leased connection for jobID, or errs.ErrNoConnection
	// if none can be obtained. Implementations may choose to block instead
	// of failing fast; the reference backends here may wait inside the
	// driver's pool until a connection frees or ctx ends, and fail fast
	// only while their circuit breaker is open.
	Acquire(ctx context.Context, jobID string) (Conn, error)

	// Release returns conn to the pool and signals the scheduler that a
	// connection has become free.
	Release(conn Conn)

	// FreeCount is a non-blocking, possibly stale estimate of available
	// connections. It is never negative; if the driver reports a
	// negative value the pool clamps it to 0.
	FreeCount() int

	// Notify returns a channel that is signalled when Release is called,
	// so the scheduler can wake on a refresh event instead of polling
	// FreeCount. The reference pools buffer one signal and drop the rest,
	// so several Releases may arrive as a single value.
	Notify() <-chan struct{}
}
