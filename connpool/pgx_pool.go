package connpool

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/gotap/tapd/errs"
)

// PgxPool is the production ConnectionPool, backed by pgxpool.Pool and
// guarded by a gobreaker circuit breaker on Acquire.
type PgxPool struct {
	pool    *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
	notify  chan struct{}
}

// NewPgxPool wraps an already-configured pgxpool.Pool. name identifies
// the breaker in logs/metrics when multiple pools run in one process.
func NewPgxPool(pool *pgxpool.Pool, name string) *PgxPool {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &PgxPool{
		pool:    pool,
		breaker: gobreaker.NewCircuitBreaker(settings),
		notify:  make(chan struct{}, 1),
	}
}

func (p *PgxPool) Acquire(ctx context.Context, jobID string) (Conn, error) {
	result, err := p.breaker.Execute(func() (any, error) {
		c, err := p.pool.Acquire(ctx)
		if err != nil {
			return nil, errs.ErrNoConnection
		}
		return c, nil
	})
	if err != nil {
		return nil, errs.ErrNoConnection
	}
	return &pgxConn{c: result.(*pgxpool.Conn)}, nil
}

func (p *PgxPool) Release(conn Conn) {
	if c, ok := conn.(*pgxConn); ok {
		c.c.Release()
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *PgxPool) FreeCount() int {
	stat := p.pool.Stat()
	free := int(stat.IdleConns())
	if free < 0 {
		return 0
	}
	return free
}

func (p *PgxPool) Notify() <-chan struct{} { return p.notify }

type pgxConn struct {
	c *pgxpool.Conn
}

func (c *pgxConn) QueryContext(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := c.c.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Columns() ([]string, error) {
	fields := r.rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}

func (r *pgxRows) Next() bool            { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Err() error            { return r.rows.Err() }
func (r *pgxRows) Close() error          { r.rows.Close(); return nil }
