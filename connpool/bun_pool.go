package connpool

import (
	"context"
	"database/sql"
	"time"

	"github.com/sony/gobreaker"
	"github.com/uptrace/bun"

	"github.com/gotap/tapd/errs"
)

// BunPool is a ConnectionPool backed by a *bun.DB, suitable for local
// development and tests (paired with modernc.org/sqlite) or Postgres
// (paired with pgdialect) when pgxpool is not in use. It relies on the
// stdlib *sql.DB connection pool underneath bun and reports FreeCount
// from database/sql.DBStats.
type BunPool struct {
	db      *bun.DB
	breaker *gobreaker.CircuitBreaker
	notify  chan struct{}
}

// NewBunPool wraps db.
func NewBunPool(db *bun.DB, name string) *BunPool {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &BunPool{
		db:      db,
		breaker: gobreaker.NewCircuitBreaker(settings),
		notify:  make(chan struct{}, 1),
	}
}

func (p *BunPool) Acquire(ctx context.Context, jobID string) (Conn, error) {
	result, err := p.breaker.Execute(func() (any, error) {
		c, err := p.db.Conn(ctx)
		if err != nil {
			return nil, errs.ErrNoConnection
		}
		return c, nil
	})
	if err != nil {
		return nil, errs.ErrNoConnection
	}
	return &bunConn{c: result.(*sql.Conn)}, nil
}

func (p *BunPool) Release(conn Conn) {
	if c, ok := conn.(*bunConn); ok {
		c.c.Close()
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *BunPool) FreeCount() int {
	stats := p.db.Stats()
	free := stats.Idle
	if free < 0 {
		return 0
	}
	return free
}

func (p *BunPool) Notify() <-chan struct{} { return p.notify }

type bunConn struct {
	c *sql.Conn
}

func (c *bunConn) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error                 { return r.rows.Err() }
func (r *sqlRows) Close() error               { return r.rows.Close() }
