package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gotap/tapd/connpool"
	"github.com/gotap/tapd/scheduler"
)

type fakePool struct {
	free   atomic.Int64
	notify chan struct{}
}

func newFakePool(free int64) *fakePool {
	p := &fakePool{notify: make(chan struct{}, 1)}
	p.free.Store(free)
	return p
}

func (p *fakePool) FreeCount() int          { return int(p.free.Load()) }
func (p *fakePool) Notify() <-chan struct{} { return p.notify }
func (p *fakePool) Acquire(ctx context.Context, jobID string) (connpool.Conn, error) {
	return nil, nil
}
func (p *fakePool) Release(conn connpool.Conn) {}

var _ connpool.ConnectionPool = (*fakePool)(nil)

func TestSchedulerRespectsConcurrencyCeiling(t *testing.T) {
	pool := newFakePool(0)
	pool.free.Store(10)

	var running atomic.Int64
	var maxSeen atomic.Int64
	release := make(chan string, 16)

	spawn := func(ctx context.Context, jobID string, done func()) bool {
		n := running.Add(1)
		for {
			cur := maxSeen.Load()
			if n <= cur || maxSeen.CompareAndSwap(cur, n) {
				break
			}
		}
		go func() {
			<-release
			running.Add(-1)
			done()
		}()
		return true
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := scheduler.NewManager(pool, spawn, 2, log)
	m.Start(context.Background())
	defer m.Stop()

	for i := 0; i < 5; i++ {
		m.Enqueue(string(rune('a' + i)))
	}

	time.Sleep(50 * time.Millisecond)
	if maxSeen.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, saw %d", maxSeen.Load())
	}

	for i := 0; i < 5; i++ {
		release <- "go"
	}
	time.Sleep(50 * time.Millisecond)
}

func TestSchedulerGatesOnFreeCount(t *testing.T) {
	pool := newFakePool(0)

	var spawned atomic.Int64
	spawn := func(ctx context.Context, jobID string, done func()) bool {
		spawned.Add(1)
		return true
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := scheduler.NewManager(pool, spawn, 0, log)
	m.Start(context.Background())
	defer m.Stop()

	m.Enqueue("job-1")
	time.Sleep(20 * time.Millisecond)
	if spawned.Load() != 0 {
		t.Fatalf("expected no spawn with zero free connections, got %d", spawned.Load())
	}

	pool.free.Store(1)
	m.Wake()
	time.Sleep(20 * time.Millisecond)
	if spawned.Load() != 1 {
		t.Fatalf("expected job to spawn once a connection frees up, got %d", spawned.Load())
	}
}
