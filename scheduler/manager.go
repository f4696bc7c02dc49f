package scheduler

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gotap/tapd/connpool"
	"github.com/gotap/tapd/internal"
	"github.com/gotap/tapd/metrics"
)

// Spawn launches the worker that will run jobID's pipeline. It must
// return immediately: true if the job was handed off to a worker (which
// becomes responsible for transitioning the job into EXECUTING and
// eventually calling done), or false if the handoff itself failed (the
// underlying worker pool was full or shutting down) — the job is
// pushed back to the head of the FIFO to retry on the next refresh.
type Spawn func(ctx context.Context, jobID string, done func()) bool

// Manager is the ExecutionManager: a FIFO admission queue gated by a
// concurrency ceiling and the connection pool's free count.
type Manager struct {
	pool  connpool.ConnectionPool
	spawn Spawn
	log   *slog.Logger

	sem *semaphore.Weighted

	mu    sync.Mutex
	queue *list.List

	refresh chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	running atomic.Int64
	backoff internal.Backoff
	retries atomic.Uint32
}

// NewManager builds a Manager. maxConcurrent <= 0 means no concurrency
// ceiling (only the pool's free count gates admission).
func NewManager(pool connpool.ConnectionPool, spawn Spawn, maxConcurrent int64, log *slog.Logger) *Manager {
	var sem *semaphore.Weighted
	if maxConcurrent > 0 {
		sem = semaphore.NewWeighted(maxConcurrent)
	}
	return &Manager{
		pool:    pool,
		spawn:   spawn,
		log:     log,
		sem:     sem,
		queue:   list.New(),
		refresh: make(chan struct{}, 1),
		backoff: internal.Backoff{BackoffConfig: internal.BackoffConfig{
			InitialInterval:     50 * time.Millisecond,
			MaxInterval:         5 * time.Second,
			Multiplier:          2,
			RandomizationFactor: 0.2,
		}},
	}
}

// Start begins the dispatch loop and a goroutine relaying the
// connection pool's Notify channel into refresh events.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(2)
	go m.loop()
	go m.watchPool()
}

// Stop cancels the dispatch loop and returns a channel closed once both
// goroutines have exited.
func (m *Manager) Stop() internal.DoneChan {
	m.cancel()
	return internal.WrapWaitGroup(&m.wg)
}

func (m *Manager) watchPool() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.pool.Notify():
			m.Wake()
		}
	}
}

// Enqueue adds jobID to the tail of the FIFO and triggers a refresh.
// Callers invoke this exactly when a job transitions to QUEUED.
func (m *Manager) Enqueue(jobID string) {
	m.mu.Lock()
	m.queue.PushBack(jobID)
	depth := m.queue.Len()
	m.mu.Unlock()
	metrics.SetSchedulerQueueDepth(depth)
	m.Wake()
}

// Wake triggers a refresh event: re-evaluate the admission predicate
// against the head of the FIFO. Safe to call from any goroutine,
// including from inside Spawn's done callback.
func (m *Manager) Wake() {
	select {
	case m.refresh <- struct{}{}:
	default:
	}
}

// Finished releases jobID's concurrency slot and triggers a refresh. It
// is the done callback the scheduler passes to Spawn.
func (m *Manager) Finished() {
	if m.sem != nil {
		m.sem.Release(1)
	}
	m.running.Add(-1)
	metrics.DecActiveWorkers()
	m.Wake()
}

// RunningCount reports the number of jobs currently admitted and not
// yet finished.
func (m *Manager) RunningCount() int64 { return m.running.Load() }

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.refresh:
			m.drain()
		}
	}
}

// drain dequeues ready jobs in strict FIFO order while the admission
// predicate holds: runningCount < maxConcurrent (trivially true with no
// ceiling) AND pool.FreeCount() >= 1.
func (m *Manager) drain() {
	for {
		free := m.pool.FreeCount()
		if free < 0 {
			m.log.Warn("connection pool reported negative free count")
			free = 0
		}
		metrics.SetPoolFreeConnections(free)
		if free < 1 {
			return
		}
		if m.sem != nil && !m.sem.TryAcquire(1) {
			return
		}

		m.mu.Lock()
		front := m.queue.Front()
		if front == nil {
			m.mu.Unlock()
			if m.sem != nil {
				m.sem.Release(1)
			}
			return
		}
		m.queue.Remove(front)
		m.mu.Unlock()

		jobID := front.Value.(string)
		if !m.trySpawn(jobID) {
			if m.sem != nil {
				m.sem.Release(1)
			}
			m.mu.Lock()
			m.queue.PushFront(jobID)
			depth := m.queue.Len()
			m.mu.Unlock()
			metrics.SetSchedulerQueueDepth(depth)
			m.scheduleRetry()
			return
		}
		m.mu.Lock()
		depth := m.queue.Len()
		m.mu.Unlock()
		metrics.SetSchedulerQueueDepth(depth)
		m.running.Add(1)
		metrics.IncActiveWorkers()
		m.retries.Store(0)
	}
}

func (m *Manager) trySpawn(jobID string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("spawn panicked", "job", jobID, "err", r)
			ok = false
		}
	}()
	return m.spawn(m.ctx, jobID, m.Finished)
}

// scheduleRetry logs the transient spawn failure and arranges for the
// next refresh to re-check the same head-of-queue job, per spec.md
// §4.3's "the event will retry on the next refresh".
func (m *Manager) scheduleRetry() {
	attempt := m.retries.Add(1)
	delay, _ := m.backoff.Next(attempt)
	m.log.Warn("job spawn failed, retrying", "attempt", attempt, "delay", delay)
	go func() {
		select {
		case <-m.ctx.Done():
		case <-time.After(delay):
			m.Wake()
		}
	}()
}
