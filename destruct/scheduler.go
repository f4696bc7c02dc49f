package destruct

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gotap/tapd/internal"
	"github.com/gotap/tapd/pipeline"
	"github.com/gotap/tapd/store"
)

// Aborter raises the cancel flag for a currently executing job. It is
// satisfied by *worker.JobThread; destruct doesn't import worker
// directly to avoid a cycle (worker already imports pipeline/phase/store,
// and the scheduler needs only this one method).
type Aborter interface {
	Abort(jobID string) bool
}

// ResultRemover deletes a completed job's persisted result artifacts.
// Implementations are typically the same type as worker.ResultSink.
type ResultRemover interface {
	Remove(ctx context.Context, jobID string) error
}

// item is one entry in the destruction heap.
type item struct {
	jobID string
	at    time.Time
	index int
}

type itemHeap []*item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *itemHeap) Push(x any)         { it := x.(*item); it.index = len(*h); *h = append(*h, it) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Scheduler is the DestructionScheduler: a min-heap on destruction time,
// with a single timer reset to the earliest pending entry on every
// insert. Calling Evict directly (e.g. from an explicit DELETE) removes
// the corresponding heap entry so the background sweep never double-runs
// it.
type Scheduler struct {
	internal.Lifecycle

	store    store.JobStore
	metadata pipeline.MetadataProvider
	aborter  Aborter
	results  ResultRemover
	log      *slog.Logger

	mu      sync.Mutex
	heap    itemHeap
	byJob   map[string]*item
	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    internal.DoneChan
}

// New builds a Scheduler. results may be nil if no persisted result
// artifacts exist (e.g. sync-only deployments).
func New(s store.JobStore, metadata pipeline.MetadataProvider, aborter Aborter, results ResultRemover, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		metadata: metadata,
		aborter:  aborter,
		results:  results,
		log:      log,
		byJob:    make(map[string]*item),
		wake:     make(chan struct{}, 1),
	}
}

// Start begins the background sweep goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.TryStart() {
		return errDoubleStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(internal.DoneChan)
	go s.run()
	return nil
}

// Stop cancels the sweep loop and waits up to timeout for it to exit.
func (s *Scheduler) Stop(timeout time.Duration) error {
	ok, timedOut := s.TryStop(timeout, func() internal.DoneChan {
		s.cancel()
		return s.done
	})
	if !ok {
		return errDoubleStopped
	}
	if timedOut {
		return errStopTimeout
	}
	return nil
}

// Schedule registers jobID for destruction at at, replacing any
// previously scheduled entry for the same job id.
func (s *Scheduler) Schedule(jobID string, at time.Time) {
	s.mu.Lock()
	if existing, ok := s.byJob[jobID]; ok {
		existing.at = at
		heap.Fix(&s.heap, existing.index)
	} else {
		it := &item{jobID: jobID, at: at}
		heap.Push(&s.heap, it)
		s.byJob[jobID] = it
	}
	s.mu.Unlock()
	s.wakeUp()
}

// Cancel removes jobID from the destruction queue, e.g. after an
// explicit DELETE has already performed the eviction.
func (s *Scheduler) Cancel(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byJob[jobID]
	if !ok {
		return
	}
	heap.Remove(&s.heap, it.index)
	delete(s.byJob, jobID)
}

// Evict performs jobID's destruction immediately, cancelling any pending
// scheduled entry first so the background sweep never double-runs it.
// This is the path an explicit client DELETE (spec.md §6, ACTION=DELETE)
// takes, instead of waiting for the scheduled destruction time.
func (s *Scheduler) Evict(jobID string) {
	s.Cancel(jobID)
	s.evict(jobID)
}

func (s *Scheduler) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) nextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return time.Time{}, false
	}
	return s.heap[0].at, true
}

func (s *Scheduler) popReady(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ready []string
	for len(s.heap) > 0 && !s.heap[0].at.After(now) {
		it := heap.Pop(&s.heap).(*item)
		delete(s.byJob, it.jobID)
		ready = append(ready, it.jobID)
	}
	return ready
}

func (s *Scheduler) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		if at, ok := s.nextDeadline(); ok {
			d := time.Until(at)
			if d < 0 {
				d = 0
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
			continue
		case <-timer.C:
			for _, jobID := range s.popReady(time.Now()) {
				s.evict(jobID)
			}
		}
	}
}

// evict performs the destruction steps guaranteed by spec.md §9's open
// question resolution #1: abort the job if still active, drop its
// upload namespace, remove any persisted result artifacts (terminal or
// not), then unlink it from the store.
func (s *Scheduler) evict(jobID string) {
	j, err := s.store.Get(s.ctx, "", jobID)
	if err != nil {
		return // already removed independently of this scheduler
	}
	if !j.Phase.Terminal() {
		s.aborter.Abort(jobID)
	}
	if err := s.metadata.DropUploads(s.ctx, jobID); err != nil {
		s.log.Error("failed to drop upload namespace on destruction", "job_id", jobID, "err", err)
	}
	if s.results != nil {
		if err := s.results.Remove(s.ctx, jobID); err != nil {
			s.log.Error("failed to remove result artifacts on destruction", "job_id", jobID, "err", err)
		}
	}
	if err := s.store.Remove(s.ctx, jobID); err != nil {
		s.log.Error("failed to remove job on destruction", "job_id", jobID, "err", err)
	}
	s.log.Info("job destroyed", "job_id", jobID, "phase", j.Phase)
}

var (
	errDoubleStarted = schedulerError("destruct: scheduler already started")
	errDoubleStopped = schedulerError("destruct: scheduler not running")
	errStopTimeout   = schedulerError("destruct: stop timed out")
)

type schedulerError string

func (e schedulerError) Error() string { return string(e) }
