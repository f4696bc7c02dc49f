package phase

import (
	"context"
	"sync"
	"time"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/internal"
	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/metrics"
	"github.com/gotap/tapd/store"
)

// DefaultWaitCap is the NULL-policy maximum wait applied by AwaitPhaseChange
// when the caller asks for longer (or for "until change", WAIT=-1).
const DefaultWaitCap = 60 * time.Second

// legal maps a phase to the set of phases it may transition to.
var legal = map[job.Phase][]job.Phase{
	job.Pending:   {job.Queued, job.Aborted},
	job.Queued:    {job.Executing, job.Aborted},
	job.Executing: {job.Completed, job.Error, job.Aborted},
	job.Completed: {job.Archived},
	job.Error:     {job.Archived},
}

func isLegal(from, to job.Phase) bool {
	for _, t := range legal[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Manager is the UWS phase state machine. It serializes transitions
// through the underlying store.JobStore and wakes blocking-poll waiters
// after every transition that actually occurs.
type Manager struct {
	store store.JobStore

	mu      sync.Mutex
	waiters map[string]internal.DoneChan
}

// NewManager wraps s.
func NewManager(s store.JobStore) *Manager {
	return &Manager{store: s, waiters: make(map[string]internal.DoneChan)}
}

// Transition moves job id to target, validating against the legal phase
// graph before touching the store. mutate, if non-nil, is applied to the
// job within the store's own critical section (see store.JobStore), and
// is the right place to stamp StartTime/EndTime/Results/ErrorSummary.
//
// It returns errs.ErrBadPhaseTransition if the transition is not legal
// for the job's current phase. If the phase has already changed
// underneath the caller, the store's error is returned unchanged (both
// bundled stores report errs.ErrBadPhaseTransition).
func (m *Manager) Transition(ctx context.Context, id string, target job.Phase, mutate func(*job.Job)) (*job.Job, error) {
	current, err := m.store.Get(ctx, "", id)
	if err != nil {
		return nil, err
	}
	if !isLegal(current.Phase, target) {
		return nil, errs.ErrBadPhaseTransition
	}
	updated, err := m.store.CompareAndTransition(ctx, id, current.Phase, target, mutate)
	if err != nil {
		return nil, err
	}
	metrics.RecordTransition(target)
	if target == job.Error && updated.ErrorSummary != nil {
		metrics.RecordQueryError(updated.ErrorSummary.Kind.String())
	}
	m.notify(id)
	return updated, nil
}

func (m *Manager) notify(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.waiters[id]; ok {
		close(ch)
	}
	m.waiters[id] = make(internal.DoneChan)
}

func (m *Manager) waitChan(id string) internal.DoneChan {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.waiters[id]
	if !ok {
		ch = make(internal.DoneChan)
		m.waiters[id] = ch
	}
	return ch
}

// AwaitPhaseChange blocks until job id's phase differs from fromPhase,
// ctx is cancelled, or timeout elapses, whichever comes first. A
// negative timeout means "until change", capped at DefaultWaitCap.
//
// It returns the job's phase at wake time and whether the wait timed
// out rather than observing an actual change.
func (m *Manager) AwaitPhaseChange(ctx context.Context, id string, fromPhase job.Phase, timeout time.Duration) (job.Phase, bool, error) {
	if timeout < 0 || timeout > DefaultWaitCap {
		timeout = DefaultWaitCap
	}

	j, err := m.store.Get(ctx, "", id)
	if err != nil {
		return job.Unknown, false, err
	}
	if j.Phase != fromPhase {
		return j.Phase, false, nil
	}

	ch := m.waitChan(id)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
	case <-timer.C:
		j, err := m.store.Get(ctx, "", id)
		if err != nil {
			return job.Unknown, false, err
		}
		return j.Phase, j.Phase == fromPhase, nil
	case <-ctx.Done():
		return job.Unknown, false, ctx.Err()
	}

	j, err = m.store.Get(ctx, "", id)
	if err != nil {
		return job.Unknown, false, err
	}
	return j.Phase, false, nil
}
