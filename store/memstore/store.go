// Package memstore provides an in-process store.JobStore, suitable for
// tests and single-node deployments that don't need durability across
// restarts.
//
// It mirrors the SQL backend's atomicity guarantees with a single mutex
// guarding the whole list rather than per-row locks, since
// there is no concurrent external writer to race against.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/store"
)

type entry struct {
	job *job.Job
	seq uint64
}

// Store is an in-memory store.JobStore.
type Store struct {
	mu   sync.Mutex
	seq  uint64
	jobs map[string]*entry
}

var _ store.JobStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]*entry)}
}

func cloneJob(j *job.Job) *job.Job {
	cp := *j
	cp.Results = append([]job.Result(nil), j.Results...)
	return &cp
}

func (s *Store) Add(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; exists {
		return errs.ErrDuplicateID
	}
	s.seq++
	s.jobs[j.ID] = &entry{job: cloneJob(j), seq: s.seq}
	return nil
}

func visible(owner string, j *job.Job) bool {
	return owner == "" || j.Owner == "" || j.Owner == owner
}

func (s *Store) Get(_ context.Context, owner, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok || !visible(owner, e.job) {
		return nil, errs.ErrNotFound
	}
	return cloneJob(e.job), nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *Store) Iterate(_ context.Context, owner string) (store.Iterator, error) {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		if visible(owner, e.job) {
			entries = append(entries, e)
		}
	}
	s.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	jobs := make([]*job.Job, len(entries))
	for i, e := range entries {
		jobs[i] = cloneJob(e.job)
	}
	return &sliceIterator{jobs: jobs, idx: -1}, nil
}

func (s *Store) CompareAndTransition(_ context.Context, id string, from, to job.Phase, mutate func(*job.Job)) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if e.job.Phase != from {
		return nil, errs.ErrBadPhaseTransition
	}
	e.job.Phase = to
	if to.Terminal() && e.job.EndTime == nil {
		now := time.Now()
		e.job.EndTime = &now
	}
	if mutate != nil {
		mutate(e.job)
	}
	return cloneJob(e.job), nil
}

func (s *Store) SetParams(_ context.Context, id string, mutate func(*job.Job)) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if e.job.Phase != job.Pending {
		return nil, errs.ErrBadPhaseTransition
	}
	mutate(e.job)
	return cloneJob(e.job), nil
}

type sliceIterator struct {
	jobs []*job.Job
	idx  int
}

func (it *sliceIterator) Next(context.Context) bool {
	it.idx++
	return it.idx < len(it.jobs)
}

func (it *sliceIterator) Job() *job.Job {
	if it.idx < 0 || it.idx >= len(it.jobs) {
		return nil
	}
	return it.jobs[it.idx]
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
