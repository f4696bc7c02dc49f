package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/store"
)

// Store is a bun-backed store.JobStore.
//
// Unlike the teacher's split Puller/Pusher/Observer/Cleaner, every
// mutation here ultimately goes through CompareAndTransition or
// SetParams, so one type is enough: there is no separate "pull batch"
// operation because the UWS phase graph has no analogue of a worker
// polling a shared queue for unclaimed rows. The scheduler owns that
// instead (see the scheduler package).
type Store struct {
	db *bun.DB
}

var _ store.JobStore = (*Store)(nil)

// New wraps db as a store.JobStore. The caller must have already run
// InitDB against db.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Add(ctx context.Context, j *job.Job) error {
	_, err := s.db.NewInsert().Model(fromJob(j)).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrDuplicateID
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, owner, id string) (*job.Job, error) {
	var m jobModel
	q := s.db.NewSelect().Model(&m).Where("id = ?", id)
	if owner != "" {
		q = q.Where("owner = ? OR owner = ''", owner)
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return m.toJob(), nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*jobModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) Iterate(ctx context.Context, owner string) (store.Iterator, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).Order("creation_time ASC")
	if owner != "" {
		q = q.Where("owner = ? OR owner = ''", owner)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	jobs := make([]*job.Job, len(models))
	for i := range models {
		jobs[i] = models[i].toJob()
	}
	return &sliceIterator{jobs: jobs, idx: -1}, nil
}

// CompareAndTransition locks the row with SELECT ... FOR UPDATE, checks
// the in-transaction phase against from, applies mutate to the decoded
// job, and rewrites the full row before commit.
//
// This is heavier than the teacher's single UPDATE ... RETURNING
// because mutate is opaque to the query builder: the row lock stands in
// for the column-level compare-and-set the teacher got from naming the
// touched columns in the statement itself.
func (s *Store) CompareAndTransition(ctx context.Context, id string, from, to job.Phase, mutate func(*job.Job)) (*job.Job, error) {
	var result *job.Job
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var m jobModel
		err := tx.NewSelect().Model(&m).Where("id = ?", id).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if m.Phase != from {
			return errs.ErrBadPhaseTransition
		}
		j := m.toJob()
		j.Phase = to
		if to.Terminal() && j.EndTime == nil {
			now := time.Now()
			j.EndTime = &now
		}
		if mutate != nil {
			mutate(j)
		}
		updated := fromJob(j)
		if _, err := tx.NewUpdate().Model(updated).WherePK().Exec(ctx); err != nil {
			return err
		}
		result = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetParams behaves like CompareAndTransition but guards on Phase ==
// job.Pending rather than a specific transition, since parameter edits
// are legal at any point before the job first leaves Pending, not just
// across a single named edge.
func (s *Store) SetParams(ctx context.Context, id string, mutate func(*job.Job)) (*job.Job, error) {
	var result *job.Job
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var m jobModel
		err := tx.NewSelect().Model(&m).Where("id = ?", id).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if m.Phase != job.Pending {
			return errs.ErrBadPhaseTransition
		}
		j := m.toJob()
		mutate(j)
		updated := fromJob(j)
		if _, err := tx.NewUpdate().Model(updated).WherePK().Exec(ctx); err != nil {
			return err
		}
		result = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	// bun surfaces driver-specific errors unwrapped; matching on text is
	// the same approach the teacher takes for cross-dialect portability
	// (sqlite, pgdialect) rather than importing each driver's error type.
	msg := err.Error()
	for _, sub := range []string{"UNIQUE constraint failed", "duplicate key value", "violates unique constraint"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
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
