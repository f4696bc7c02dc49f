package store

import (
	"context"

	"github.com/gotap/tapd/job"
)

// JobStore is the per-job-list persistence contract (spec.md §4.1).
//
// Add, Get, Remove and Iterate provide ordered, per-user access; Get and
// Iterate filter visibility by owner (a job is visible only to its owner,
// or to anyone when owner is "" — the anonymous list). CompareAndTransition
// is the atomic phase-transition primitive consumed by phase.Manager.
//
// Implementations must make concurrent Add/Get/Remove/CompareAndTransition
// linearizable per list (spec.md §4.1's guarantee).
type JobStore interface {
	// Add inserts a new job. It fails with errs.ErrDuplicateID if the
	// job's ID already exists in this list.
	Add(ctx context.Context, j *job.Job) error

	// Get returns the job identified by id, or errs.ErrNotFound if it
	// does not exist or is not visible to caller (owner must equal the
	// job's owner, or be "" to see anonymous jobs; "" as owner also
	// means "no filter" for implementations that treat an empty caller
	// identity as administrative — see the memstore/sql implementations
	// for the exact rule each applies).
	Get(ctx context.Context, owner, id string) (*job.Job, error)

	// Remove unlinks the job from the list. It does not perform
	// destruction-related cleanup (upload namespace, result files);
	// callers invoke that separately (see destruct.Scheduler).
	Remove(ctx context.Context, id string) error

	// Iterate returns the jobs visible to owner (its own jobs plus
	// anonymous ones, or all jobs if owner is ""), ordered by insertion
	// time, as a lazy Iterator.
	Iterate(ctx context.Context, owner string) (Iterator, error)

	// CompareAndTransition atomically moves the job from "from" to "to"
	// and, within the same critical section, applies mutate to the
	// in-memory snapshot it returns — mutate is where a caller stamps
	// StartTime/EndTime/Results/ErrorSummary. It fails with
	// errs.ErrBadPhaseTransition if the job's current phase is not
	// "from", and errs.ErrNotFound if the job does not exist.
	//
	// This is the sole mutation path for Phase, StartTime, EndTime,
	// Results and ErrorSummary. phase.Manager makes every phase change
	// through it; worker.JobThread also calls it with from == to ==
	// Executing to stamp Progression.
	CompareAndTransition(ctx context.Context, id string, from, to job.Phase, mutate func(*job.Job)) (*job.Job, error)

	// SetParams applies mutate to the job's Params, but only while the
	// job has never left Pending (spec.md §6: "parameters ...
	// pre-execution only"). It fails with errs.ErrBadPhaseTransition if
	// the job has already been queued.
	SetParams(ctx context.Context, id string, mutate func(*job.Job)) (*job.Job, error)
}

// Iterator lazily yields jobs in insertion order. Callers must call
// Close when done, even after Next returns false.
type Iterator interface {
	Next(ctx context.Context) bool
	Job() *job.Job
	Err() error
	Close() error
}
