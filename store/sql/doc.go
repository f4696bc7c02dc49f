// Package sqlstore provides a bun-based store.JobStore implementation.
//
// This package is the direct descendant of the teacher's queue storage
// package: it keeps the same shape (a jobModel bun.BaseModel, InitDB
// creating the table and its indexes inside one transaction, atomic
// row-level transitions) but the state machine is now
// the 10-phase UWS graph (job.Phase) rather than a 4-state queue lease,
// and CompareAndTransition takes an arbitrary mutate callback since a
// phase transition's side effects (StartTime, EndTime, Results,
// ErrorSummary) vary by transition rather than being fixed per RPC as
// Complete/Return/Kill were.
//
// # Concurrency Model
//
// CompareAndTransition and SetParams each run inside a single
// transaction: a SELECT ... FOR UPDATE locks the row, the in-transaction
// read is checked against the expected phase, and the full row is
// rewritten before commit. This is a heavier-weight primitive than the
// teacher's single UPDATE ... RETURNING, because the mutate callback can
// touch any mutable column, not a fixed set known at compile time; the
// row lock replaces what the teacher's narrower, single-statement
// UPDATE got for free.
//
// # Database Lifecycle
//
// As in the teacher's package, this package does not manage connection
// pooling or migrations. The caller (cmd/tapd) is responsible for
// constructing *bun.DB and running InitDB before use.
package sqlstore
