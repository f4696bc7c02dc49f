// Package store defines the JobStore contract: an ordered, per-user
// mapping of jobs within one named job list (spec.md §4.1), plus the
// atomic phase-transition primitive phase.Manager builds on.
//
// There is no registry mapping list names to JobStore instances in this
// module: dispatch.Router serves every {jobList} path from its single
// Store.
//
// Two implementations are provided: memstore, an in-process map for
// tests and small deployments, and sql, a durable github.com/uptrace/bun
// backend directly descended from the teacher's queue storage package
// (transactional SELECT ... FOR UPDATE transitions).
package store
