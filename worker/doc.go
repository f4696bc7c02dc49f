// Package worker implements JobThread (spec.md §4.4): the cooperative,
// single-job carrier that drives one job's pipeline.Pipeline run from
// EXECUTING to a terminal phase.
//
// A JobThread is spawned by the scheduler once the admission predicate
// opens; it is not a pool (that role belongs to scheduler.Manager). Its
// only job is to run exactly one pipeline to completion, enforce the
// executionDuration watchdog, and honor a cooperative cancellation flag,
// mirroring the teacher's Worker.handleOrExtend/handle shape generalized
// from "extend a queue lease" to "watch an execution-duration deadline".
package worker
