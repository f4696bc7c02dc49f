// Package pipeline implements QueryPipeline (spec.md §4.5): the
// upload -> parse -> translate -> execute -> write stage sequence a
// worker.JobThread drives for one job, with per-stage timing, fault
// attribution via job.Progression, and guaranteed finalization
// (drop temporary uploads, release the DB connection, complete the
// ExecutionReport returned to the caller, emit one "query finished" log
// record) on every exit path. The report is not stored on the job.
//
// The Parser, Translator, Formatter and MetadataProvider collaborator
// interfaces are the ones spec.md §6 deliberately leaves external; this
// package also ships minimal, real reference implementations (a small
// ADQL-subset recognizer, a Postgres-flavored translator, CSV and
// VOTable-lite formatters, an in-memory upload namespace) so the module
// builds and runs end to end without a production ADQL stack wired in.
package pipeline
