// Package scheduler implements the ExecutionManager: the gate deciding
// when a QUEUED job may transition to EXECUTING.
//
// Admission is a FIFO queue gated on two predicates: a concurrency
// ceiling (golang.org/x/sync/semaphore.Weighted) and the connection
// pool's free count. A refresh event — a job enqueued, a job
// finishing, a connection freed, or an explicit Manager.Wake call — wakes
// the dispatch loop, which drains the FIFO while both gates allow it,
// strictly in enqueue order.
//
// This generalizes the teacher's Worker dispatch loop (pull a batch,
// push to a fixed-size internal.WorkerPool) into "hold a FIFO of ready
// jobs, admit only when the ceiling and the pool both have room" — the
// teacher never modeled a second resource constraint alongside
// concurrency, so the single semaphore gate grows a second gate here.
package scheduler
