package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/phase"
	"github.com/gotap/tapd/pipeline"
	"github.com/gotap/tapd/store"
)

// StopWait is the grace period a JobThread gives a cancelled pipeline
// run to yield before the job is marked ABORTED unconditionally and the
// worker is considered leaked (spec.md §4.4).
const StopWait = 2 * time.Second

// ResultSink persists a job's formatted output once WRITING_RESULT
// completes, returning an href the client can GET. The sync path
// typically bypasses ResultSink and writes straight to the HTTP
// response instead (see dispatch.Router).
type ResultSink interface {
	Store(ctx context.Context, jobID, resultID string, body io.Reader) (href string, err error)
}

// JobThread is the cooperative, single-job carrier of spec.md §4.4: it
// runs exactly one job's pipeline.Pipeline, enforces the
// executionDuration watchdog, and honors cooperative cancellation. It
// is built on the teacher's Worker.handleOrExtend/handle shape (run the
// handler in a goroutine, select over a timer and the result channel),
// generalized from "extend a lease on a timer" to "watch an
// execution-duration deadline", and its panic recovery mirrors
// internal.WorkerPool.safeHandle.
type JobThread struct {
	Pipeline *pipeline.Pipeline
	Phases   *phase.Manager
	Store    store.JobStore
	Sink     ResultSink
	Log      *slog.Logger

	mu         sync.Mutex
	cancellers map[string]func(reason string)
}

// NewJobThread builds a JobThread ready to Run jobs.
func NewJobThread(p *pipeline.Pipeline, phases *phase.Manager, s store.JobStore, sink ResultSink, log *slog.Logger) *JobThread {
	return &JobThread{
		Pipeline:   p,
		Phases:     phases,
		Store:      s,
		Sink:       sink,
		Log:        log,
		cancellers: make(map[string]func(reason string)),
	}
}

// Run executes jobID's pipeline to a terminal phase. It is the
// scheduler.Spawn function: it must return immediately once the job is
// handed off to a goroutine, which calls done exactly once on every
// exit path. A job that no longer exists or has already left QUEUED
// (for example, aborted while waiting) is dropped: Run reports true and
// calls done without running a pipeline, so the scheduler does not
// retry it.
func (t *JobThread) Run(ctx context.Context, jobID string, done func()) bool {
	j, err := t.Store.Get(ctx, "", jobID)
	if err != nil {
		t.Log.Error("job thread could not load job", "job_id", jobID, "err", err)
		if errors.Is(err, errs.ErrNotFound) {
			go done()
			return true
		}
		return false
	}

	j, err = t.Phases.Transition(ctx, jobID, job.Executing, func(jb *job.Job) {
		now := time.Now()
		jb.StartTime = &now
		jb.Progression = job.Uploading
	})
	if err != nil {
		t.Log.Warn("job thread could not enter executing", "job_id", jobID, "err", err)
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrBadPhaseTransition) {
			go done()
			return true
		}
		return false
	}

	go t.work(ctx, j, done)
	return true
}

// Abort raises the cancel flag for a running job, if one is currently
// executing under this JobThread. It returns false if the job is not
// currently tracked (already terminal, or never started here).
func (t *JobThread) Abort(jobID string) bool {
	t.mu.Lock()
	raise, ok := t.cancellers[jobID]
	t.mu.Unlock()
	if !ok {
		return false
	}
	raise("client_abort")
	return true
}

func (t *JobThread) register(jobID string, raise func(reason string)) {
	t.mu.Lock()
	t.cancellers[jobID] = raise
	t.mu.Unlock()
}

func (t *JobThread) unregister(jobID string) {
	t.mu.Lock()
	delete(t.cancellers, jobID)
	t.mu.Unlock()
}

type runResult struct {
	buf    *bytes.Buffer
	report *pipeline.ExecutionReport
	err    error
}

func (t *JobThread) work(parent context.Context, j *job.Job, done func()) {
	defer done()
	defer t.unregister(j.ID)
	defer func() {
		if r := recover(); r != nil {
			t.Log.Error("job thread panic recovered", "job_id", j.ID, "err", r)
			t.fail(context.Background(), j, runResult{err: errs.ErrExec})
		}
	}()

	ctx, stopCtx := context.WithCancel(parent)
	defer stopCtx()

	cancel := make(chan struct{})
	var cancelled atomic.Bool
	var reason atomic.Value
	reason.Store("")

	raise := func(r string) {
		if cancelled.CompareAndSwap(false, true) {
			reason.Store(r)
			close(cancel)
			stopCtx()
		}
	}
	t.register(j.ID, raise)

	var watchdog *time.Timer
	if j.ExecutionDuration > 0 {
		watchdog = time.AfterFunc(j.ExecutionDuration, func() { raise("timeout") })
		defer watchdog.Stop()
	}

	var buf bytes.Buffer
	resultCh := make(chan runResult, 1)
	go func() {
		report, err := t.Pipeline.Run(ctx, j, &buf, cancel, func(p job.Progression) {
			t.stampProgression(j.ID, p)
		})
		resultCh <- runResult{buf: &buf, report: report, err: err}
	}()

	select {
	case res := <-resultCh:
		t.finish(parent, j, res, reason.Load().(string))
		return
	case <-cancel:
	}

	select {
	case res := <-resultCh:
		t.finish(parent, j, res, reason.Load().(string))
	case <-time.After(StopWait):
		t.Log.Warn("job thread exceeded stop wait, worker abandoned", "job_id", j.ID)
		t.markAborted(context.Background(), j.ID, reason.Load().(string))
	}
}

func (t *JobThread) stampProgression(jobID string, p job.Progression) {
	if _, err := t.Store.CompareAndTransition(context.Background(), jobID, job.Executing, job.Executing, func(jb *job.Job) {
		jb.Progression = p
	}); err != nil {
		t.Log.Debug("progression stamp skipped", "job_id", jobID, "progression", p, "err", err)
	}
}

func (t *JobThread) finish(ctx context.Context, j *job.Job, res runResult, reason string) {
	switch {
	case res.err == nil:
		t.complete(ctx, j, res)
	case errors.Is(res.err, errs.ErrInterrupted), errors.Is(res.err, errs.ErrTimeout):
		t.abortTerminal(ctx, j, res, reason)
	default:
		t.fail(ctx, j, res)
	}
}

func (t *JobThread) complete(ctx context.Context, j *job.Job, res runResult) {
	var href string
	if t.Sink != nil {
		h, err := t.Sink.Store(ctx, j.ID, "result", bytes.NewReader(res.buf.Bytes()))
		if err != nil {
			t.fail(ctx, j, runResult{report: res.report, err: err})
			return
		}
		href = h
	}
	mimeType := j.Params.Format
	if f, ok := t.Pipeline.Formatters[j.Params.Format]; ok {
		mimeType = f.MimeType()
	}
	_, err := t.Phases.Transition(ctx, j.ID, job.Completed, func(jb *job.Job) {
		jb.Results = []job.Result{{
			ID:       "result",
			HRef:     href,
			MimeType: mimeType,
			Size:     int64(res.buf.Len()),
		}}
	})
	if err != nil {
		t.Log.Error("failed to transition job to completed", "job_id", j.ID, "err", err)
	}
}

func (t *JobThread) abortTerminal(ctx context.Context, j *job.Job, res runResult, reason string) {
	msg := "job interrupted"
	if reason == "timeout" || errors.Is(res.err, errs.ErrTimeout) {
		msg = "execution duration exceeded"
	}
	_, err := t.Phases.Transition(ctx, j.ID, job.Aborted, func(jb *job.Job) {
		jb.ErrorSummary = &job.ErrorSummary{Message: msg, Kind: job.Fatal}
	})
	if err != nil {
		t.Log.Error("failed to transition job to aborted", "job_id", j.ID, "err", err)
	}
}

func (t *JobThread) markAborted(ctx context.Context, jobID, reason string) {
	msg := "job thread did not yield within stop wait"
	if reason == "timeout" {
		msg = "execution duration exceeded; worker abandoned after stop wait"
	}
	cur, err := t.Store.Get(ctx, "", jobID)
	if err != nil || cur.Phase.Terminal() {
		return
	}
	if _, err := t.Phases.Transition(ctx, jobID, job.Aborted, func(jb *job.Job) {
		jb.ErrorSummary = &job.ErrorSummary{Message: msg, Kind: job.Fatal}
	}); err != nil {
		t.Log.Error("failed to force-abort leaked job", "job_id", jobID, "err", err)
	}
}

func (t *JobThread) fail(ctx context.Context, j *job.Job, res runResult) {
	failedStage := job.NotExecuting
	if res.report != nil {
		failedStage = res.report.FailedStage
	}
	_, err := t.Phases.Transition(ctx, j.ID, job.Error, func(jb *job.Job) {
		jb.ErrorSummary = &job.ErrorSummary{
			Message: sanitize(res.err),
			Kind:    job.Fatal,
		}
		jb.Progression = failedStage
	})
	if err != nil {
		t.Log.Error("failed to transition job to error", "job_id", j.ID, "err", err)
	}
}

// sanitize strips DB-internal error detail before it reaches the
// client, per spec.md §7's "EXEC_ERROR ... DB message is sanitized".
func sanitize(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, errs.ErrParse):
		return "query failed to parse"
	case errors.Is(err, errs.ErrTranslate):
		return "query failed to translate"
	case errors.Is(err, errs.ErrUploadFailed):
		return "upload failed"
	case errors.Is(err, errs.ErrExec):
		return "query execution failed"
	case errors.Is(err, errs.ErrWrite):
		return "result write failed"
	default:
		return "internal error"
	}
}
