package dispatch

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/metrics"
	"github.com/gotap/tapd/phase"
	"github.com/gotap/tapd/validate"
)

// listJobs handles GET /{jobList}: spec.md §6's "list jobs" operation,
// scoped to the jobs visible to the caller: its own jobs plus anonymous
// ones (every job when the caller is anonymous).
func (rt *Router) listJobs(w http.ResponseWriter, r *http.Request) result {
	owner := rt.Identify.Identify(r)
	it, err := rt.Store.Iterate(r.Context(), owner)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	defer it.Close()

	var out jobListSummary
	for it.Next(r.Context()) {
		out.Jobs = append(out.Jobs, toJobSummary(it.Job()))
	}
	if err := it.Err(); err != nil {
		return fail(errs.StatusCode(err), err)
	}
	return ok(out)
}

// createJob handles POST /{jobList}: creates a new job in PENDING,
// validates its parameters, and redirects to the new job's resource
// (spec.md §6: "Create a new job ... 303 to new job").
func (rt *Router) createJob(w http.ResponseWriter, r *http.Request) result {
	p, err := parseParams(r, rt.Uploads, rt.UploadsEnabled)
	if err != nil {
		return fail(http.StatusBadRequest, err)
	}
	if err := validate.Params(&p); err != nil {
		return fail(errs.StatusCode(err), err)
	}

	owner := rt.Identify.Identify(r)
	id := rt.IDs.NewID()
	now := time.Now()
	j := &job.Job{
		ID:                id,
		Owner:             owner,
		Params:            p,
		Phase:             job.Pending,
		CreationTime:      now,
		DestructionTime:   now.Add(rt.DefaultDestructionLifetime),
		ExecutionDuration: rt.DefaultExecutionDuration,
	}
	if err := rt.Store.Add(r.Context(), j); err != nil {
		return fail(errs.StatusCode(err), err)
	}
	metrics.RecordSubmission(p.Request)
	rt.Destruct.Schedule(id, j.DestructionTime)
	return redirect(rt.jobLocation(r, id))
}

func (rt *Router) jobLocation(r *http.Request, id string) string {
	jobList := chi.URLParam(r, "jobList")
	if jobList == "" {
		jobList = "async"
	}
	return "/" + jobList + "/" + id
}

// getJob handles GET /{jobList}/{id}.
func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	return ok(toJobSummary(j))
}

// deleteJob handles DELETE /{jobList}/{id}, performing immediate
// destruction (spec.md §6, §9 open question resolution #1) rather than
// waiting for the scheduled time. Only the DELETE method is routed here;
// a POST with ACTION=DELETE to /{jobList}/{id} has no route.
func (rt *Router) deleteJob(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	rt.Destruct.Evict(j.ID)
	return ok(struct{}{})
}

func (rt *Router) loadOwned(r *http.Request) (*job.Job, error) {
	id := chi.URLParam(r, "id")
	owner := rt.Identify.Identify(r)
	j, err := rt.Store.Get(r.Context(), owner, id)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// getPhase handles GET /{jobList}/{id}/phase, blocking up to WAIT
// seconds for a phase change when the query parameter is present
// (spec.md §6's long-poll semantics, phase.Manager.AwaitPhaseChange).
func (rt *Router) getPhase(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}

	if waitRaw := r.URL.Query().Get("WAIT"); waitRaw != "" {
		seconds, err := strconv.ParseInt(waitRaw, 10, 64)
		if err != nil {
			return fail(http.StatusBadRequest, err)
		}
		timeout := phase.DefaultWaitCap
		if seconds >= 0 {
			timeout = time.Duration(seconds) * time.Second
		}
		p, _, err := rt.Phases.AwaitPhaseChange(r.Context(), j.ID, j.Phase, timeout)
		if err != nil {
			return fail(errs.StatusCode(err), err)
		}
		return ok(phaseDocument{Phase: p.String()})
	}
	return ok(phaseDocument{Phase: j.Phase.String()})
}

type phaseDocument struct {
	Phase string `json:"phase"`
}

// postPhase handles POST /{jobList}/{id}/phase: PHASE=RUN admits the
// job to the scheduler, PHASE=ABORT cancels it (spec.md §6).
func (rt *Router) postPhase(w http.ResponseWriter, r *http.Request) result {
	p, err := parseParams(r, nil, false)
	if err != nil {
		return fail(http.StatusBadRequest, err)
	}
	action, _ := p.Get("phase")

	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}

	switch strings.ToUpper(action) {
	case "RUN":
		// Already admitted: a repeat RUN is a no-op per spec.md §8, not a
		// BAD_PHASE_TRANSITION (Queued/Executing aren't legal targets from
		// themselves).
		if j.Phase == job.Queued || j.Phase == job.Executing {
			return redirect(rt.jobLocation(r, j.ID))
		}
		if _, err := rt.Phases.Transition(r.Context(), j.ID, job.Queued, nil); err != nil {
			return fail(errs.StatusCode(err), err)
		}
		rt.Scheduler.Enqueue(j.ID)
	case "ABORT":
		if j.Phase == job.Executing {
			rt.Worker.Abort(j.ID)
		} else if !j.Phase.Terminal() {
			if _, err := rt.Phases.Transition(r.Context(), j.ID, job.Aborted, nil); err != nil {
				return fail(errs.StatusCode(err), err)
			}
		}
	default:
		return fail(http.StatusBadRequest, errs.ErrInvalidParam)
	}
	return redirect(rt.jobLocation(r, j.ID))
}

// getExecutionDuration / postExecutionDuration implement spec.md §6's
// executionduration sub-resource, in seconds.
func (rt *Router) getExecutionDuration(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	return ok(int64(j.ExecutionDuration / time.Second))
}

func (rt *Router) postExecutionDuration(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	if j.Phase != job.Pending {
		return fail(http.StatusBadRequest, errs.ErrBadPhaseTransition)
	}
	seconds, err := readFormInt(r)
	if err != nil {
		return fail(http.StatusBadRequest, err)
	}
	duration := time.Duration(seconds) * time.Second
	if rt.MaxExecutionDuration > 0 && (duration <= 0 || duration > rt.MaxExecutionDuration) {
		duration = rt.MaxExecutionDuration
	}
	if _, err := rt.Store.SetParams(r.Context(), j.ID, func(jb *job.Job) {
		jb.ExecutionDuration = duration
	}); err != nil {
		return fail(errs.StatusCode(err), err)
	}
	return redirect(rt.jobLocation(r, j.ID))
}

// getDestruction / postDestruction implement spec.md §6's destruction
// sub-resource: an RFC3339 instant after which the job is destroyed.
func (rt *Router) getDestruction(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	return ok(j.DestructionTime.Format(time.RFC3339))
}

func (rt *Router) postDestruction(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	p, err := parseParams(r, nil, false)
	if err != nil {
		return fail(http.StatusBadRequest, err)
	}
	raw, _ := p.Get("destruction")
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fail(http.StatusBadRequest, err)
	}
	if _, err := rt.Store.SetParams(r.Context(), j.ID, func(jb *job.Job) {
		jb.DestructionTime = at
	}); err != nil {
		return fail(errs.StatusCode(err), err)
	}
	rt.Destruct.Schedule(j.ID, at)
	return redirect(rt.jobLocation(r, j.ID))
}

func readFormInt(r *http.Request) (int64, error) {
	p, err := parseParams(r, nil, false)
	if err != nil {
		return 0, err
	}
	raw, ok := p.Get("executionduration")
	if !ok {
		return 0, errs.ErrInvalidParam
	}
	return strconv.ParseInt(raw, 10, 64)
}

// getParameters / getParameter implement spec.md §6's parameters
// sub-resource, read-only here; mutation is only ever via createJob
// (pre-execution parameters are fixed at submission in this
// deployment, matching store.JobStore.SetParams's "pre-execution only"
// guarantee for the fields dispatch itself exposes as writable above).
func (rt *Router) getParameters(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	return ok(paramsToMap(j))
}

func (rt *Router) getParameter(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	name := chi.URLParam(r, "name")
	m := paramsToMap(j)
	v, ok2 := m[strings.ToLower(name)]
	if !ok2 {
		return fail(http.StatusNotFound, errs.ErrNotFound)
	}
	return ok(v)
}

// getError handles GET /{jobList}/{id}/error.
func (rt *Router) getError(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	if j.ErrorSummary == nil {
		return fail(http.StatusNotFound, errs.ErrNotFound)
	}
	return ok(errorSummary{
		Message:    j.ErrorSummary.Message,
		Kind:       j.ErrorSummary.Kind.String(),
		DetailsRef: j.ErrorSummary.DetailsRef,
	})
}

// getResult streams a job's stored result file back to the client
// (spec.md §6's results sub-resource, non-default result id form).
func (rt *Router) getResult(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	resultID := chi.URLParam(r, "resultID")
	var res *job.Result
	for i := range j.Results {
		if j.Results[i].ID == resultID {
			res = &j.Results[i]
			break
		}
	}
	if res == nil {
		return fail(http.StatusNotFound, errs.ErrNotFound)
	}
	f, err := rt.Results.Open(j.ID, resultID)
	if err != nil {
		return fail(http.StatusNotFound, err)
	}
	defer f.Close()
	if res.MimeType != "" {
		w.Header().Set("Content-Type", res.MimeType)
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
	return streamed()
}

func (rt *Router) getResults(w http.ResponseWriter, r *http.Request) result {
	j, err := rt.loadOwned(r)
	if err != nil {
		return fail(errs.StatusCode(err), err)
	}
	var out []resultSummary
	for _, res := range j.Results {
		out = append(out, resultSummary{ID: res.ID, HRef: res.HRef, MimeType: res.MimeType, Size: res.Size})
	}
	return ok(out)
}

// runSync handles /sync: a doQuery request that runs the pipeline
// in-line, streaming its formatted output directly to the response
// (spec.md §4.5's note that the sync path bypasses ResultSink).
func (rt *Router) runSync(w http.ResponseWriter, r *http.Request) result {
	p, err := parseParams(r, rt.Uploads, rt.UploadsEnabled)
	if err != nil {
		return fail(http.StatusBadRequest, err)
	}
	if err := validate.Params(&p); err != nil {
		return fail(errs.StatusCode(err), err)
	}
	if strings.EqualFold(p.Request, "getCapabilities") {
		return rt.writeCapabilities(w)
	}

	owner := rt.Identify.Identify(r)
	now := time.Now()
	j := &job.Job{
		ID:              rt.IDs.NewID(),
		Owner:           owner,
		Params:          p,
		Phase:           job.Executing,
		CreationTime:    now,
		StartTime:       &now,
		DestructionTime: now.Add(rt.DefaultDestructionLifetime),
	}

	cancel := make(chan struct{})
	go func() {
		select {
		case <-r.Context().Done():
			close(cancel)
		case <-cancel:
		}
	}()

	if f, ok2 := rt.Pipeline.Formatters[strings.ToLower(p.Format)]; ok2 {
		w.Header().Set("Content-Type", f.MimeType())
	}
	w.WriteHeader(http.StatusOK)

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	_, err = rt.Pipeline.Run(ctx, j, w, cancel, func(job.Progression) {})
	if err != nil {
		rt.Log.Warn("sync query failed", "job_id", j.ID, "err", err)
	}
	return streamed()
}

func (rt *Router) writeCapabilities(w http.ResponseWriter) result {
	seen := make(map[string]bool)
	var formats []string
	for _, f := range rt.Pipeline.Formatters {
		if !seen[f.MimeType()] {
			seen[f.MimeType()] = true
			formats = append(formats, f.MimeType())
		}
	}
	writeXML(w, http.StatusOK, capabilitiesDoc{
		Languages:      []string{"ADQL"},
		OutputFormats:  formats,
		UploadsEnabled: rt.UploadsEnabled,
		MaxRec:         rt.Pipeline.ServerMaxRec,
	})
	return streamed()
}

// runAsyncAlias handles /async, a convenience alias for the jobList
// named "async" (spec.md §6's "async" shorthand).
func (rt *Router) runAsyncAlias(w http.ResponseWriter, r *http.Request) result {
	return rt.createJob(w, r)
}

func (rt *Router) availability(w http.ResponseWriter, r *http.Request) result {
	writeXML(w, http.StatusOK, availabilityDoc{Available: true, UpSince: rt.StartedAt})
	return streamed()
}

func (rt *Router) capabilities(w http.ResponseWriter, r *http.Request) result {
	return rt.writeCapabilities(w)
}

func (rt *Router) serveUploads(w http.ResponseWriter, r *http.Request) {
	if rt.Uploads == nil {
		http.NotFound(w, r)
		return
	}
	rt.Uploads.ServeHTTP(w, r)
}

// handle adapts a (w, r) -> result handler into an http.HandlerFunc,
// the single seam through which every handler's outcome is rendered.
func handle(fn func(http.ResponseWriter, *http.Request) result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, fn(w, r))
	}
}

