package dispatch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/gotap/tapd/destruct"
	"github.com/gotap/tapd/phase"
	"github.com/gotap/tapd/pipeline"
	"github.com/gotap/tapd/scheduler"
	"github.com/gotap/tapd/store"
)

// Aborter raises the cancel flag for a currently executing job. It is
// satisfied by *worker.JobThread; dispatch doesn't import worker
// directly, mirroring destruct.Aborter's cycle-avoidance.
type Aborter interface {
	Abort(jobID string) bool
}

// Router wires every UWS/TAP collaborator (spec.md §6's full operation
// table) into a chi.Mux, the dispatch concern spec.md §1 leaves
// external to the core packages.
type Router struct {
	Store    store.JobStore
	Phases   *phase.Manager
	Scheduler *scheduler.Manager
	Worker   Aborter
	Destruct *destruct.Scheduler
	Pipeline *pipeline.Pipeline
	Metadata pipeline.MetadataProvider
	Results  *FileResultSink

	IDs      *IDGenerator
	Identify UserIdentifier

	Uploads        *uploadStage
	UploadsEnabled bool

	DefaultDestructionLifetime time.Duration
	DefaultExecutionDuration   time.Duration
	MaxExecutionDuration       time.Duration
	AllowedOrigins             []string

	Log       *slog.Logger
	StartedAt time.Time

	Mux *chi.Mux
}

// NewRouter builds and mounts every route. Callers own the lifecycle of
// every collaborator referenced by rt; Router itself starts nothing.
func NewRouter(rt *Router) *chi.Mux {
	if rt.StartedAt.IsZero() {
		rt.StartedAt = time.Now()
	}
	if rt.DefaultDestructionLifetime <= 0 {
		rt.DefaultDestructionLifetime = 24 * time.Hour
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsOrWildcard(rt.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodHead},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/availability", handle(rt.availability))
	r.Get("/capabilities", handle(rt.capabilities))
	r.HandleFunc("/sync", handle(rt.runSync))
	r.Post("/async", handle(rt.runAsyncAlias))
	r.Get("/async", handle(rt.listJobsDefault))
	r.Handle("/_uploads/*", http.HandlerFunc(rt.serveUploads))

	r.Route("/{jobList}", func(jl chi.Router) {
		jl.Get("/", handle(rt.listJobs))
		jl.Post("/", handle(rt.createJob))

		jl.Route("/{id}", func(job chi.Router) {
			job.Get("/", handle(rt.getJob))
			job.Delete("/", handle(rt.deleteJob))

			job.Get("/phase", handle(rt.getPhase))
			job.Post("/phase", handle(rt.postPhase))

			job.Get("/executionduration", handle(rt.getExecutionDuration))
			job.Post("/executionduration", handle(rt.postExecutionDuration))

			job.Get("/destruction", handle(rt.getDestruction))
			job.Post("/destruction", handle(rt.postDestruction))

			job.Get("/parameters", handle(rt.getParameters))
			job.Get("/parameters/{name}", handle(rt.getParameter))

			job.Get("/results", handle(rt.getResults))
			job.Get("/results/{resultID}", handle(rt.getResult))

			job.Get("/error", handle(rt.getError))
		})
	})

	rt.Mux = r
	return r
}

// listJobsDefault serves GET /async the same way GET /{jobList} does,
// since chi's "/{jobList}" pattern does not also match the bare
// "/async" alias it is registered alongside.
func (rt *Router) listJobsDefault(w http.ResponseWriter, r *http.Request) {
	writeResult(w, rt.listJobs(w, r))
}

func originsOrWildcard(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
