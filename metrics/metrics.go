package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gotap/tapd/job"
)

const namespace = "tapd"

var (
	// JobsSubmittedTotal counts jobs accepted into the store, labeled by
	// the standard REQUEST parameter ("doquery", "getcapabilities").
	JobsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_submitted_total",
		Help:      "Total number of jobs accepted, labeled by request kind.",
	}, []string{"request"})

	// PhaseTransitionsTotal counts every successful phase.Manager.Transition
	// call, labeled by the destination phase.
	PhaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "phase_transitions_total",
		Help:      "Total number of job phase transitions, labeled by destination phase.",
	}, []string{"phase"})

	// StageDuration observes the wall time a job spent in a single
	// job.Progression stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of a single pipeline stage, labeled by stage name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	// QueryErrorsTotal counts terminal jobs ending in ERROR, labeled by
	// the kind of the job's ErrorSummary ("TRANSIENT" or "FATAL").
	QueryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_errors_total",
		Help:      "Total number of jobs that ended in ERROR, labeled by cause.",
	}, []string{"cause"})

	// PoolFreeConnections is a gauge sampled from connpool.ConnectionPool.FreeCount.
	PoolFreeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_free_connections",
		Help:      "Number of free connections last observed in the connection pool.",
	})

	// SchedulerQueueDepth is a gauge tracking the number of jobs waiting
	// in scheduler.Manager's FIFO admission queue.
	SchedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_queue_depth",
		Help:      "Number of jobs currently queued for execution.",
	})

	// ActiveWorkers is a gauge tracking worker.JobThread goroutines
	// currently executing a job.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Number of jobs currently in the EXECUTING phase.",
	})
)

// RecordSubmission increments JobsSubmittedTotal for the given REQUEST
// value, normalized to lower case.
func RecordSubmission(request string) {
	JobsSubmittedTotal.WithLabelValues(strings.ToLower(request)).Inc()
}

// RecordTransition increments PhaseTransitionsTotal for the reached phase.
func RecordTransition(p job.Phase) {
	PhaseTransitionsTotal.WithLabelValues(p.String()).Inc()
}

// RecordStage observes d against StageDuration for the named stage.
func RecordStage(stage job.Progression, d time.Duration) {
	StageDuration.WithLabelValues(stage.String()).Observe(d.Seconds())
}

// RecordQueryError increments QueryErrorsTotal for the given cause.
func RecordQueryError(cause string) {
	QueryErrorsTotal.WithLabelValues(cause).Inc()
}

// SetPoolFreeConnections sets PoolFreeConnections to n.
func SetPoolFreeConnections(n int) {
	PoolFreeConnections.Set(float64(n))
}

// SetSchedulerQueueDepth sets SchedulerQueueDepth to n.
func SetSchedulerQueueDepth(n int) {
	SchedulerQueueDepth.Set(float64(n))
}

// IncActiveWorkers/DecActiveWorkers track concurrently EXECUTING jobs.
func IncActiveWorkers() { ActiveWorkers.Inc() }
func DecActiveWorkers() { ActiveWorkers.Dec() }
