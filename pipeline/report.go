package pipeline

import (
	"time"

	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/metrics"
)

// ColumnDef describes one output column of a translated query, reported
// to the client and to the formatter.
type ColumnDef struct {
	Name string
	Type string
}

// ExecutionReport is the snapshot of one pipeline run (spec.md §3's
// ExecutionReport): per-stage durations, the resulting column
// descriptors, the translated SQL text, a success flag, and the MAXREC
// overflow flag. Run returns it to its caller; it is not stored on the
// job (worker.JobThread reads only FailedStage from it).
type ExecutionReport struct {
	Success        bool
	SQL            string
	Columns        []ColumnDef
	Overflow       bool
	RowsWritten    int64
	StageDurations map[job.Progression]time.Duration
	TotalDuration  time.Duration
	FailedStage    job.Progression
}

func newReport() *ExecutionReport {
	return &ExecutionReport{StageDurations: make(map[job.Progression]time.Duration)}
}

// timeStage runs fn, recording its wall-clock duration under stage in
// r.StageDurations. It mirrors internal.TimerTask's shape generalized
// from "repeat fn on an interval" to "time exactly one run".
func (r *ExecutionReport) timeStage(stage job.Progression, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	r.StageDurations[stage] = d
	metrics.RecordStage(stage, d)
	if err != nil {
		r.FailedStage = stage
	}
	return err
}
