package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gotap/tapd/connpool"
	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/job"
)

// Pipeline orchestrates the five stages of spec.md §4.5 for one job at
// a time. A single Pipeline value is shared across concurrently
// executing jobs; all per-run state lives in Run's locals.
type Pipeline struct {
	Parser     Parser
	Translator Translator
	Formatters map[string]Formatter // keyed by MIME type and short alias, lower-cased
	Metadata   MetadataProvider
	Pool       connpool.ConnectionPool

	// ServerMaxRec is the service-wide hard cap on rows returned,
	// regardless of what the client requests via MAXREC. <= 0 means the
	// server imposes no cap of its own.
	ServerMaxRec int64

	Log *slog.Logger
}

// RegisterFormatter indexes f under both its MIME type and its short
// alias, lower-cased, so FORMAT=votable and FORMAT=application/x-votable+xml
// both resolve.
func (p *Pipeline) RegisterFormatter(f Formatter) {
	if p.Formatters == nil {
		p.Formatters = make(map[string]Formatter)
	}
	p.Formatters[strings.ToLower(f.MimeType())] = f
	p.Formatters[strings.ToLower(f.ShortAlias())] = f
}

func (p *Pipeline) formatterFor(format string) (Formatter, error) {
	f, ok := p.Formatters[format]
	if !ok {
		return nil, fmt.Errorf("pipeline: unsupported format %q", format)
	}
	return f, nil
}

// effectiveCap computes the row-count ceiling from the client's MAXREC
// and the server's configured cap, per spec.md §6/§9: MAXREC < 0 means
// unlimited (deferring entirely to ServerMaxRec); MAXREC == 0 means
// "return no rows, no overflow" (spec.md §9 open question resolution);
// otherwise the smaller of the two applies.
func (p *Pipeline) effectiveCap(clientMaxRec int64) int64 {
	if clientMaxRec == 0 {
		return 0
	}
	rowCap := p.ServerMaxRec
	if rowCap <= 0 {
		rowCap = -1 // no server cap
	}
	if clientMaxRec > 0 && (rowCap < 0 || clientMaxRec < rowCap) {
		rowCap = clientMaxRec
	}
	return rowCap
}

// checkCancel reports errs.ErrInterrupted if cancel has fired, per
// spec.md §4.5's "between stages: the cancel-flag is checked".
func checkCancel(cancel <-chan struct{}) error {
	select {
	case <-cancel:
		return errs.ErrInterrupted
	default:
		return nil
	}
}

// Run drives j's pipeline to completion, writing the formatted result to
// sink. cancel is closed by the caller (worker.JobThread) to request
// cooperative interruption; onProgress is invoked with each stage's
// job.Progression tag as the pipeline advances, so the caller can stamp
// it onto the job without the pipeline needing store access.
//
// Run always returns a non-nil *ExecutionReport, even on failure, with
// FailedStage set to the progression active at the time of the fault;
// finalization (drop uploads, release the connection, log) runs on
// every exit path regardless of the returned error.
func (p *Pipeline) Run(ctx context.Context, j *job.Job, sink io.Writer, cancel <-chan struct{}, onProgress func(job.Progression)) (*ExecutionReport, error) {
	report := newReport()
	var conn connpool.Conn
	var cursor connpool.Rows

	defer func() {
		if err := p.Metadata.DropUploads(context.Background(), j.ID); err != nil {
			p.Log.Error("failed to drop upload namespace", "job_id", j.ID, "err", err)
		}
		if cursor != nil {
			cursor.Close()
		}
		if conn != nil {
			p.Pool.Release(conn)
		}
		report.Success = report.FailedStage == job.NotExecuting
		p.Log.Info("query finished",
			"job_id", j.ID,
			"success", report.Success,
			"failed_stage", report.FailedStage,
			"rows_written", report.RowsWritten,
			"overflow", report.Overflow,
			"total_duration", report.TotalDuration)
	}()

	var tree Tree
	var sqlText string
	var columns []ColumnDef
	rowCap := p.effectiveCap(j.Params.MaxRec)

	run := func(tag job.Progression, fn func() error) error {
		if err := checkCancel(cancel); err != nil {
			report.FailedStage = tag
			return err
		}
		onProgress(tag)
		return report.timeStage(tag, fn)
	}

	if err := run(job.Uploading, func() error {
		return p.stageUpload(ctx, j)
	}); err != nil {
		return report, err
	}

	if err := run(job.Parsing, func() error {
		var err error
		tree, err = p.Parser.Parse(ctx, j.Params.Query)
		if err != nil {
			return fmt.Errorf("%w: %s", errs.ErrParse, err)
		}
		return nil
	}); err != nil {
		return report, err
	}

	if err := run(job.Translating, func() error {
		limit := int64(-1)
		switch {
		case rowCap == 0:
			limit = 0 // MAXREC=0: no rows, so no sentinel row either
		case rowCap > 0:
			limit = rowCap + 1 // the overflow sentinel row
		}
		var err error
		sqlText, err = p.Translator.Translate(ctx, tree, limit)
		if err != nil {
			return fmt.Errorf("%w: %s", errs.ErrTranslate, err)
		}
		report.SQL = sqlText
		return nil
	}); err != nil {
		return report, err
	}

	if err := run(job.ExecutingSQL, func() error {
		c, err := p.Pool.Acquire(ctx, j.ID)
		if err != nil {
			return err // already errs.ErrNoConnection
		}
		conn = c
		rows, err := conn.QueryContext(ctx, sqlText)
		if err != nil {
			if ctx.Err() != nil {
				return errs.ErrInterrupted
			}
			return fmt.Errorf("%w: %s", errs.ErrExec, err)
		}
		cursor = rows
		names, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("%w: %s", errs.ErrExec, err)
		}
		columns = make([]ColumnDef, len(names))
		for i, n := range names {
			columns[i] = ColumnDef{Name: n, Type: "unknown"}
		}
		report.Columns = columns
		return nil
	}); err != nil {
		return report, err
	}

	if err := run(job.WritingResult, func() error {
		formatter, err := p.formatterFor(j.Params.Format)
		if err != nil {
			return fmt.Errorf("%w: %s", errs.ErrWrite, err)
		}
		capped := &cappedRows{Rows: cursor, cap: rowCap}
		written, err := formatter.Write(ctx, capped, columns, sink)
		report.RowsWritten = written
		report.Overflow = capped.overflow
		if err != nil {
			if ctx.Err() != nil {
				return errs.ErrInterrupted
			}
			return fmt.Errorf("%w: %s", errs.ErrWrite, err)
		}
		return nil
	}); err != nil {
		return report, err
	}

	onProgress(job.Finished)
	return report, nil
}

func (p *Pipeline) stageUpload(ctx context.Context, j *job.Job) error {
	// Idempotent with respect to the namespace (spec.md §4.5): previous
	// temporaries for this job are dropped before new ones are created.
	if err := p.Metadata.DropUploads(ctx, j.ID); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrUploadFailed, err)
	}
	for _, up := range j.Params.Uploads {
		if err := checkCancel(ctx.Done()); err != nil {
			return err
		}
		if err := p.Metadata.MaterializeUpload(ctx, j.ID, up); err != nil {
			return fmt.Errorf("%w: %s", errs.ErrUploadFailed, err)
		}
	}
	return nil
}

// cappedRows wraps a connpool.Rows, stopping at cap rows and recording
// whether a further row existed (the MAXREC overflow sentinel, spec.md
// §4.5/§8 S6). cap < 0 means unlimited; cap == 0 yields zero rows with
// overflow never set, per spec.md §9's MAXREC=0 resolution.
type cappedRows struct {
	connpool.Rows
	cap      int64
	n        int64
	overflow bool
}

func (c *cappedRows) Next() bool {
	if c.cap == 0 {
		// MAXREC=0: return no rows, no overflow (spec.md §9), so the
		// underlying cursor is never even peeked.
		return false
	}
	if c.cap > 0 && c.n >= c.cap {
		if c.Rows.Next() {
			c.overflow = true
		}
		return false
	}
	if !c.Rows.Next() {
		return false
	}
	c.n++
	return true
}
