package job

import (
	"time"

	"github.com/gotap/tapd/param"
)

// Job is the central entity of the service: a single query submission
// tracked through the UWS phase graph.
//
// ID is unique and monotonically generated (see dispatch.IDGenerator.NewID). Owner is
// the opaque identity returned by the UserIdentifier collaborator, or the
// empty string for an anonymous submission.
//
// CreationTime, StartTime, EndTime and DestructionTime follow spec.md's
// invariants: EndTime is non-zero iff Phase is terminal; StartTime is
// non-zero iff Phase has ever reached Executing; DestructionTime is always
// strictly after CreationTime.
//
// Once Phase is terminal (Completed, Aborted, Error, Archived), Params and
// Results must not be mutated; stores enforce this at the call site, not
// on the struct itself.
type Job struct {
	ID    string
	Owner string

	Params param.Set

	Phase       Phase
	Progression Progression

	Quote *time.Time

	CreationTime    time.Time
	StartTime       *time.Time
	EndTime         *time.Time
	DestructionTime time.Time

	ExecutionDuration time.Duration

	Results      []Result
	ErrorSummary *ErrorSummary
}

// Result is a single named, typed, size-annotated output of a completed
// job.
type Result struct {
	ID       string
	HRef     string
	MimeType string
	Size     int64
}

// ErrorKind classifies an ErrorSummary for client display and retry
// policy, per spec.md §3 and §7.
type ErrorKind uint8

const (
	// Transient indicates the error may resolve on its own (e.g. the
	// job never escaped NO_CONNECTION and stayed QUEUED); this kind is
	// informational only by the time it reaches ErrorSummary, since a
	// job only gets an ErrorSummary once it has reached the terminal
	// Error phase.
	Transient ErrorKind = iota
	Fatal
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "TRANSIENT"
	}
	return "FATAL"
}

// ErrorSummary is a compact description of a terminal error, optionally
// pointing at a fuller detail document via DetailsRef.
type ErrorSummary struct {
	Message    string
	Kind       ErrorKind
	DetailsRef string
}

// Snapshot is the subset of Job fields that must be read and written as
// one atomic unit (spec.md §5's ordering guarantee): a reader must never
// observe a Phase that doesn't match the EndTime/Results/ErrorSummary
// that belong to it.
type Snapshot struct {
	Phase        Phase
	EndTime      *time.Time
	Results      []Result
	ErrorSummary *ErrorSummary
}

// TakeSnapshot copies the (Phase, EndTime, Results, ErrorSummary) tuple
// of j. It takes no lock: the copy is consistent only if j is not being
// mutated while it runs.
func (j *Job) TakeSnapshot() Snapshot {
	return Snapshot{
		Phase:        j.Phase,
		EndTime:      j.EndTime,
		Results:      append([]Result(nil), j.Results...),
		ErrorSummary: j.ErrorSummary,
	}
}
