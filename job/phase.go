package job

import "fmt"

// Phase represents the current lifecycle state of a Job, per the UWS
// phase graph.
//
// Legal transitions:
//
//	PENDING   -> QUEUED    (RUN requested)
//	PENDING   -> ABORTED   (DELETE, client ABORT)
//	QUEUED    -> EXECUTING (scheduler opens gate)
//	QUEUED    -> ABORTED
//	EXECUTING -> COMPLETED (worker success)
//	EXECUTING -> ERROR     (worker fault)
//	EXECUTING -> ABORTED   (client ABORT or timeout)
//	COMPLETED -> ARCHIVED  (archival retention)
//	ERROR     -> ARCHIVED
//
// HELD, SUSPENDED and UNKNOWN are observer states; no worker transitions
// touch them. Unknown is the zero value and never a legal target of
// Transition.
type Phase uint8

const (
	// Unknown is the zero value; never a legal transition target.
	Unknown Phase = iota
	Pending
	Queued
	Executing
	Completed
	Aborted
	Error
	Held
	Suspended
	Archived
)

// Terminal reports whether p is one of the phases from which no further
// transition is possible except Archiving a Completed/Error job.
func (p Phase) Terminal() bool {
	switch p {
	case Completed, Aborted, Error, Archived:
		return true
	default:
		return false
	}
}

func phaseToString(p Phase) string {
	switch p {
	case Pending:
		return "PENDING"
	case Queued:
		return "QUEUED"
	case Executing:
		return "EXECUTING"
	case Completed:
		return "COMPLETED"
	case Aborted:
		return "ABORTED"
	case Error:
		return "ERROR"
	case Held:
		return "HELD"
	case Suspended:
		return "SUSPENDED"
	case Archived:
		return "ARCHIVED"
	default:
		return "UNKNOWN"
	}
}

func phaseFromString(s string) (Phase, error) {
	switch s {
	case "PENDING":
		return Pending, nil
	case "QUEUED":
		return Queued, nil
	case "EXECUTING":
		return Executing, nil
	case "COMPLETED":
		return Completed, nil
	case "ABORTED":
		return Aborted, nil
	case "ERROR":
		return Error, nil
	case "HELD":
		return Held, nil
	case "SUSPENDED":
		return Suspended, nil
	case "ARCHIVED":
		return Archived, nil
	case "UNKNOWN":
		return Unknown, nil
	default:
		return 0, fmt.Errorf("job: unknown phase: %s", s)
	}
}

// ParsePhase converts a UWS phase name into a Phase value. An error is
// returned for unrecognized names.
func ParsePhase(s string) (Phase, error) {
	return phaseFromString(s)
}

// MarshalText implements encoding.TextMarshaler using the canonical
// upper-case UWS phase names.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(phaseToString(p)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := phaseFromString(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// String returns the canonical UWS phase name.
func (p Phase) String() string {
	return phaseToString(p)
}

// Progression tags the sub-stage of an EXECUTING job, used for per-stage
// timing and fault attribution (see pipeline.Pipeline).
type Progression uint8

const (
	NotExecuting Progression = iota
	Uploading
	Parsing
	Translating
	ExecutingSQL
	WritingResult
	Finished
)

func (p Progression) String() string {
	switch p {
	case Uploading:
		return "UPLOADING"
	case Parsing:
		return "PARSING"
	case Translating:
		return "TRANSLATING"
	case ExecutingSQL:
		return "EXECUTING_SQL"
	case WritingResult:
		return "WRITING_RESULT"
	case Finished:
		return "FINISHED"
	default:
		return ""
	}
}
