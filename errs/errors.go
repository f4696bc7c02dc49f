// Package errs defines the error kinds of spec.md §7 as sentinel errors,
// in the same style as the teacher's exported sentinels
// (gqs.ErrJobLost, gqs.ErrLockLost, gqs.ErrDoubleStarted, ...): plain
// errors.New values, compared with errors.Is, wrapped with %w when a
// stage needs to attach detail.
package errs

import "errors"

var (
	// ErrParse means the query text failed to parse; fatal to the job.
	// The wrapping error carries position and message detail.
	ErrParse = errors.New("tapd: parse error")

	// ErrTranslate means the parsed tree failed to translate to SQL;
	// fatal to the job.
	ErrTranslate = errors.New("tapd: translate error")

	// ErrUploadFailed means a client-supplied upload could not be
	// materialized (transport failure, unreachable URI, or malformed
	// table); fatal to the job.
	ErrUploadFailed = errors.New("tapd: upload failed")

	// ErrExec means the translated SQL failed during execution; fatal
	// to the job. The DB message is sanitized before it reaches the
	// client.
	ErrExec = errors.New("tapd: execution error")

	// ErrWrite means the result formatter failed while streaming
	// output. Whether this is client-abort (informational) or a
	// genuine fault is distinguished by errors.Is(err, ErrInterrupted).
	ErrWrite = errors.New("tapd: write error")

	// ErrInterrupted means the pipeline observed the cancel flag
	// between stages, or a stage's own cancellation path fired; the
	// job transitions to Aborted, not Error.
	ErrInterrupted = errors.New("tapd: interrupted")

	// ErrTimeout means the job's watchdog expired; the job transitions
	// to Aborted with a timeout message.
	ErrTimeout = errors.New("tapd: execution duration exceeded")

	// ErrNoConnection means the connection pool could not produce a
	// connection. The scheduler admits a job only while the pool reports
	// a free connection, but the connection itself is acquired in the
	// EXECUTING_SQL stage: if that fails, the job ends in Error like any
	// other stage fault and is not returned to Queued.
	ErrNoConnection = errors.New("tapd: no connection available")

	// ErrBadPhaseTransition means the requested phase transition is not
	// in the legal transition graph; the request is rejected (HTTP 400)
	// and the job is left unchanged.
	ErrBadPhaseTransition = errors.New("tapd: bad phase transition")

	// ErrDuplicateID means a newly generated job id collided with an
	// existing one in the store.
	ErrDuplicateID = errors.New("tapd: duplicate job id")

	// ErrPersist means the Backup collaborator failed; the backup
	// feature is disabled but the service continues.
	ErrPersist = errors.New("tapd: persistence error")

	// ErrNotFound means no job exists with the requested id, or it is
	// not visible to the calling identity.
	ErrNotFound = errors.New("tapd: job not found")

	// ErrForbidden means the calling identity is not the job's owner.
	ErrForbidden = errors.New("tapd: forbidden")

	// ErrInvalidParam means a standard parameter (spec.md §6) failed
	// validation before a job was ever created; the request is rejected
	// (HTTP 400).
	ErrInvalidParam = errors.New("tapd: invalid parameter")
)

// StatusCode maps err to the HTTP status spec.md §6 assigns it: 400 for
// malformed parameters or illegal phase transitions, 403 for
// authorization denial, 404 for a missing job, 500 for any other error.
// nil, which callers should never pass, maps to 200 defensively rather
// than panicking on Is(nil, ...).
func StatusCode(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrInvalidParam), errors.Is(err, ErrBadPhaseTransition):
		return 400
	default:
		return 500
	}
}
