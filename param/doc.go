// Package param defines the set of parameters a client submits with a
// query request.
//
// Set holds the standard parameters REQUEST, LANG, VERSION, FORMAT,
// MAXREC, QUERY and UPLOAD (spec.md §6) as first-class, typed fields.
// The other standard names (PHASE, WAIT, ACTION, EXECUTIONDURATION,
// DESTRUCTION) are kept in an extras map under their lower-case names,
// and any unrecognized name is kept there verbatim, so the dispatcher
// never silently drops client input.
//
// Set is intentionally the parameter-carrying counterpart of job.Job: a
// Job is what happened to a Set once it was submitted.
package param
