// Package validate checks a param.Set against spec.md §6's standard
// parameter table before a job is created: REQUEST and LANG are
// recognized case-insensitively, QUERY is required for doQuery,
// MAXREC must be -1 or non-negative.
//
// Grounded on ternarybob-quaero's signal_analysis_schema.go, the one
// validator/v10 consumer in the retrieved pack: a single package-level
// *validator.Validate, struct tags on the validated type, Struct() called
// from a thin exported wrapper.
package validate
