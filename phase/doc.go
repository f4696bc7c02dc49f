// Package phase implements the UWS job state machine: atomic phase
// transitions and the blocking-poll ("WAIT") primitive described by the
// phase graph in package job.
//
// Manager wraps a store.JobStore and adds two things the store alone
// cannot provide: a table of legal transitions, and a way for an HTTP
// long-poll to wait on a phase change without spinning. Waiting uses
// the same broadcast-by-close idiom as internal.DoneChan: each job gets
// a channel that Manager closes and replaces on every transition, so
// any number of waiters parked on the old channel wake up together.
package phase
