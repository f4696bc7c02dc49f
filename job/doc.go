// Package job defines the stateful representation of a query submitted to
// the service.
//
// A Job augments a client's submitted parameters (param.Set) with lifecycle
// metadata: Phase, timestamps, results, and an error summary. Unlike
// param.Set, which describes what was asked for, Job tracks what happened
// to the request as it moves through the UWS phase graph.
//
// Job values returned by a store.JobStore represent authoritative snapshots
// of persisted state. Mutating them directly does not change the underlying
// store; phase transitions must go through phase.Manager, and result/error
// writes must go through the store.
package job
