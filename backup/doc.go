// Package backup implements the Backup collaborator of spec.md §6
// ("Persisted state"): saveAll, saveOwner and restoreAll, bun-backed,
// mirroring a live store.JobStore (typically memstore, for a
// single-node deployment that wants restart recovery without paying for
// a fully durable SQL-backed JobStore) into a durable snapshot table.
//
// The transactional truncate-then-reinsert shape of SaveAll/SaveOwner
// is grounded on store/sql/init.go's begin/commit/rollback-via-errors.Join
// pattern. RestoreAll runs without a transaction: a row that cannot be
// decoded or added is counted as seen but not restored, and the rows
// already added stay in place.
package backup
