// Package connpool implements the ConnectionPool contract consumed by
// the scheduler and the query pipeline: acquire, release, freeCount.
//
// Two backends are provided, both wrapped with a sony/gobreaker circuit
// breaker on Acquire so repeated NO_CONNECTION faults trip the breaker
// instead of hammering the DBMS:
//
//   - PgxPool, backed by jackc/pgx/v5/pgxpool, the production backend.
//   - BunPool, backed by uptrace/bun (paired with modernc.org/sqlite for
//     local/dev and tests, or pgdialect for Postgres).
//
// The breaker never changes the freeCount contract; it only shields
// Acquire.
package connpool
