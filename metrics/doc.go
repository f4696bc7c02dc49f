// Package metrics exposes the service's prometheus collectors: job
// throughput by phase, pipeline stage durations, connection-pool
// occupancy and scheduler queue depth.
//
// There is no teacher analog for observability (gqs ships no metrics);
// the package-level collector vars plus exported RecordX helpers and a
// standalone metrics HTTP server are grounded on the shape exposed by
// jordigilh-kubernaut's pkg/metrics (metrics_test.go, server_test.go),
// adapted to this service's phases/stages and to log/slog in place of
// logrus.
package metrics
