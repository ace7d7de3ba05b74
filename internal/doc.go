// Package internal contains helpers private to goSession, chiefly secure
// random generation of record ids, family ids and refresh secrets.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - dbx: database/sql transaction helper
//   - flows: pure-function orchestrators behind every Engine operation
//   - logging: Logger interface over log/slog
//   - metrics: padded counters and latency buckets behind goSession.Metrics
//   - rate: Redis-backed fixed-window throttles
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
