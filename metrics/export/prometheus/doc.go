// Package prometheus renders goSession metrics in Prometheus text format.
//
// [New] wraps a *goSession.Engine and [Exporter.Handler] serves the scrape
// endpoint. Counters are named gosession_*_total; the resolve latency
// histogram is gosession_resolve_latency_seconds and only appears when
// latency histograms are enabled.
//
// # What this package must NOT do
//
//   - Register in a global registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
