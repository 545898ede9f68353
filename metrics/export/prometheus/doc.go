// Package prometheus renders goGuard counters in Prometheus text exposition
// format without depending on a Prometheus client library.
//
// [Exporter] is an [http.Handler]; mount it on the metrics route. Counter
// names are goguard_*_total and the single histogram is
// goguard_hash_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything in a global registry.
//   - Mutate engine state.
package prometheus
