// Package prometheus renders gatekeep engine metrics in the Prometheus text
// exposition format.
//
// [NewExporter] reads [gatekeep.Engine.MetricsSnapshot] on every scrape.
// Counters are named gatekeep_*_total, the latency histograms
// gatekeep_admission_latency_seconds and gatekeep_verify_latency_seconds.
// When the source also reports its admission policies, one
// gatekeep_admission_policy_points gauge per operation is added.
//
// Nothing is registered globally; callers mount [Exporter.Handler].
package prometheus
