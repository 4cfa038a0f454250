/*
Package metrics defines and registers the Prometheus metrics exposed by the
sync server.

Metrics are grouped by the lifecycle they describe: connection/channel
gauges (C4/C5), revision-log counters (C2), blob transfer counters (C1),
and purger counters/histograms (C6). Each metric is registered at package
init via prometheus.MustRegister; there is no separate collector goroutine
because every metric is updated inline by the component that produces the
event, rather than polled.

Handler returns the promhttp handler mounted at /metrics by cmd/vaultsyncd.
Timer is a small helper for recording operation durations into a histogram
without threading time.Time values through call sites.
*/
package metrics
