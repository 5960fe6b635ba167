// Package monitoring provides Prometheus metrics for the kernel: syscall
// counters, process and thread gauges, and stream throughput counters.
//
// Metrics are optional; a nil *Metrics records nothing, so the kernel core
// never depends on a collector being present.
package monitoring
