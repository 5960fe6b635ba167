// Package monitor serves the kernel's diagnostic HTTP surface: health,
// process table snapshots (JSON and websocket), and Prometheus metrics,
// behind per-IP rate limiting.
package monitor
