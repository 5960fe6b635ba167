package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the kernel. A nil *Metrics is
// valid and records nothing, so the kernel can run unmonitored.
type Metrics struct {
	registry *prometheus.Registry

	// Syscall metrics
	SyscallsTotal *prometheus.CounterVec
	SyscallErrors *prometheus.CounterVec

	// Process metrics
	Procs   prometheus.Gauge
	Threads prometheus.Gauge

	// Stream metrics
	PipesTotal         prometheus.Counter
	SocketsTotal       prometheus.Counter
	ConnectionsTotal   prometheus.Counter
	StreamBytesRead    prometheus.Counter
	StreamBytesWritten prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector on its own registry, so multiple
// kernels in one program do not collide.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry:  registry,
		startTime: time.Now(),

		SyscallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_syscalls_total",
				Help: "Total number of system calls",
			},
			[]string{"syscall"},
		),
		SyscallErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_syscall_errors_total",
				Help: "Total number of failed system calls",
			},
			[]string{"syscall"},
		),

		Procs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_procs",
				Help: "Number of occupied process table slots (alive and zombie)",
			},
		),
		Threads: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_threads_live",
				Help: "Number of live kernel threads",
			},
		),

		PipesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_pipes_total",
				Help: "Total number of pipes created",
			},
		),
		SocketsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_sockets_total",
				Help: "Total number of sockets created",
			},
		),
		ConnectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_connections_total",
				Help: "Total number of accepted socket connections",
			},
		),
		StreamBytesRead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_stream_bytes_read_total",
				Help: "Bytes read through the stream syscalls",
			},
		),
		StreamBytesWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_stream_bytes_written_total",
				Help: "Bytes written through the stream syscalls",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}
}

// Registry returns the metrics registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordSyscall counts one system call.
func (m *Metrics) RecordSyscall(name string) {
	if m == nil {
		return
	}
	m.SyscallsTotal.WithLabelValues(name).Inc()
}

// RecordSyscallError counts one failed system call.
func (m *Metrics) RecordSyscallError(name string) {
	if m == nil {
		return
	}
	m.SyscallErrors.WithLabelValues(name).Inc()
}

// SetProcs records the number of occupied process table slots.
func (m *Metrics) SetProcs(n int) {
	if m == nil {
		return
	}
	m.Procs.Set(float64(n))
}

// AddThread adjusts the live thread gauge.
func (m *Metrics) AddThread(delta int) {
	if m == nil {
		return
	}
	m.Threads.Add(float64(delta))
}

// IncPipes counts one created pipe.
func (m *Metrics) IncPipes() {
	if m == nil {
		return
	}
	m.PipesTotal.Inc()
}

// IncSockets counts one created socket.
func (m *Metrics) IncSockets() {
	if m == nil {
		return
	}
	m.SocketsTotal.Inc()
}

// IncConnections counts one accepted connection.
func (m *Metrics) IncConnections() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
}

// AddStreamBytesRead counts bytes delivered by the read syscall.
func (m *Metrics) AddStreamBytesRead(n int) {
	if m == nil {
		return
	}
	m.StreamBytesRead.Add(float64(n))
}

// AddStreamBytesWritten counts bytes consumed by the write syscall.
func (m *Metrics) AddStreamBytesWritten(n int) {
	if m == nil {
		return
	}
	m.StreamBytesWritten.Add(float64(n))
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	if m == nil {
		return
	}
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
