package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	// None of these may panic.
	m.RecordSyscall("read")
	m.RecordSyscallError("read")
	m.SetProcs(3)
	m.AddThread(1)
	m.IncPipes()
	m.IncSockets()
	m.IncConnections()
	m.AddStreamBytesRead(10)
	m.AddStreamBytesWritten(10)
	m.UpdateUptime()
	assert.Nil(t, m.Registry())
}

func TestCountersAccumulate(t *testing.T) {
	m := NewMetrics()
	m.RecordSyscall("pipe")
	m.RecordSyscall("pipe")
	m.RecordSyscallError("pipe")
	m.SetProcs(4)
	m.AddThread(2)
	m.AddThread(-1)
	m.AddStreamBytesWritten(100)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SyscallsTotal.WithLabelValues("pipe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyscallErrors.WithLabelValues("pipe")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Procs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Threads))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.StreamBytesWritten))
}

func TestIndependentRegistries(t *testing.T) {
	// Two collectors must not collide on metric registration.
	a := NewMetrics()
	b := NewMetrics()
	require.NotNil(t, a.Registry())
	require.NotNil(t, b.Registry())
	a.IncPipes()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.PipesTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PipesTotal))
}
