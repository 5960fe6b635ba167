package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akislouk/operating-systems-project/internal/config"
	"github.com/akislouk/operating-systems-project/internal/kernel"
	"github.com/akislouk/operating-systems-project/internal/kernel/defs"
	"github.com/akislouk/operating-systems-project/internal/logging"
	"github.com/akislouk/operating-systems-project/internal/monitoring"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	metrics := monitoring.NewMetrics()
	k := kernel.New(kernel.Options{Logger: logging.Nop(), Metrics: metrics})
	require.NoError(t, k.Boot(func(sys *kernel.UThread, _ []byte) int {
		// Keep init alive until the kernel is torn down with the test.
		var gate kernel.PipeEnds
		sys.Pipe(&gate)
		sys.Read(gate.Read, make([]byte, 1))
		return 0
	}, nil))

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	return NewServer(k, cfg, logging.Nop(), metrics)
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestProcsEndpointListsProcesses(t *testing.T) {
	s := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/procs", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int        `json:"count"`
		Procs []procView `json:"procs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.GreaterOrEqual(t, body.Count, 2)

	byPid := map[int]procView{}
	for _, p := range body.Procs {
		byPid[p.Pid] = p
	}
	idle, ok := byPid[0]
	require.True(t, ok)
	assert.Equal(t, "alive", idle.State)
	assert.Equal(t, int(defs.NoProc), idle.PPid)

	initp, ok := byPid[1]
	require.True(t, ok)
	assert.Equal(t, "alive", initp.State)
	assert.GreaterOrEqual(t, initp.ThreadCount, 1)
}

func TestMetricsEndpointExposesKernelMetrics(t *testing.T) {
	s := testServer(t)

	// Wait until the idle and init processes show up in the process table.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.k.Snapshot()) >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kernel_procs")
}

func TestRateLimitRejectsBursts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Enabled: true}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	limited := false
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		router.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited)
}
