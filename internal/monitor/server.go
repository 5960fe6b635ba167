package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/akislouk/operating-systems-project/internal/config"
	"github.com/akislouk/operating-systems-project/internal/kernel"
	"github.com/akislouk/operating-systems-project/internal/logging"
	"github.com/akislouk/operating-systems-project/internal/monitoring"
)

// Server exposes the kernel's observability surface over HTTP: a health
// probe, JSON and websocket views of the process table, and Prometheus
// metrics.
type Server struct {
	k       *kernel.Kernel
	router  *gin.Engine
	http    *http.Server
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewServer wires the monitor routes for a kernel.
func NewServer(k *kernel.Kernel, cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) *Server {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		k:       k,
		router:  gin.New(),
		logger:  logger,
		metrics: metrics,
	}

	s.router.Use(gin.Recovery())
	if cfg.RateLimit.Enabled {
		s.router.Use(RateLimit(cfg.RateLimit))
	}

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/v1/procs", s.handleProcs)
	s.router.GET("/v1/procs/ws", s.handleProcsWS)
	if reg := metrics.Registry(); reg != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	s.http = &http.Server{
		Addr:              cfg.Monitor.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("monitor server listening", zap.String("addr", s.http.Addr))

	go s.uptimeLoop()

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) uptimeLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		s.metrics.UpdateUptime()
	}
}
