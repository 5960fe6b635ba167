package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/akislouk/operating-systems-project/internal/config"
	"github.com/akislouk/operating-systems-project/internal/kernel"
	"github.com/akislouk/operating-systems-project/internal/logging"
	"github.com/akislouk/operating-systems-project/internal/monitor"
	"github.com/akislouk/operating-systems-project/internal/monitoring"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	monitorAddr := flag.String("monitor", "", "Monitor listen address (overrides config)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *configPath != "" {
		if err := config.LoadFile(cfg, *configPath); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}
	if *monitorAddr != "" {
		cfg.Monitor.Addr = *monitorAddr
	}

	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics()
	k := kernel.New(kernel.Options{Logger: logger, Metrics: metrics})

	var mon *monitor.Server
	if cfg.Monitor.Enabled {
		mon = monitor.NewServer(k, cfg, logger, metrics)
		go func() {
			if err := mon.Run(); err != nil {
				logger.Error("monitor server failed", zap.Error(err))
			}
		}()
	}

	if err := k.Boot(initTask(logger), nil); err != nil {
		logger.Fatal("boot failed", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-k.InitDone():
		logger.Info("init exited, shutting down")
	case sig := <-sigChan:
		logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
	}

	if mon != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mon.Shutdown(ctx); err != nil {
			logger.Warn("monitor shutdown failed", zap.Error(err))
		}
	}
}
