// Command authbrokerd runs an auth connection multiplexer that keeps
// connections open to a pool of auth worker sockets under a configured
// directory and records whether the pool is reachable. It does not
// accept connections from session processes, so no login requests are
// brokered through it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/infodancer/mailcore/authmux"
	"github.com/infodancer/mailcore/internal/config"
	"github.com/infodancer/mailcore/internal/logging"
	"github.com/infodancer/mailcore/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfgFlags := config.ParseFlags("./mailcore.toml")

	cfg, err := config.LoadWithFlags(cfgFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Authbrokerd.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	mux := authmux.New(authmux.Config{
		SocketDir: cfg.Authbrokerd.SocketDir,
		PID:       uint32(os.Getpid()),
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mux.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error starting auth multiplexer: %v\n", err)
		os.Exit(1)
	}
	defer mux.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Authbrokerd.Metrics.Enabled {
		metricsServer := metrics.NewPrometheusServer(cfg.Authbrokerd.Metrics.Address, cfg.Authbrokerd.Metrics.Path)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics server started",
			"address", cfg.Authbrokerd.Metrics.Address, "path", cfg.Authbrokerd.Metrics.Path)
	}

	logger.Info("authbrokerd started", "socket_dir", cfg.Authbrokerd.SocketDir)

	watchConnectivity(ctx, mux, collector, logger)

	<-ctx.Done()
	logger.Info("authbrokerd stopped")
}

// watchConnectivity polls IsConnected at the multiplexer's rescan
// cadence and records worker-connectivity transitions, since
// Multiplexer does not itself push connect/disconnect events out to
// callers.
func watchConnectivity(ctx context.Context, mux *authmux.Multiplexer, collector metrics.Collector, logger *slog.Logger) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		wasConnected := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				connected := mux.IsConnected()
				if connected != wasConnected {
					if connected {
						collector.WorkerConnected()
						logger.Info("auth worker pool reachable")
					} else {
						collector.WorkerDisconnected()
					}
					wasConnected = connected
				}
			}
		}
	}()
}
