/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults < file < env < flags)
  2. Build the logger
  3. Initialize SQLite store (runs migrations)
  4. Create API handler with dependencies
  5. Configure HTTP router (metrics when enabled)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  --config      Config file (yaml, toml or json)
  --addr        HTTP listen address (default: :8080)
  --db          SQLite DSN (default: stock.db)
                Use ":memory:" for in-memory database
  --log-level   debug, info, warn, error
  --log-format  json or text

ENVIRONMENT:
  Every key can be set as LEDGER_<SECTION>_<KEY>, e.g. LEDGER_STORAGE_DSN.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/stock-ledger/api"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/logging"
	"github.com/warp/stock-ledger/metrics"
	"github.com/warp/stock-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	// Initialize store
	store, err := sqlite.New(cfg.Storage.DSN, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, log)
	handler.Writer.UnitTimeout = cfg.Storage.UnitTimeout
	handler.LowStockThreshold = cfg.LowStockThreshold()

	opts := api.RouterOptions{CORSOrigins: cfg.HTTP.CORSOrigins}
	if cfg.Metrics.Enabled {
		m := metrics.New()
		handler.Writer.Observer = m
		handler.Engine.Observer = m
		opts.Metrics = m.Handler()
	}

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(handler, opts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    cfg.HTTP.Addr,
			"dsn":     cfg.Storage.DSN,
			"metrics": cfg.Metrics.Enabled,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server stopped")
}
