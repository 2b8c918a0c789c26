package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ouroboros8/captain/config"
	"github.com/ouroboros8/captain/internal/connection"
	"github.com/ouroboros8/captain/internal/httpapi"
)

func main() {
	appConfig := config.Load()
	logger := appConfig.NewLogger()

	if err := appConfig.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.Info("captain starting",
		"port", appConfig.Port,
		"nodes", len(appConfig.DockerNodes),
		"slots_per_node", appConfig.SlotsPerNode,
		"log_format", appConfig.LogFormat,
	)

	// the fleet aggregate owns one docker client per configured node, the
	// shared inspection cache and the gc audit trail. if it cannot be
	// built — a malformed node url, a duplicate hostname, a sqlite file
	// that won't open — the process cannot serve requests and must fail
	// fast, the same way this app always fails fast on a bad startup
	// dependency rather than limping along half-configured.
	conn, err := connection.New(appConfig, logger)
	if err != nil {
		log.Fatalf("failed to configure fleet connection: %v", err)
	}
	defer conn.Close()

	gcCtx, cancelGC := context.WithCancel(context.Background())
	defer cancelGC()
	go runGCSweeps(gcCtx, appConfig, conn, logger)

	router := httpapi.NewRouter(httpapi.RouterDependencies{
		Logger:     logger,
		Connection: conn,
	})

	// the http.Server is constructed explicitly, not via
	// http.ListenAndServe, so read/write/idle timeouts are finite rather
	// than the standard library's default of "never".
	server := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// the server runs in its own goroutine so the main goroutine is free
	// to block on the OS signal channel below. a fatal listen error is
	// relayed back over shutdownChannel; a clean shutdown closes it with
	// no value sent.
	shutdownChannel := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownChannel <- err
		}
		close(shutdownChannel)
	}()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("startup complete, server ready to serve", "port", appConfig.Port)

	// select blocks the main goroutine until either an OS termination
	// signal or an unexpected listener error arrives, whichever comes
	// first.
	select {
	case sig := <-signalChannel:
		logger.Info("shutdown signal received", "signal", sig)
	case err := <-shutdownChannel:
		if err != nil {
			log.Fatalf("http server failed: %v", err)
		}
	}

	// in-flight requests get a 10-second grace period to complete before
	// the process exits, rather than being dropped mid-response.
	shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownContext); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("server shut down cleanly")
	}
}

// runGCSweeps periodically lists instances across the whole fleet, which —
// as a side effect of internal/connection.GetNodeInstances — runs
// inventory GC (sentinel repair, grace-period recycling) whether or not
// anyone is actively hitting the HTTP API. without this, a fleet nobody
// queries would never GC. the sweep interval is a fraction of the grace
// period rather than its own config knob — one fewer setting to get wrong.
func runGCSweeps(ctx context.Context, cfg *config.Config, conn *connection.Connection, logger *slog.Logger) {
	interval := cfg.DockerGCGracePeriod / 10
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := conn.GetInstances(ctx, ""); err != nil {
				logger.Error("gc sweep failed", "error", err)
			}
		}
	}
}
