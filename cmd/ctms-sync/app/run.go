package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"

	"github.com/Guizzs26/ctms-sync/internal/service"
	"github.com/Guizzs26/ctms-sync/pkg/infra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync loop until interrupted",
	Long: `Run drains the pending-sync ledger in a loop. Each cycle takes at least
SYNC_LOOP_MIN_SECS. Only one runner per lock file may be active.`,
	RunE: runLoop,
}

// healthChecker is implemented by deliverers holding a long-lived link.
type healthChecker interface {
	IsHealthy() bool
}

func runLoop(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	logger := e.logger

	logger.Info("Setting up sync service", "sync_enabled", e.cfg.SyncEnabled, "delivery_enabled", e.cfg.DeliveryEnabled)
	if !e.cfg.SyncEnabled {
		logger.Warn("Sync loop disabled by SYNC_ENABLED, exiting")
		return nil
	}

	lock := flock.New(e.cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", e.cfg.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another runner holds %s", e.cfg.LockFile)
	}
	defer lock.Unlock()

	srv := startObservabilityServer(e.cfg.MetricsPort, e.registry, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	var pusher *push.Pusher
	if e.cfg.PushgatewayURL != "" {
		pusher = push.New(e.cfg.PushgatewayURL, "ctms-sync").Gatherer(e.registry)
	}

	logger.Info("🚀 Sync loop started", "pid", os.Getpid(), "batch_limit", e.cfg.BatchSize, "retry_limit", e.cfg.RetryLimit)

	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	var (
		syncService *service.SyncService
		closeLink   = func() {}
		link        healthChecker
	)
	defer func() { closeLink() }()

	for {
		if ctx.Err() != nil {
			logger.Info("👋 Shutting down sync loop")
			return nil
		}

		// Lifecycle: rebuild the deliverer when its link went down.
		if syncService == nil || (link != nil && !link.IsHealthy()) {
			closeLink()
			d, closeFn, err := e.deliverer(ctx)
			if err != nil {
				var cfgErr *configError
				if errors.As(err, &cfgErr) {
					return err
				}
				wait, werr := backoff.Wait(ctx)
				logger.Error("Delivery link failure, retrying", "wait", wait, "error", err)
				if werr != nil {
					return nil
				}
				continue
			}
			closeLink = closeFn
			link, _ = d.(healthChecker)
			syncService = service.NewSyncService(service.FromStore(e.store), d, e.syncConfig(), e.metrics, logger)
			backoff.Reset()
		}

		start := time.Now()
		summary, err := syncService.Drain(ctx, time.Now())
		if pusher != nil {
			if perr := pusher.PushContext(context.WithoutCancel(ctx)); perr != nil {
				logger.Warn("Pushgateway push failed", "error", perr)
			}
		}
		if errors.Is(err, context.Canceled) {
			continue
		}
		if err != nil {
			wait, werr := backoff.Wait(ctx)
			logger.Error("Drain cycle failed", "retry_in", wait, "error", err)
			if werr != nil {
				return nil
			}
			continue
		}
		backoff.Reset()

		duration := time.Since(start)
		toSleep := e.cfg.LoopMinDelay - duration
		logger.Info("Sync cycle complete",
			"loop_duration_s", roundSeconds(duration),
			"loop_sleep_s", roundSeconds(toSleep),
			"processed", summary.Processed,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
		)
		if err := infra.Sleep(ctx, toSleep); err != nil {
			continue
		}
	}
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}

func startObservabilityServer(port int, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("SYNC ALIVE"))
	})

	addr := ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("📊 Observability server online", "url", "http://localhost"+addr+"/metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Observability server failed", "error", err)
		}
	}()
	return server
}
