// Package app wires the ctms-sync commands.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Guizzs26/ctms-sync/internal/acoustic"
	"github.com/Guizzs26/ctms-sync/internal/broker"
	"github.com/Guizzs26/ctms-sync/internal/config"
	"github.com/Guizzs26/ctms-sync/internal/db"
	"github.com/Guizzs26/ctms-sync/internal/service"
	"github.com/Guizzs26/ctms-sync/pkg/infra"
	"github.com/Guizzs26/ctms-sync/pkg/metrics"
)

var rootCmd = &cobra.Command{
	Use:          "ctms-sync",
	Short:        "Sync CTMS contacts to Acoustic",
	SilenceUsage: true,
	Long: `ctms-sync drains the pending-sync ledger of the contact database towards
Acoustic (or RabbitMQ), with bounded retries per contact.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetDormantCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(migrateCmd)
	return rootCmd
}

// env is what every command needs: config, logger, database.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *db.Store
	registry *prometheus.Registry
	metrics  *metrics.SyncMetrics
	closeLog func() error
}

func setup(ctx context.Context) (*env, error) {
	cfg := config.Load()

	logger, closeLog, err := infra.SetupLogger(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	store, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &env{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: reg,
		metrics:  metrics.New(reg),
		closeLog: closeLog,
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("Error closing database", "error", err)
	}
	_ = e.closeLog()
}

func (e *env) syncConfig() service.SyncConfig {
	return service.SyncConfig{
		RetryLimit:      e.cfg.RetryLimit,
		BatchSize:       e.cfg.BatchSize,
		DeliveryEnabled: e.cfg.DeliveryEnabled,
	}
}

// deliverer builds the configured delivery backend. It returns a nil
// Deliverer when delivery is disabled.
func (e *env) deliverer(ctx context.Context) (service.Deliverer, func(), error) {
	if err := e.cfg.ValidateDelivery(); err != nil {
		return nil, nil, &configError{err: err}
	}
	if !e.cfg.DeliveryEnabled {
		e.logger.Warn("Delivery is disabled. Due records will be dropped without being sent")
		return nil, func() {}, nil
	}

	switch e.cfg.DeliveryBackend {
	case config.BackendRabbitMQ:
		p, err := broker.NewPublisher(e.cfg.RabbitMQURL, e.metrics, e.logger)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	default:
		c := acoustic.NewClient(ctx, acoustic.Config{
			ClientID:          e.cfg.AcousticClientID,
			ClientSecret:      e.cfg.AcousticClientSecret,
			RefreshToken:      e.cfg.AcousticRefreshToken,
			ServerNumber:      e.cfg.AcousticServerNumber,
			MainTableID:       e.cfg.AcousticMainTableID,
			NewsletterTableID: e.cfg.AcousticNewsletterTableID,
			Timeout:           e.cfg.AcousticTimeout,
		}, e.metrics, e.logger)
		return c, func() {}, nil
	}
}

// configError marks a setup error no retry can fix.
type configError struct {
	err error
}

func (e *configError) Error() string { return "invalid configuration: " + e.err.Error() }

func (e *configError) Unwrap() error { return e.err }
