package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/ctms-sync/internal/service"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the due and dormant backlog",
	RunE:  runStats,
}

var resetDormantCmd = &cobra.Command{
	Use:   "reset-dormant",
	Short: "Give every dormant record a fresh retry budget",
	Long: `reset-dormant sets the retry count of every record that reached
SYNC_RETRY_LIMIT back to 0, so the next cycles pick them up again.`,
	RunE: runResetDormant,
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	syncService := service.NewSyncService(service.FromStore(e.store), nil, e.syncConfig(), e.metrics, e.logger)
	if err := syncService.Sample(ctx, time.Now()); err != nil {
		return fmt.Errorf("failed to sample backlog: %w", err)
	}

	stats := syncService.Stats()
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]int64{
		"due":     stats.Due,
		"dormant": stats.Dormant,
	})
}

func runResetDormant(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n, err := tx.ResetDormant(ctx, e.cfg.RetryLimit, time.Now())
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.logger.Info("Dormant records reset", "count", n, "retry_limit", e.cfg.RetryLimit)
	fmt.Fprintf(cmd.OutOrStdout(), "reset %d dormant records\n", n)
	return nil
}
