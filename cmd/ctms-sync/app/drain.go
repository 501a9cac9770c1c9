package app

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/ctms-sync/internal/service"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run a single drain cycle and print its summary",
	RunE:  runDrain,
}

func runDrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	d, closeLink, err := e.deliverer(ctx)
	if err != nil {
		return err
	}
	defer closeLink()

	syncService := service.NewSyncService(service.FromStore(e.store), d, e.syncConfig(), e.metrics, e.logger)
	summary, err := syncService.Drain(ctx, time.Now())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
