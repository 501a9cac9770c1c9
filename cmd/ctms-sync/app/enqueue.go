package app

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Guizzs26/ctms-sync/internal/service"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <email_id>...",
	Short: "Queue contacts for sync without a change",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnqueue,
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return fmt.Errorf("invalid email_id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}

	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	contacts := service.NewContactService(service.FromStore(e.store), e.logger)
	for _, id := range ids {
		if err := contacts.Enqueue(ctx, id, time.Now()); err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", id)
	}
	return nil
}
