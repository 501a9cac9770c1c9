package app

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the contact and ledger tables",
	Long: `migrate applies the schema of the backend selected by DATABASE_URL.
Statements are idempotent, so running it twice is harmless.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.store.Migrate(ctx)
}
