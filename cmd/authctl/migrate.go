package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vncsmyrnk/devicesession/internal/adapters/repository/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply every embedded migration that has not run yet. With --only, run a
single migration file by name, e.g. --only 0002_rate_limit_buckets.down`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			if only != "" {
				file, err := postgres.RunMigration(cmd.Context(), e.db, only)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migration %s executed successfully.\n", file)
				return nil
			}

			applied, err := postgres.Migrate(cmd.Context(), e.db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&only, "only", "", "run a single migration by name")
	return cmd
}
