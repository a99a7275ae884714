package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vncsmyrnk/devicesession/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/devicesession/internal/core/services"
)

func newPurgeCmd(root *rootOptions) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh tokens and stale rate-limit buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if retention < 0 {
				return errors.New("--retention must not be negative")
			}

			e, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			maintenance := services.NewMaintenanceService(
				postgres.NewAuthRepository(e.db),
				postgres.NewRateLimitRepository(e.db),
			)
			result, err := maintenance.Purge(cmd.Context(), retention)
			if err != nil {
				return err
			}

			e.logger.Info("purge finished",
				"retention", retention.String(),
				"refresh_tokens", result.RefreshTokens,
				"rate_limit_buckets", result.RateLimitBuckets,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d refresh tokens and %d rate limit buckets\n",
				result.RefreshTokens, result.RateLimitBuckets)
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 7*24*time.Hour, "keep tokens that expired less than this long ago")
	return cmd
}
