package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vncsmyrnk/devicesession/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/devicesession/internal/core/services"
)

func newRevokeUserCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-user <user-id>",
		Short: "Revoke every active refresh token of a user on all devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}

			e, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			tokens := services.NewRefreshTokenService(postgres.NewAuthRepository(e.db), services.RefreshTokenConfig{
				Secret: []byte(e.cfg.Tokens.RefreshSecret),
				TTL:    e.cfg.RefreshTTL(),
			}, e.logger)

			count, err := tokens.RevokeAllForUser(cmd.Context(), userID)
			if err != nil {
				return err
			}

			e.logger.Warn("revoked all sessions of user", "user_id", userID, "count", count)
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d refresh tokens\n", count)
			return nil
		},
	}
}
