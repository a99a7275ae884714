package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vncsmyrnk/devicesession/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/devicesession/internal/config"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "authctl",
		Short: "Administrative tasks for the device session service",
		Long: `authctl runs maintenance and incident-response tasks against the
device session database: applying migrations, purging expired refresh
tokens and rate-limit buckets, and revoking every session of a user.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newPurgeCmd(opts),
		newRevokeUserCmd(opts),
		newHashPasswordCmd(),
	)
	return cmd
}

// env is what database-backed commands share.
type env struct {
	cfg    *config.Config
	db     *sql.DB
	logger *logging.Logger
}

func (o *rootOptions) open(ctx context.Context) (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, fmt.Errorf("authctl requires database.driver %q, got %q", config.DriverPostgres, cfg.Database.Driver)
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		db:     db,
		logger: logging.New(cfg.Logging, version).With("component", "authctl"),
	}, nil
}

func (e *env) close() {
	_ = e.db.Close()
}
