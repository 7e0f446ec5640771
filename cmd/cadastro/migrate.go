package main

import (
	"context"
	"errors"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/config"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/observability"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/postgres"

	"github.com/spf13/cobra"
)

func newMigrateCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				return errors.New("migrate requires STORE=postgres")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			logger := observability.NewLogger(cfg.LogLevel)
			defer logger.Sync()

			pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, 1)
			if err != nil {
				return err
			}
			defer pool.Close()

			return postgres.Migrate(ctx, pool, logger)
		},
	}
}
