package main

import (
	"context"
	"os"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xenking/order-desk/internal/repository"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	databaseURL string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "orderctl",
		Short: "Admin tool for the order-desk API",
		Long: `orderctl manages the order-desk database.

Commands:
  migrate        - Apply the embedded schema
  seed           - Load catalog products and demo promo codes
  import-promos  - Bulk import promo codes from gzip'd JSON-lines files`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env file is fine; the environment may be set elsewhere.
			_ = godotenv.Load()
			if opts.databaseURL == "" {
				opts.databaseURL = firstEnv("DESK_DATABASE_URL", "DATABASE_URL")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "",
		"PostgreSQL connection URL (or DESK_DATABASE_URL / DATABASE_URL env)")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newImportPromosCmd(opts),
	)
	return cmd
}

// connect opens a pool and applies the schema, which every command needs.
func (o *globalOptions) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if o.databaseURL == "" {
		return nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
	}
	pool, err := repository.NewPool(ctx, o.databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return pool, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
