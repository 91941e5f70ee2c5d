package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		Long: `Apply the embedded schema. Statements are idempotent, so running
migrate against an up-to-date database is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			slog.Info("running migrations")
			pool, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			pool.Close()
			slog.Info("migrations applied")
			return nil
		},
	}
}
