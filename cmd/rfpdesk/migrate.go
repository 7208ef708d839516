package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rfpdesk/rfpdesk/internal/app"
	"github.com/rfpdesk/rfpdesk/internal/platform/db"
	"github.com/rfpdesk/rfpdesk/migrations"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cfg)
			version, err := db.Migrate(cfg.PGDSN, migrations.FS)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", slog.Uint64("version", uint64(version)))
			return nil
		},
	}
}
