package main

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/rfpdesk/rfpdesk/cmd/rfpdesk/cli"
	"github.com/rfpdesk/rfpdesk/internal/app"
	"github.com/rfpdesk/rfpdesk/internal/platform/db"
)

func seedCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo accounts (one per role) and a sample RFP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cfg)
			pool, err := db.New(cmd.Context(), cfg.PGDSN, cfg.PoolOptions("rfpdesk-seed"))
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			var res cli.SeedResult
			err = db.WithTx(cmd.Context(), pool, func(tx pgx.Tx) error {
				res, err = cli.Seed(cmd.Context(), tx, password)
				return err
			})
			if err != nil {
				return err
			}
			logger.Info("seed complete",
				slog.Int("accounts", res.Accounts),
				slog.Int("clients", res.Clients),
				slog.Int("rfps", res.RFPs),
				slog.Int("requirements", res.Requirements))
			for _, acct := range cli.DemoAccounts() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", acct.Email, acct.Role)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", cli.DefaultSeedPassword, "password for every demo account")
	return cmd
}
