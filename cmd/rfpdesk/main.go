// Command rfpdesk runs the RFP workspace.
//
// Subcommands:
//
//	serve    HTTP server (default)
//	migrate  apply pending database migrations and exit
//	seed     insert demo accounts and a sample RFP
//	jobs     inspect and trigger background jobs
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "rfpdesk",
		Short:         "RFP workspace server",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runServe,
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedCmd(), jobsCmd())

	if err := root.Execute(); err != nil {
		slog.Default().Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
