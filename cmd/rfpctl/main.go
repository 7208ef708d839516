// Command rfpctl signs in to an rfpdesk server from the terminal and answers
// access questions against the shared permission matrix and route policy.
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin).Execute(); err != nil {
		slog.Default().Error("rfpctl", slog.Any("error", err))
		os.Exit(1)
	}
}
