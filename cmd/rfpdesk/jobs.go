package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rfpdesk/rfpdesk/cmd/rfpdesk/cli"
	"github.com/rfpdesk/rfpdesk/internal/app"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	cmd.AddCommand(jobsTriggerCmd(), jobsStatsCmd(), jobsScheduledCmd())
	return cmd
}

func openJobsCLI() (*cli.JobsCLI, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cli.NewJobsCLI(cfg.RedisAddr)
}

func jobsTriggerCmd() *cobra.Command {
	var opts cli.TriggerOptions
	cmd := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue a job now (" + strings.Join(cli.Triggerable(), ", ") + ")",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jc, err := openJobsCLI()
			if err != nil {
				return err
			}
			defer jc.Close()
			info, err := jc.Trigger(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.MailTo, "to", "", "recipient for mail:send")
	return cmd
}

func jobsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jc, err := openJobsCLI()
			if err != nil {
				return err
			}
			defer jc.Close()
			stats, err := jc.InspectQueues(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "QUEUE\tPAUSED\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%t\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Paused, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
			}
			return tw.Flush()
		},
	}
}

func jobsScheduledCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jc, err := openJobsCLI()
			if err != nil {
				return err
			}
			defer jc.Close()
			tasks, err := jc.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tQUEUE\tTYPE\tNEXT RUN")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Queue, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&size, "limit", 10, "maximum tasks to list")
	return cmd
}
