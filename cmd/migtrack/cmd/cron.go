package cmd

import (
	"context"
	"fmt"

	"github.com/kuhlman-labs/migration-tracker/internal/app"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/spf13/cobra"
)

func newCronCommand(g *globalFlags, opts app.Options) *cobra.Command {
	cronCmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage per-enterprise sync schedules",
		Long: `Read or change the cron schedule of an enterprise. Scheduled runs repeat the
organizations of the enterprise's last completed sync and are executed by the
server, not by this command.`,
	}

	getCmd := &cobra.Command{
		Use:   "get [enterprise]",
		Short: "Show the sync schedule of an enterprise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				cfg, err := a.Service.GetCronConfig(ctx, args[0])
				if err != nil {
					return err
				}
				if cfg == nil {
					if g.jsonOutput {
						return printJSON(cmd.OutOrStdout(), map[string]any{"enterprise_name": args[0], "configured": false})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "No schedule configured for %s\n", args[0])
					return nil
				}
				return printCron(cmd, g, cfg)
			})
		},
	}

	var (
		schedule string
		enabled  bool
	)
	setCmd := &cobra.Command{
		Use:   "set [enterprise]",
		Short: "Set the sync schedule of an enterprise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				cfg, err := a.Service.SetCronConfig(ctx, args[0], schedule, enabled)
				if err != nil {
					return err
				}
				return printCron(cmd, g, cfg)
			})
		},
	}
	setCmd.Flags().StringVar(&schedule, "schedule", "", "five-field cron expression or descriptor such as @daily")
	setCmd.Flags().BoolVar(&enabled, "enabled", false, "activate the schedule")
	_ = setCmd.MarkFlagRequired("schedule")

	cronCmd.AddCommand(getCmd, setCmd)
	return cronCmd
}

func printCron(cmd *cobra.Command, g *globalFlags, cfg *models.CronConfig) error {
	if g.jsonOutput {
		return printJSON(cmd.OutOrStdout(), cfg)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Enterprise:  %s\n", cfg.EnterpriseName)
	fmt.Fprintf(out, "Schedule:    %s\n", cfg.Schedule)
	fmt.Fprintf(out, "Enabled:     %t\n", cfg.Enabled)
	fmt.Fprintf(out, "Last run:    %s\n", formatTime(cfg.LastRun))
	fmt.Fprintf(out, "Next run:    %s\n", formatTime(cfg.NextRun))
	return nil
}
