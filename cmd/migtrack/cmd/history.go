package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/kuhlman-labs/migration-tracker/internal/app"
	"github.com/kuhlman-labs/migration-tracker/internal/services"
	"github.com/spf13/cobra"
)

func newHistoryCommand(g *globalFlags, opts app.Options) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past sync runs",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list [enterprise]",
		Short: "List sync runs of an enterprise, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				histories, err := a.Service.ListSyncHistories(ctx, args[0], limit, offset)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return printJSON(cmd.OutOrStdout(), histories)
				}
				if len(histories) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sync runs found")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "SYNC ID\tSTATUS\tSTARTED\tENDED\tORGS\tMIGRATIONS")
				for _, h := range histories {
					total := 0
					for _, org := range h.Organizations {
						total += org.TotalMigrations
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\n",
						h.SyncID, h.Status, formatTime(&h.StartTime), formatTime(h.EndTime),
						h.CompletedOrganizations, h.TotalOrganizations, total)
				}
				return w.Flush()
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", services.DefaultHistoryLimit, "maximum number of runs")
	listCmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	getCmd := &cobra.Command{
		Use:   "get [sync_id]",
		Short: "Show one sync run with its organizations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				h, err := a.Service.GetSyncHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if h == nil {
					return fmt.Errorf("sync %s not found", args[0])
				}
				if g.jsonOutput {
					return printJSON(cmd.OutOrStdout(), h)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Sync:        %s\n", h.SyncID)
				fmt.Fprintf(out, "Enterprise:  %s\n", h.EnterpriseName)
				fmt.Fprintf(out, "Status:      %s\n", h.Status)
				fmt.Fprintf(out, "Started:     %s\n", formatTime(&h.StartTime))
				fmt.Fprintf(out, "Ended:       %s\n", formatTime(h.EndTime))
				if h.ErrorMessage != nil {
					fmt.Fprintf(out, "Error:       %s\n", *h.ErrorMessage)
				}
				fmt.Fprintln(out)
				printHistoryOrgs(out, h.Organizations)
				return nil
			})
		},
	}

	historyCmd.AddCommand(listCmd, getCmd)
	return historyCmd
}
