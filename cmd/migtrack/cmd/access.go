package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/kuhlman-labs/migration-tracker/internal/app"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/spf13/cobra"
)

func newAccessCommand(g *globalFlags, opts app.Options) *cobra.Command {
	accessCmd := &cobra.Command{
		Use:   "access",
		Short: "Check which organizations the tracker can administer",
	}

	checkCmd := &cobra.Command{
		Use:   "check [enterprise]",
		Short: "Check admin access to every organization of an enterprise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				statuses, err := a.Service.CheckAccess(ctx, args[0], g.credential())
				if err != nil {
					return err
				}
				return printAccess(cmd, g, statuses)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list [enterprise]",
		Short: "Show the last access check of an enterprise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				statuses, err := a.Service.ListAccessStatuses(ctx, args[0])
				if err != nil {
					return err
				}
				return printAccess(cmd, g, statuses)
			})
		},
	}

	accessCmd.AddCommand(checkCmd, listCmd)
	return accessCmd
}

func printAccess(cmd *cobra.Command, g *globalFlags, statuses []*models.OrgAccessStatus) error {
	if g.jsonOutput {
		return printJSON(cmd.OutOrStdout(), statuses)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No access checks recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ORGANIZATION\tACCESS\tCHECKED\tERROR")
	for _, s := range statuses {
		access := "no"
		if s.HasAccess {
			access = "yes"
		}
		errMsg := ""
		if s.ErrorMessage != nil {
			errMsg = *s.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.OrgLogin, access, formatTime(&s.LastChecked), errMsg)
	}
	return w.Flush()
}
