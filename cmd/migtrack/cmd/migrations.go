package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/kuhlman-labs/migration-tracker/internal/app"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/services"
	"github.com/spf13/cobra"
)

func newMigrationsCommand(g *globalFlags, opts app.Options) *cobra.Command {
	migrationsCmd := &cobra.Command{
		Use:   "migrations",
		Short: "Query stored migration records",
	}

	var (
		filter models.MigrationFilter
		state  string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored migrations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if state != "" {
				parsed, ok := models.ParseMigrationState(state)
				if !ok {
					return fmt.Errorf("unknown migration state %q", state)
				}
				filter.State = parsed
			}
			return g.withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				page, err := a.Service.ListMigrations(ctx, filter)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return printJSON(cmd.OutOrStdout(), page)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "ID\tORGANIZATION\tREPOSITORY\tSTATE\tWARNINGS\tCREATED")
				for _, m := range page.Migrations {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						m.ProviderID, m.OrganizationName, m.RepositoryName, m.State, m.WarningsCount, formatTime(&m.CreatedAt))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d\n", len(page.Migrations), page.Total)
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&filter.EnterpriseName, "enterprise", "", "filter by enterprise")
	listCmd.Flags().StringVar(&filter.OrganizationName, "org", "", "filter by organization")
	listCmd.Flags().StringVar(&state, "state", "", "filter by migration state, e.g. FAILED")
	listCmd.Flags().IntVar(&filter.Limit, "limit", services.DefaultMigrationLimit, "maximum number of records")
	listCmd.Flags().IntVar(&filter.Offset, "offset", 0, "number of records to skip")

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete one stored migration record",
		Long:  `Remove a migration record from the tracker. A later sync stores it again if GitHub still reports it.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Service.DeleteMigration(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted migration %s\n", args[0])
				return nil
			})
		},
	}

	migrationsCmd.AddCommand(listCmd, deleteCmd)
	return migrationsCmd
}
