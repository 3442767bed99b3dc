package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/kuhlman-labs/migration-tracker/internal/app"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/services"
	"github.com/kuhlman-labs/migration-tracker/internal/syncer"
	"github.com/spf13/cobra"
)

func newSyncCommand(g *globalFlags, opts app.Options) *cobra.Command {
	var (
		orgs          []string
		requireAccess bool
		showProgress  bool
	)

	cmd := &cobra.Command{
		Use:   "sync [enterprise]",
		Short: "Sync migration records of an enterprise",
		Long: `Fetch every migration of the enterprise's organizations from GitHub and
store them in the tracker. The command waits for the run to finish and exits
non-zero when it fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enterprise := args[0]

			return g.withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				var wg sync.WaitGroup
				streamCtx, stopStream := context.WithCancel(ctx)
				if showProgress {
					updates := a.Service.SubscribeProgress(streamCtx, enterprise)
					wg.Add(1)
					go func() {
						defer wg.Done()
						printProgress(cmd.ErrOrStderr(), updates)
					}()
				}

				res, err := a.Service.RunSync(ctx, services.TriggerRequest{
					Enterprise:    enterprise,
					Organizations: orgs,
					RequireAccess: requireAccess,
					Credential:    g.credential(),
				})
				stopStream()
				wg.Wait()
				if err != nil {
					return err
				}

				if g.jsonOutput {
					return printJSON(cmd.OutOrStdout(), res.History)
				}
				printSyncResult(cmd.OutOrStdout(), res)
				if res.State == models.RunFailed {
					return fmt.Errorf("sync %s failed", res.SyncID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&orgs, "org", nil, "limit the run to these organizations (repeatable)")
	cmd.Flags().BoolVar(&requireAccess, "require-access", false, "skip organizations whose last access check failed")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "print progress updates to stderr")

	return cmd
}

// printProgress writes one line per organization whose state changed
func printProgress(w io.Writer, updates <-chan models.EnterpriseProgress) {
	last := make(map[string]string)
	for p := range updates {
		for _, org := range p.Organizations {
			line := fmt.Sprintf("%s: %s page %d/%d, %d migrations",
				org.OrganizationName, org.State, org.CurrentPage, org.TotalPages, org.MigrationsCount)
			if org.Error != nil {
				line += " (" + *org.Error + ")"
			}
			if last[org.OrganizationName] == line {
				continue
			}
			last[org.OrganizationName] = line
			fmt.Fprintln(w, line)
		}
	}
}

func printSyncResult(w io.Writer, res *syncer.Result) {
	h := res.History
	fmt.Fprintf(w, "Sync %s %s\n", res.SyncID, strings.ToLower(string(res.State)))
	if h == nil {
		return
	}
	fmt.Fprintf(w, "Organizations: %d/%d completed\n", h.CompletedOrganizations, h.TotalOrganizations)
	if h.ErrorMessage != nil {
		fmt.Fprintf(w, "Error: %s\n", *h.ErrorMessage)
	}
	printHistoryOrgs(w, h.Organizations)
}

func printHistoryOrgs(w io.Writer, orgs []models.SyncHistoryOrg) {
	if len(orgs) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ORGANIZATION\tMIGRATIONS\tPAGES\tCOMPLETED\tERRORS")
	for _, org := range orgs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%s\n",
			org.Login, org.TotalMigrations, org.TotalPages, org.Completed, strings.Join(org.Errors, "; "))
	}
	_ = tw.Flush()
}
