package cmd

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/app"
	"github.com/kuhlman-labs/migration-tracker/internal/config"
	"github.com/kuhlman-labs/migration-tracker/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 30 * time.Second

// globalFlags are shared by every subcommand
type globalFlags struct {
	configFile string
	dsn        string
	dbType     string
	logLevel   string
	token      string
	jsonOutput bool
}

// NewRootCommand builds the migtrack command tree. opts is passed to every
// app the commands open.
func NewRootCommand(opts app.Options) *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "migtrack",
		Short: "migtrack syncs and inspects GitHub migration records",
		Long: `migtrack is the command-line interface of the Migration Tracker.

It runs the sync engine in-process against the tracker's database, so runs
started here are recorded in the same sync history the server shows.

Common workflows:

  Sync every organization of an enterprise:
    migtrack sync acme --progress

  Sync two organizations and skip those without admin access:
    migtrack sync acme --org octo --org hubot --require-access

  Show recent runs:
    migtrack history list acme

  Schedule a nightly sync:
    migtrack cron set acme --schedule "0 2 * * *" --enabled

Configuration is read from config.yaml, MIGTRACK_* environment variables and
.env, the same way the server reads it. The token used for manual runs comes
from --token, MIGTRACK_TOKEN or GITHUB_TOKEN; without one the configured
unattended credential is used.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.configFile, "config", "", "config file (default is ./config.yaml or ./configs/config.yaml)")
	flags.StringVar(&g.dsn, "db", "", "database DSN, overrides database.dsn")
	flags.StringVar(&g.dbType, "db-type", "", "database type, overrides database.type")
	flags.StringVar(&g.logLevel, "log-level", "warn", "log level written to stderr")
	flags.StringVarP(&g.token, "token", "t", "", "GitHub token for manual runs and access checks")
	flags.BoolVar(&g.jsonOutput, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(
		newSyncCommand(g, opts),
		newHistoryCommand(g, opts),
		newAccessCommand(g, opts),
		newCronCommand(g, opts),
		newMigrationsCommand(g, opts),
	)

	return rootCmd
}

// ExecuteContext runs the command tree with ctx
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand(app.Options{}).ExecuteContext(ctx)
}

// credential returns the token for manual runs
func (g *globalFlags) credential() string {
	if g.token != "" {
		return g.token
	}
	v := viper.New()
	_ = v.BindEnv("token", "MIGTRACK_TOKEN", "GITHUB_TOKEN")
	return v.GetString("token")
}

// loadConfig reads the tracker configuration and applies flag overrides
func (g *globalFlags) loadConfig() (*config.Config, error) {
	if g.configFile != "" {
		viper.SetConfigFile(g.configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if g.dsn != "" {
		cfg.Database.DSN = g.dsn
	}
	if g.dbType != "" {
		cfg.Database.Type = g.dbType
	}
	// A one-shot command has no scrape endpoint
	cfg.Metrics.Enabled = false
	return cfg, cfg.Validate()
}

// withApp opens the tracker for one command and shuts it down afterwards
func (g *globalFlags) withApp(cmd *cobra.Command, opts app.Options, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewConsoleLogger(cmd.ErrOrStderr(), g.logLevel)
	a, err := app.New(cfg, logger, opts)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := a.Shutdown(ctx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()

	return fn(cmd.Context(), a)
}

// printJSON writes v indented
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
