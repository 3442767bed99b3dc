// Package main is the entry point for migtrack, the command line client of
// the Migration Tracker. It runs the sync engine in-process against the
// tracker's database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuhlman-labs/migration-tracker/cmd/migtrack/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
