package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chis/locksmith/internal/cli"
	"github.com/chis/locksmith/internal/logging"
)

var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	logging.Init(logging.Config{
		Level:  getEnv("LOCKSMITH_LOG_LEVEL", "info"),
		Format: getEnv("LOCKSMITH_LOG_FORMAT", "console"),
	})

	rootCmd := &cobra.Command{
		Use:   "locksmith",
		Short: "Locksmith - digest-pinned lock files for docker-compose projects",
		Long: `Locksmith resolves the images of your docker-compose services to exact
digests, derives a human-meaningful version for each, and keeps the result in
a lock file so deployments are reproducible.

Targets select what to synchronize: "*" for everything, "project" for one
project, "project.service" for a single service.`,
		Version: fmt.Sprintf("%s (commit: %s, date: %s)", version, commit, date),
	}

	rootCmd.PersistentFlags().String("config", "locksmith.yml", "Config file path")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (console, json)")

	rootCmd.AddCommand(cli.NewLockCommand())
	rootCmd.AddCommand(cli.NewStatusCommand())
	rootCmd.AddCommand(cli.NewHistoryCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
