package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/pkg/config"
	"github.com/infosage/backend/pkg/logger"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "factctl",
	Short: "Administrative commands for the InfoSage backend",
	Long: `factctl runs maintenance tasks against the same store and
configuration as the API server: batch reclustering, verdict evaluation
over labeled datasets, and administrative reset.

Configuration is read from config.yaml and INFOSAGE_* environment
variables.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Init(logLevel, "console", "stderr")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (*config.Config, *sqlite.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return cfg, store, nil
}
