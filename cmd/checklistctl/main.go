package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kitchensafe/kitchensafe-backend/pkg/config"
	"github.com/kitchensafe/kitchensafe-backend/pkg/database"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
)

const toolName = "checklistctl"

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          toolName,
		Short:        "Operator tooling for the checklist service",
		Long:         "checklistctl migrates the schema, runs generation on demand, seeds demo data and mints development tokens.",
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newSeedDemoCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit: %s)\n", toolName, Version, Commit)
		},
	}
}

// connect loads configuration and opens the database.
func connect() (*config.Config, *database.DB, *logger.Logger, error) {
	cfg, err := config.Load(toolName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(toolName, cfg.Server.Environment)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, log, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
