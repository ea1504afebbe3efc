// main.go - operator CLI for siteworker
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/karloscodes/cartridge"
	"github.com/spf13/cobra"

	"siteworker/internal/config"
	"siteworker/internal/database"
)

// rootCmd is the base command; subcommands register themselves in init.
var rootCmd = &cobra.Command{
	Use:   "swctl",
	Short: "Operate a siteworker installation",
	Long: `swctl runs migrations, provisions sites, manages the admin account and
triggers the retention sweep against the configured database.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env bundles what every command needs.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	dbManager *database.DBManager
}

// openEnv loads config and connects to the database.
func openEnv() (*env, error) {
	cfg := config.GetConfig()
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &env{cfg: cfg, logger: logger, dbManager: dbManager}, nil
}

func (e *env) Close() {
	sqlDB, err := e.dbManager.GetConnection().DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		e.logger.Warn("Failed to close database", slog.Any("error", err))
	}
}
