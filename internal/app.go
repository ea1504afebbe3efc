// Package internal wires the siteworker application together.
package internal

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"siteworker/internal/config"
	"siteworker/internal/database"
	"siteworker/internal/jobs"
	"siteworker/internal/models"
	"siteworker/internal/pkg/geoip"
	"siteworker/internal/settings"
)

// Application wraps cartridge.Application with siteworker-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Jobs      *jobs.Scheduler
	Logger    *slog.Logger
	Config    *config.Config
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithRoutes(cfg, MountAppRoutes)
}

// NewAppWithRoutes creates a new application with custom route mounting function
func NewAppWithRoutes(cfg *config.Config, routeMount func(*cartridge.Server)) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	geoip.Init(cfg.GeoDBPath, logger)

	jobsManager, err := jobs.NewScheduler(dbManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    routeMount,
		BackgroundWorkers: []cartridge.BackgroundWorker{jobsManager},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Jobs:        jobsManager,
		Logger:      logger,
		Config:      cfg,
	}, nil
}

// Migrate creates the schema and seeds default settings. Safe to run on
// every start.
func Migrate(dbManager *database.DBManager, cfg *config.Config) error {
	if err := dbManager.MigrateDatabase(models.All()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	err := settings.SetupDefaultSettings(dbManager.GetConnection(), settings.Defaults{
		AutoApprove:   cfg.CommentsAutoApprove,
		RateLimit:     cfg.CommentsRateLimit,
		RetentionDays: cfg.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}
