package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"siteworker/internal/config"
)

// DBManager wraps cartridge's sqlite.Manager. When the service is configured
// for a remote libsql database the local manager is bypassed and every
// connection request returns the remote handle instead.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
	remote *gorm.DB
	cfg    *config.Config
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
		cfg:     cfg,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	if dm.cfg.IsRemoteDatabase() {
		db, err := openRemote(dm.cfg.DatabaseURL, dm.cfg.GetMaxOpenConns(), dm.cfg.GetMaxIdleConns())
		if err != nil {
			return err
		}
		dm.remote = db
		dm.logger.Info("Connected to remote libsql database")
		return nil
	}

	_, err := dm.Manager.Connect()
	return err
}

// GetConnection returns the remote handle in libsql mode, the local sqlite
// connection otherwise.
func (dm *DBManager) GetConnection() *gorm.DB {
	if dm.remote != nil {
		return dm.remote
	}
	return dm.Manager.GetConnection()
}

// openRemote opens a libsql (Turso) endpoint through the GORM sqlite dialector.
func openRemote(url string, maxOpen, maxIdle int) (*gorm.DB, error) {
	db, err := gorm.Open(gormsqlite.New(gormsqlite.Config{
		DriverName: "libsql",
		DSN:        url,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get libsql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to reach libsql database: %w", err)
	}
	return db, nil
}

// MigrateDatabase creates or updates the schema for the given models.
func (dm *DBManager) MigrateDatabase(models ...any) error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(models...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if dm.remote == nil {
		if err := dm.CheckpointWAL("FULL"); err != nil {
			dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
		}
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// Atomic runs fn inside a single transaction on the write path. Either every
// statement issued through tx applies or none does.
func Atomic(logger *slog.Logger, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Transaction(fn)
	})
}
