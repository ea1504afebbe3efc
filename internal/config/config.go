// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
	LibSQLDatabase = "libsql"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName                    string   `mapstructure:"appname"`
	AppPort                    string   `mapstructure:"appport"`
	Environment                string   `mapstructure:"environment"`
	LogLevel                   LogLevel `mapstructure:"loglevel"`
	PrivateKey                 string   `mapstructure:"privatekey"`
	SetupToken                 string   `mapstructure:"setuptoken"`
	LoginSessionTimeoutSeconds int      `mapstructure:"loginsessiontimeoutseconds"`
	SessionIdleTimeoutSeconds  int      `mapstructure:"sessionidletimeoutseconds"`
	AllowedHostsRaw            string   `mapstructure:"allowedhosts"`
	PublicDirectory            string   `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix      string   `mapstructure:"publicassetsurlprefix"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseURL          string `mapstructure:"databaseurl"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Comment defaults, overridden by the settings table
	CommentsAutoApprove bool `mapstructure:"commentsautoapprove"`
	CommentsRateLimit   int  `mapstructure:"commentsratelimit"`

	// Job scheduling and data retention
	SweepIntervalSeconds int `mapstructure:"sweepintervalseconds"`
	RetentionDays        int `mapstructure:"retentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		// A .env file is optional; real environment variables take precedence.
		_ = godotenv.Load()

		v := viper.New()

		v.SetDefault("appname", "siteworker")
		v.SetDefault("appport", "8787")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("setuptoken", "")
		v.SetDefault("loginsessiontimeoutseconds", 604800) // 1 week
		v.SetDefault("sessionidletimeoutseconds", 1800)
		v.SetDefault("allowedhosts", "localhost,127.0.0.1")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("databaseurl", "")
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("commentsautoapprove", false)
		v.SetDefault("commentsratelimit", 5)
		v.SetDefault("sweepintervalseconds", 86400)
		v.SetDefault("retentiondays", 90)

		v.BindEnv("appname", "SITEWORKER_APP_NAME")
		v.BindEnv("appport", "SITEWORKER_APP_PORT")
		v.BindEnv("environment", "SITEWORKER_ENV")
		v.BindEnv("loglevel", "SITEWORKER_LOG_LEVEL")
		v.BindEnv("privatekey", "SITEWORKER_PRIVATE_KEY")
		v.BindEnv("setuptoken", "SITEWORKER_SETUP_TOKEN")
		v.BindEnv("loginsessiontimeoutseconds", "SITEWORKER_LOGIN_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("sessionidletimeoutseconds", "SITEWORKER_SESSION_IDLE_TIMEOUT_SECONDS")
		v.BindEnv("allowedhosts", "SITEWORKER_ALLOWED_HOSTS")
		v.BindEnv("publicdir", "SITEWORKER_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "SITEWORKER_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("storagepath", "SITEWORKER_STORAGE_PATH")
		v.BindEnv("geodbpath", "SITEWORKER_GEO_DB_PATH")
		v.BindEnv("logsdir", "SITEWORKER_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "SITEWORKER_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "SITEWORKER_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "SITEWORKER_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "SITEWORKER_DB_TYPE")
		v.BindEnv("databaseurl", "SITEWORKER_DATABASE_URL")
		v.BindEnv("dbmaxopenconns", "SITEWORKER_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "SITEWORKER_DB_MAX_IDLE_CONNS")
		v.BindEnv("commentsautoapprove", "SITEWORKER_COMMENTS_AUTO_APPROVE")
		v.BindEnv("commentsratelimit", "SITEWORKER_COMMENTS_RATE_LIMIT")
		v.BindEnv("sweepintervalseconds", "SITEWORKER_SWEEP_INTERVAL_SECONDS")
		v.BindEnv("retentiondays", "SITEWORKER_RETENTION_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique SITEWORKER_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	switch c.DatabaseType {
	case SQLiteDatabase:
	case LibSQLDatabase:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database type %s requires SITEWORKER_DATABASE_URL", c.DatabaseType)
		}
	default:
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.SessionIdleTimeoutSeconds <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsRemoteDatabase reports whether the service talks to a libsql endpoint
// instead of a local SQLite file.
func (c *Config) IsRemoteDatabase() bool {
	return c.DatabaseType == LibSQLDatabase
}

// AllowedHosts returns the global origin allow-list, lowercased.
func (c *Config) AllowedHosts() []string {
	var hosts []string
	for _, h := range strings.Split(c.AllowedHostsRaw, ",") {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	if c.IsRemoteDatabase() {
		return c.DatabaseURL
	}
	return c.GetDatabasePath()
}

// GetSessionSecret returns the key used for every keyed hash in the service
// (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetSessionIdleTimeout returns the analytics session idle timeout in seconds.
func (c *Config) GetSessionIdleTimeout() int {
	return c.SessionIdleTimeoutSeconds
}

// GetLoginSessionTimeout returns the admin session lifetime in seconds.
func (c *Config) GetLoginSessionTimeout() int {
	return c.LoginSessionTimeoutSeconds
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for in-memory test stability)
// - Development/Production: 10
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
