package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Well-known setting keys
const (
	KeySetupDisabled       = "admin.setup_disabled"
	KeyAutoApprove         = "comments.auto_approve"
	KeyCommentRateLimit    = "comments.rate_limit_per_10min"
	KeyAnalyticsRetention  = "analytics.retention_days"
	KeyGeoLiteAccountID    = "geolite.account_id"
	KeyGeoLiteLicenseKey   = "geolite.license_key"
)

// ErrInvalidValue is returned when a value is not valid JSON.
var ErrInvalidValue = errors.New("setting value must be valid JSON")

// Setting represents a configuration item in the database. Values are
// stored as JSON text so booleans, numbers and objects share one column.
type Setting struct {
	Key       string `gorm:"primaryKey" json:"key"`
	ValueJSON string `gorm:"column:value_json;not null" json:"value"`
	IsSecret  bool   `gorm:"not null;default:false" json:"isSecret"`
	UpdatedAt int64  `gorm:"not null;autoUpdateTime:false" json:"updatedAt"`
}

func (Setting) TableName() string { return "settings" }

// Defaults seeds values only when the key is absent.
type Defaults struct {
	AutoApprove   bool
	RateLimit     int
	RetentionDays int
}

// SetupDefaultSettings initializes default settings in the database
func SetupDefaultSettings(dbConn *gorm.DB, defaults Defaults) error {
	seed := []Setting{
		{Key: KeySetupDisabled, ValueJSON: "false"},
		{Key: KeyAutoApprove, ValueJSON: strconv.FormatBool(defaults.AutoApprove)},
		{Key: KeyCommentRateLimit, ValueJSON: strconv.Itoa(defaults.RateLimit)},
		{Key: KeyAnalyticsRetention, ValueJSON: strconv.Itoa(defaults.RetentionDays)},
		{Key: KeyGeoLiteAccountID, ValueJSON: `""`, IsSecret: true},
		{Key: KeyGeoLiteLicenseKey, ValueJSON: `""`, IsSecret: true},
	}
	now := time.Now().UTC().Unix()
	return sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		for _, setting := range seed {
			err := tx.Exec(`
                INSERT INTO settings (key, value_json, is_secret, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.ValueJSON, setting.IsSecret, now).Error
			if err != nil {
				slog.Default().Error("Failed to seed setting", slog.String("key", setting.Key), slog.Any("error", err))
				return fmt.Errorf("failed to seed setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})
}

// GetSetting retrieves a setting row from the database
func GetSetting(dbConn *gorm.DB, key string) (*Setting, error) {
	var setting Setting
	if err := dbConn.Where("key = ?", key).First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

// All returns every setting ordered by key. The secret flag is informational.
func All(dbConn *gorm.DB) ([]Setting, error) {
	var all []Setting
	if err := dbConn.Order("key ASC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return all, nil
}

// Set upserts a setting's JSON value. The secret flag of an existing row is kept.
func Set(dbConn *gorm.DB, key string, valueJSON string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key cannot be empty")
	}
	if !json.Valid([]byte(valueJSON)) {
		return ErrInvalidValue
	}

	now := time.Now().UTC().Unix()
	return sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO settings (key, value_json, is_secret, updated_at)
            VALUES (?, ?, false, ?)
            ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
        `, key, valueJSON, now).Error
	})
}

// SetValue marshals v and stores it under key.
func SetValue(dbConn *gorm.DB, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal setting %s: %w", key, err)
	}
	return Set(dbConn, key, string(data))
}

// Bool reads a boolean setting, returning fallback when absent or malformed.
// A JSON string "true"/"false" is accepted as well.
func Bool(dbConn *gorm.DB, key string, fallback bool) bool {
	setting, err := GetSetting(dbConn, key)
	if err != nil {
		return fallback
	}

	var b bool
	if err := json.Unmarshal([]byte(setting.ValueJSON), &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal([]byte(setting.ValueJSON), &s); err == nil {
		if parsed, err := strconv.ParseBool(s); err == nil {
			return parsed
		}
	}
	return fallback
}

// Int reads an integer setting, returning fallback when absent, malformed
// or not positive.
func Int(dbConn *gorm.DB, key string, fallback int) int {
	setting, err := GetSetting(dbConn, key)
	if err != nil {
		return fallback
	}

	var n float64
	if err := json.Unmarshal([]byte(setting.ValueJSON), &n); err != nil {
		var s string
		if err := json.Unmarshal([]byte(setting.ValueJSON), &s); err != nil {
			return fallback
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fallback
		}
		n = float64(parsed)
	}
	if n <= 0 {
		return fallback
	}
	return int(n)
}

// String reads a string setting, returning fallback when absent.
func String(dbConn *gorm.DB, key string, fallback string) string {
	setting, err := GetSetting(dbConn, key)
	if err != nil {
		return fallback
	}
	var s string
	if err := json.Unmarshal([]byte(setting.ValueJSON), &s); err != nil {
		return fallback
	}
	return s
}
