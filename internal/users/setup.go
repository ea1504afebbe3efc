package users

import (
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"siteworker/internal/apierror"
	"siteworker/internal/database"
	"siteworker/internal/settings"
)

var (
	// ErrSetupDisabled is returned once bootstrap has been closed.
	ErrSetupDisabled = apierror.New(fiber.StatusForbidden, "setup disabled")
	// ErrSetupConflict is returned when an admin already exists.
	ErrSetupConflict = apierror.New(fiber.StatusConflict, "admin already exists")
)

// SetupInput is the one-time bootstrap request.
type SetupInput struct {
	BearerToken     string
	ConfiguredToken string
	Username        string
	Password        string
}

// SetupTokenValid compares the presented bearer token with the configured
// one in constant time. An unconfigured token never matches.
func SetupTokenValid(presented, configured string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Setup creates the single admin user and closes bootstrap. Checks run in
// order: token, existing admin, setup_disabled, then credential shape.
func Setup(db *gorm.DB, logger *slog.Logger, input SetupInput) (*AdminUser, error) {
	if !SetupTokenValid(input.BearerToken, input.ConfiguredToken) {
		return nil, apierror.ErrUnauthorized
	}

	count, err := Count(db)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrSetupConflict
	}

	if settings.Bool(db, settings.KeySetupDisabled, false) {
		return nil, ErrSetupDisabled
	}

	now := time.Now().UTC().Unix()
	user, err := newAdminUser(input.Username, input.Password, now)
	if err != nil {
		return nil, err
	}

	err = database.Atomic(logger, db, func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&AdminUser{}).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrSetupConflict
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Exec(`
            INSERT INTO settings (key, value_json, is_secret, updated_at)
            VALUES (?, 'true', false, ?)
            ON CONFLICT(key) DO UPDATE SET value_json = 'true', updated_at = excluded.updated_at
        `, settings.KeySetupDisabled, now).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Admin user created via setup", slog.String("username", user.Username))
	return user, nil
}

// SetupDisabled reports the bootstrap flag.
func SetupDisabled(db *gorm.DB) bool {
	return settings.Bool(db, settings.KeySetupDisabled, false)
}
