package users

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"siteworker/internal/apierror"
)

// AdminUser is the single operator account.
type AdminUser struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"uniqueIndex;not null" json:"username"`
	PwHash    string `gorm:"column:pw_hash;not null" json:"-"`
	PwSalt    string `gorm:"column:pw_salt;not null" json:"-"`
	PwIters   int    `gorm:"column:pw_iters;not null" json:"-"`
	Disabled  bool   `gorm:"not null;default:false" json:"disabled"`
	CreatedAt int64  `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt int64  `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (AdminUser) TableName() string { return "admin_users" }

func (u *AdminUser) passwordHash() PasswordHash {
	return PasswordHash{Hash: u.PwHash, Salt: u.PwSalt, Iterations: u.PwIters}
}

var (
	// ErrInvalidCredentials covers unknown users, disabled users and wrong passwords alike.
	ErrInvalidCredentials = apierror.New(fiber.StatusUnauthorized, "invalid credentials")
	// ErrUserExists is returned when attempting to create a user that already exists.
	ErrUserExists = apierror.New(fiber.StatusConflict, "admin already exists")
	// ErrUserNotFound is returned when a user lookup fails.
	ErrUserNotFound = apierror.New(fiber.StatusNotFound, "user not found")
)

const (
	minPasswordLength = 8
	maxUsernameLength = 64
)

// FindByUsername retrieves a user by username.
func FindByUsername(db *gorm.DB, username string) (*AdminUser, error) {
	var user AdminUser
	if err := db.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByID retrieves a user by ID.
func FindByID(db *gorm.DB, id uint) (*AdminUser, error) {
	var user AdminUser
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Count returns how many admin users exist.
func Count(db *gorm.DB) (int64, error) {
	var n int64
	if err := db.Model(&AdminUser{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count admin users: %w", err)
	}
	return n, nil
}

// ValidateCredentials checks the shape of a username and password pair.
func ValidateCredentials(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return apierror.Invalid("username is required")
	}
	if len(username) > maxUsernameLength {
		return apierror.Invalid("username is too long")
	}
	if len(password) < minPasswordLength {
		return apierror.Invalid("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

// newAdminUser builds an unsaved user with a freshly salted hash.
func newAdminUser(username, password string, now int64) (*AdminUser, error) {
	if err := ValidateCredentials(username, password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &AdminUser{
		Username:  strings.TrimSpace(username),
		PwHash:    hash.Hash,
		PwSalt:    hash.Salt,
		PwIters:   hash.Iterations,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ResetPassword replaces a user's password and revokes their sessions.
func ResetPassword(db *gorm.DB, logger *slog.Logger, username, password string) error {
	if err := ValidateCredentials(username, password); err != nil {
		return err
	}

	user, err := FindByUsername(db, username)
	if err != nil {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Unix()
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		err := tx.Model(&AdminUser{}).Where("id = ?", user.ID).Updates(map[string]any{
			"pw_hash":    hash.Hash,
			"pw_salt":    hash.Salt,
			"pw_iters":   hash.Iterations,
			"updated_at": now,
		}).Error
		if err != nil {
			return err
		}
		return tx.Where("user_id = ?", user.ID).Delete(&AdminSession{}).Error
	})
}

// SetDisabled enables or disables login for a user.
func SetDisabled(db *gorm.DB, logger *slog.Logger, username string, disabled bool) error {
	user, err := FindByUsername(db, username)
	if err != nil {
		return err
	}
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&AdminUser{}).Where("id = ?", user.ID).Updates(map[string]any{
			"disabled":   disabled,
			"updated_at": time.Now().UTC().Unix(),
		}).Error
	})
}

// CreateAdmin inserts an admin user directly, bypassing the setup token.
// Used by the operator CLI.
func CreateAdmin(db *gorm.DB, logger *slog.Logger, username, password string) (*AdminUser, error) {
	user, err := newAdminUser(username, password, time.Now().UTC().Unix())
	if err != nil {
		return nil, err
	}
	if _, err := FindByUsername(db, user.Username); err == nil {
		return nil, ErrUserExists
	}
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}
	return user, nil
}
