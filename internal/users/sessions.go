package users

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"siteworker/internal/apierror"
	"siteworker/internal/config"
	"siteworker/internal/visitors"
)

const tokenBytes = 32

// DefaultSessionLifetime applies when config does not set one.
const DefaultSessionLifetime = 7 * 24 * time.Hour

// AdminSession binds a session cookie and a CSRF token to a user. Only keyed
// hashes of the two tokens are stored.
type AdminSession struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	CSRFHash  string `gorm:"column:csrf_hash;not null"`
	CreatedAt int64  `gorm:"not null;autoCreateTime:false"`
	ExpiresAt int64  `gorm:"not null;index"`
	IPPlain   string `gorm:"column:ip_plain"`
	UAPlain   string `gorm:"column:ua_plain"`
}

func (AdminSession) TableName() string { return "admin_sessions" }

// LoginInput is a login attempt with request metadata.
type LoginInput struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult carries the raw tokens, which are never persisted.
type LoginResult struct {
	UserID       uint
	SessionToken string
	CSRFToken    string
	ExpiresAt    time.Time
}

// Login verifies credentials and mints a session. Every failure returns
// ErrInvalidCredentials.
func Login(db *gorm.DB, logger *slog.Logger, input LoginInput) (*LoginResult, error) {
	user, err := FindByUsername(db, input.Username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			logger.Error("Failed to look up admin user", slog.Any("error", err))
		}
		// Burn a derivation so unknown users cost the same as wrong passwords.
		VerifyPassword(input.Password, PasswordHash{Hash: "AAAA", Salt: "AAAAAAAAAAAAAAAAAAAAAA=="})
		return nil, ErrInvalidCredentials
	}

	if user.Disabled || !VerifyPassword(input.Password, user.passwordHash()) {
		return nil, ErrInvalidCredentials
	}

	sessionToken, err := randomToken(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	csrfToken, err := randomToken(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate csrf token: %w", err)
	}

	cfg := config.GetConfig()
	lifetime := time.Duration(cfg.GetLoginSessionTimeout()) * time.Second
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	now := time.Now().UTC()
	expiresAt := now.Add(lifetime)

	session := &AdminSession{
		UserID:    user.ID,
		TokenHash: visitors.HashToken(cfg.PrivateKey, sessionToken),
		CSRFHash:  visitors.HashToken(cfg.PrivateKey, csrfToken),
		CreatedAt: now.Unix(),
		ExpiresAt: expiresAt.Unix(),
		IPPlain:   input.IP,
		UAPlain:   input.UserAgent,
	}
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})
	if err != nil {
		logger.Error("Failed to create admin session", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger.Info("Admin logged in", slog.Uint64("user_id", uint64(user.ID)))
	return &LoginResult{
		UserID:       user.ID,
		SessionToken: sessionToken,
		CSRFToken:    csrfToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// Authenticate resolves the session matching both the cookie token and the
// CSRF header token. Missing, mismatched and expired sessions all return
// apierror.ErrUnauthorized.
func Authenticate(db *gorm.DB, sessionToken, csrfToken string, now time.Time) (*AdminSession, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	csrfToken = strings.TrimSpace(csrfToken)
	if sessionToken == "" || csrfToken == "" {
		return nil, apierror.ErrUnauthorized
	}

	secret := config.GetConfig().PrivateKey
	var session AdminSession
	err := db.Table("admin_sessions").
		Select("admin_sessions.*").
		Joins("JOIN admin_users ON admin_users.id = admin_sessions.user_id").
		Where("admin_sessions.token_hash = ? AND admin_sessions.csrf_hash = ?",
			visitors.HashToken(secret, sessionToken),
			visitors.HashToken(secret, csrfToken)).
		Where("admin_sessions.expires_at >= ? AND admin_users.disabled = ?", now.UTC().Unix(), false).
		Take(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to authenticate session: %w", err)
	}
	return &session, nil
}

// Logout deletes the session bound to the raw cookie token.
func Logout(db *gorm.DB, logger *slog.Logger, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	hash := visitors.HashToken(config.GetConfig().PrivateKey, sessionToken)
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Where("token_hash = ?", hash).Delete(&AdminSession{}).Error
	})
	if err != nil {
		logger.Error("Failed to delete admin session", slog.Any("error", err))
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes sessions that expired before now.
func PurgeExpiredSessions(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Where("expires_at < ?", now.UTC().Unix()).Delete(&AdminSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge admin sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
