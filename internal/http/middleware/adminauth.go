package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"siteworker/internal/apierror"
	"siteworker/internal/users"
)

const (
	// CSRFHeader carries the token returned by login.
	CSRFHeader = "X-CSRF-Token"

	sessionLocalKey = "admin_session"
)

// AdminAuth requires both the session cookie and the CSRF header. Any
// mismatch, expiry or disabled user yields the same 401.
func AdminAuth(db *gorm.DB, logger *slog.Logger, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := users.Authenticate(db, c.Cookies(cookieName), c.Get(CSRFHeader), time.Now().UTC())
		if err != nil {
			logger.Debug("Admin authentication failed",
				slog.String("path", c.Path()),
				slog.Any("error", err))
			return apierror.Respond(c, logger, err)
		}

		c.Locals(sessionLocalKey, session)
		return c.Next()
	}
}

// CurrentSession returns the session stored by AdminAuth.
func CurrentSession(c *fiber.Ctx) *users.AdminSession {
	session, _ := c.Locals(sessionLocalKey).(*users.AdminSession)
	return session
}
