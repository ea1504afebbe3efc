package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"siteworker/internal/apierror"
	"siteworker/internal/config"
	"siteworker/internal/http/middleware"
	"siteworker/internal/users"
)

type credentialsParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionCookieName is the admin session cookie for the running app.
func SessionCookieName() string {
	return config.GetConfig().AppName + "_session"
}

// SetupAction creates the first admin. It requires the bootstrap bearer token
// and closes itself once an admin exists.
func SetupAction(ctx *cartridge.Context) error {
	// The token is checked before the body, so a bad body surfaces later as
	// a credential validation error.
	var params credentialsParams
	if err := apierror.Decode(ctx.Ctx, &params); err != nil {
		ctx.Logger.Debug("Setup body could not be decoded", slog.Any("error", err))
	}

	user, err := users.Setup(ctx.DB(), ctx.Logger, users.SetupInput{
		BearerToken:     users.BearerToken(ctx.Get(fiber.HeaderAuthorization)),
		ConfiguredToken: config.GetConfig().SetupToken,
		Username:        params.Username,
		Password:        params.Password,
	})
	if err != nil {
		ctx.Logger.Warn("Admin setup rejected", slog.Any("error", err))
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	ctx.Logger.Info("Admin user created", slog.Int("user_id", int(user.ID)))
	return ctx.JSON(fiber.Map{"ok": true})
}

// SetupStatusAction reports whether bootstrap has been closed.
func SetupStatusAction(ctx *cartridge.Context) error {
	return ctx.JSON(fiber.Map{"setupDisabled": users.SetupDisabled(ctx.DB())})
}

// LoginAction verifies credentials, sets the session cookie and returns the
// CSRF token the client must echo in X-CSRF-Token.
func LoginAction(ctx *cartridge.Context) error {
	var params credentialsParams
	if err := apierror.Decode(ctx.Ctx, &params); err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	result, err := users.Login(ctx.DB(), ctx.Logger, users.LoginInput{
		Username:  params.Username,
		Password:  params.Password,
		IP:        ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		ctx.Logger.Debug("Login failed", slog.String("username", params.Username))
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	ctx.Cookie(&fiber.Cookie{
		Name:     SessionCookieName(),
		Value:    result.SessionToken,
		Path:     "/",
		Expires:  result.ExpiresAt,
		Secure:   config.GetConfig().IsProduction(),
		HTTPOnly: true,
		SameSite: "Lax",
	})

	ctx.Logger.Debug("Login successful", slog.Int("user_id", int(result.UserID)))
	return ctx.JSON(fiber.Map{"ok": true, "csrf": result.CSRFToken})
}

// MeAction returns the authenticated admin.
func MeAction(ctx *cartridge.Context) error {
	session := middleware.CurrentSession(ctx.Ctx)
	if session == nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.ErrUnauthorized)
	}
	return ctx.JSON(fiber.Map{"ok": true, "user_id": session.UserID})
}

// LogoutAction deletes the session row and clears the cookie.
func LogoutAction(ctx *cartridge.Context) error {
	if err := users.Logout(ctx.DB(), ctx.Logger, ctx.Cookies(SessionCookieName())); err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	ctx.Cookie(&fiber.Cookie{
		Name:     SessionCookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		Secure:   config.GetConfig().IsProduction(),
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return ctx.JSON(fiber.Map{"ok": true})
}
