package internal

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"
	"gorm.io/gorm"

	v1 "siteworker/api/v1"
	"siteworker/internal/config"
	"siteworker/internal/http"
	"siteworker/internal/http/middleware"
	"siteworker/internal/sites"
)

const (
	corsMethods      = "GET,POST,OPTIONS"
	publicCORSHeader = "Origin, Content-Type, Accept, Referrer, User-Agent, DNT"
	adminCORSHeader  = "Origin, Content-Type, Accept, Authorization, " + middleware.CSRFHeader
)

// originValidator accepts origins whose host belongs to any provisioned site
// or to the global allow-list.
func originValidator(db *gorm.DB, logger *slog.Logger, cfg *config.Config) func(string) bool {
	return func(origin string) bool {
		ok, err := sites.AnyHostAllowed(db, sites.OriginHost(origin), cfg.AllowedHosts())
		if err != nil {
			logger.Error("Failed to validate CORS origin", slog.Any("error", err))
			return false
		}
		return ok
	}
}

// publicCORSConfig reflects validated origins. Development answers "*" for
// the non-credentialed public surface.
func publicCORSConfig(db *gorm.DB, logger *slog.Logger, cfg *config.Config) *cors.Config {
	if cfg.IsDevelopment() {
		return &cors.Config{
			AllowOrigins: "*",
			AllowMethods: corsMethods,
			AllowHeaders: publicCORSHeader,
		}
	}
	return &cors.Config{
		AllowOriginsFunc: originValidator(db, logger, cfg),
		AllowMethods:     corsMethods,
		AllowHeaders:     publicCORSHeader,
	}
}

// adminCORSConfig always reflects a validated origin since credentials are allowed.
func adminCORSConfig(db *gorm.DB, logger *slog.Logger, cfg *config.Config) *cors.Config {
	return &cors.Config{
		AllowOriginsFunc: originValidator(db, logger, cfg),
		AllowMethods:     corsMethods,
		AllowHeaders:     adminCORSHeader,
		AllowCredentials: true,
	}
}

func noContent(ctx *cartridge.Context) error {
	return ctx.SendStatus(fiber.StatusNoContent)
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	// Rate limiting would interfere with tests and local development.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70/min per IP covers real page traffic while capping scripted floods.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Login and setup get 10/min against brute force.
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	publicCORS := publicCORSConfig(db, logger, cfg)
	adminCORS := adminCORSConfig(db, logger, cfg)

	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         publicCORS,
		CustomMiddleware:   []fiber.Handler{publicRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	authConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         adminCORS,
		CustomMiddleware:   []fiber.Handler{authRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	adminAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         adminCORS,
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			middleware.AdminAuth(db, logger, http.SessionCookieName()),
		},
	}

	adminSiteConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         adminCORS,
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			middleware.AdminAuth(db, logger, http.SessionCookieName()),
			middleware.SiteFilter(db, logger),
		},
	}

	// Preflights are answered by the CORS middleware; these only catch
	// OPTIONS requests without Access-Control-Request-Method.
	preflight := func(path string, routeConfig *cartridge.RouteConfig) {
		srv.Options(path, noContent, routeConfig)
	}

	// === HEALTH ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC ANALYTICS ===
	srv.Post("/v1/analytics/collect", v1.CollectPageviewHandler, publicAPIConfig)
	preflight("/v1/analytics/collect", publicAPIConfig)
	srv.Post("/v1/analytics/event", v1.CollectEventHandler, publicAPIConfig)
	preflight("/v1/analytics/event", publicAPIConfig)
	srv.Get("/v1/analytics/overview", v1.PublicOverviewHandler, publicAPIConfig)
	preflight("/v1/analytics/overview", publicAPIConfig)

	// === PUBLIC COMMENTS ===
	srv.Get("/v1/comments/thread", v1.GetThreadHandler, publicAPIConfig)
	preflight("/v1/comments/thread", publicAPIConfig)
	srv.Post("/v1/comments/submit", v1.SubmitCommentHandler, publicAPIConfig)
	preflight("/v1/comments/submit", publicAPIConfig)
	srv.Get("/v1/comments/counts", v1.GetCountsHandler, publicAPIConfig)
	preflight("/v1/comments/counts", publicAPIConfig)
	srv.Get("/v1/comments/latest", v1.GetLatestHandler, publicAPIConfig)
	preflight("/v1/comments/latest", publicAPIConfig)
	srv.Get("/v1/comments/total", v1.GetTotalHandler, publicAPIConfig)
	preflight("/v1/comments/total", publicAPIConfig)

	// === ADMIN AUTH ===
	srv.Post("/v1/admin/auth/setup", http.SetupAction, authConfig)
	preflight("/v1/admin/auth/setup", authConfig)
	srv.Get("/v1/admin/auth/setup-status", http.SetupStatusAction, authConfig)
	preflight("/v1/admin/auth/setup-status", authConfig)
	srv.Post("/v1/admin/auth/login", http.LoginAction, authConfig)
	preflight("/v1/admin/auth/login", authConfig)
	srv.Post("/v1/admin/auth/logout", http.LogoutAction, authConfig)
	preflight("/v1/admin/auth/logout", authConfig)
	srv.Get("/v1/admin/auth/me", http.MeAction, adminAPIConfig)
	preflight("/v1/admin/auth/me", authConfig)

	// === ADMIN SETTINGS ===
	srv.Get("/v1/admin/settings", http.SettingsIndexAction, adminAPIConfig)
	srv.Post("/v1/admin/settings", http.SettingsUpdateAction, adminAPIConfig)
	preflight("/v1/admin/settings", authConfig)

	// === ADMIN ANALYTICS ===
	// Fixed paths are registered before the :dimension catch-all.
	srv.Get("/v1/admin/analytics/umami/overview", http.PageviewOverviewAction, adminSiteConfig)
	srv.Get("/v1/admin/analytics/umami/timeseries", http.PageviewTimeseriesAction, adminSiteConfig)
	srv.Get("/v1/admin/analytics/umami/retention", http.PageviewRetentionAction, adminSiteConfig)
	srv.Get("/v1/admin/analytics/umami/summary", http.PageviewSummaryAction, adminSiteConfig)
	srv.Get("/v1/admin/analytics/umami/:dimension", http.PageviewBreakdownAction, adminSiteConfig)
	preflight("/v1/admin/analytics/umami/:metric", authConfig)

	srv.Get("/v1/admin/comments/analytics/overview", http.CommentOverviewAction, adminSiteConfig)
	srv.Get("/v1/admin/comments/analytics/timeseries", http.CommentTimeseriesAction, adminSiteConfig)
	srv.Get("/v1/admin/comments/analytics/retention", http.CommentRetentionAction, adminSiteConfig)
	srv.Get("/v1/admin/comments/analytics/:dimension", http.CommentBreakdownAction, adminSiteConfig)
	preflight("/v1/admin/comments/analytics/:metric", authConfig)

	// === ADMIN COMMENTS ===
	srv.Get("/v1/admin/comments", http.CommentsIndexAction, adminSiteConfig)
	preflight("/v1/admin/comments", authConfig)
	srv.Post("/v1/admin/comments/:id/:action", http.CommentModerateAction, adminAPIConfig)
	preflight("/v1/admin/comments/:id/:action", authConfig)
}
