package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"siteworker/internal/apierror"
	"siteworker/internal/sites"
)

// SiteLocalKey is where SiteFilter stores the resolved *sites.Site.
const SiteLocalKey = "site"

// SiteFilter resolves ?site= (or X-Site) into a site for admin handlers.
// Without either, the first provisioned site is used.
func SiteFilter(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		slug := c.Query("site", c.Get("X-Site"))
		if slug != "" {
			site, err := sites.FindBySlug(db, slug)
			if err != nil {
				logger.Debug("Unknown site requested", slog.String("site", slug))
				return apierror.Respond(c, logger, err)
			}
			c.Locals(SiteLocalKey, site)
			return c.Next()
		}

		all, err := sites.List(db)
		if err != nil {
			return apierror.Respond(c, logger, err)
		}
		if len(all) == 0 {
			return apierror.Respond(c, logger, sites.ErrUnknownSite)
		}

		c.Locals(SiteLocalKey, &all[0])
		logger.Debug("Set default site", slog.String("site", all[0].Slug))
		return c.Next()
	}
}

// CurrentSite returns the site stored by SiteFilter.
func CurrentSite(c *fiber.Ctx) *sites.Site {
	site, _ := c.Locals(SiteLocalKey).(*sites.Site)
	return site
}
