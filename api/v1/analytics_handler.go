package v1

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"siteworker/internal/analytics"
	"siteworker/internal/apierror"
	"siteworker/internal/config"
	"siteworker/internal/sites"
)

// CollectPageviewHandler records a pageview from the tracking snippet.
func CollectPageviewHandler(ctx *cartridge.Context) error {
	return collect(ctx, analytics.EventTypePageview)
}

// CollectEventHandler records a named custom event.
func CollectEventHandler(ctx *cartridge.Context) error {
	return collect(ctx, analytics.EventTypeCustom)
}

func collect(ctx *cartridge.Context, eventType analytics.EventType) error {
	if doNotTrack(ctx.Ctx) {
		return ctx.JSON(fiber.Map{"ok": true})
	}

	var payload analytics.Payload
	if err := apierror.Decode(ctx.Ctx, &payload); err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	input := &analytics.CollectEventInput{
		Payload:   payload,
		Meta:      requestMeta(ctx.Ctx),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}

	db := ctx.DBManager.GetConnection()
	if _, err := analytics.CollectEvent(db, ctx.Logger, input); err != nil {
		ctx.Logger.Debug("Event rejected",
			slog.String("site", payload.Site),
			slog.Any("error", err))
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	return ctx.JSON(fiber.Map{"ok": true})
}

// PublicOverviewHandler serves the unauthenticated headline numbers for a site.
func PublicOverviewHandler(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	site, err := siteFromQuery(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	params, err := analytics.ParseQueryParams(site.ID, ctx.Query("start"), ctx.Query("end"), ctx.Query("limit"), time.Now())
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	overview, err := analytics.GetOverview(db, params)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	return ctx.JSON(overview)
}

// siteFromQuery resolves ?site= and checks the request origin against it.
func siteFromQuery(ctx *cartridge.Context) (*sites.Site, error) {
	slug := ctx.Query("site")
	if slug == "" {
		return nil, apierror.Invalid("site is required")
	}

	site, err := sites.FindBySlug(ctx.DBManager.GetConnection(), slug)
	if err != nil {
		return nil, err
	}

	if err := site.CheckOrigin(ctx.Get(fiber.HeaderOrigin), config.GetConfig().AllowedHosts()); err != nil {
		return nil, err
	}
	return site, nil
}
