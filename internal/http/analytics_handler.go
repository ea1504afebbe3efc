package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"siteworker/internal/analytics"
	"siteworker/internal/apierror"
	"siteworker/internal/http/middleware"
)

func queryParams(ctx *cartridge.Context) (analytics.QueryParams, error) {
	site := middleware.CurrentSite(ctx.Ctx)
	return analytics.ParseQueryParams(site.ID, ctx.Query("start"), ctx.Query("end"), ctx.Query("limit"), time.Now())
}

// breakdownAction serves one top-N dimension for the given source.
func breakdownAction(source analytics.Source) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		dim, ok := analytics.ParseDimension(ctx.Params("dimension"))
		if !ok {
			return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.ErrNotFound)
		}

		params, err := queryParams(ctx)
		if err != nil {
			return apierror.Respond(ctx.Ctx, ctx.Logger, err)
		}

		rows, err := analytics.Breakdown(ctx.DB(), source, dim, params)
		if err != nil {
			return apierror.Respond(ctx.Ctx, ctx.Logger, err)
		}
		return ctx.JSON(fiber.Map{"dimension": dim, "data": rows})
	}
}

// retentionAction serves daily distinct visitors (or commenters).
func retentionAction(source analytics.Source) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		params, err := queryParams(ctx)
		if err != nil {
			return apierror.Respond(ctx.Ctx, ctx.Logger, err)
		}

		points, err := analytics.GetRetention(ctx.DB(), source, params)
		if err != nil {
			return apierror.Respond(ctx.Ctx, ctx.Logger, err)
		}
		return ctx.JSON(fiber.Map{"data": points})
	}
}

// PageviewBreakdownAction handles /v1/admin/analytics/umami/:dimension.
var PageviewBreakdownAction = breakdownAction(analytics.SourcePageviews)

// CommentBreakdownAction handles /v1/admin/comments/analytics/:dimension.
var CommentBreakdownAction = breakdownAction(analytics.SourceComments)

// PageviewRetentionAction handles /v1/admin/analytics/umami/retention.
var PageviewRetentionAction = retentionAction(analytics.SourcePageviews)

// CommentRetentionAction handles /v1/admin/comments/analytics/retention.
var CommentRetentionAction = retentionAction(analytics.SourceComments)

// PageviewOverviewAction returns pageview headline counters.
func PageviewOverviewAction(ctx *cartridge.Context) error {
	params, err := queryParams(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	overview, err := analytics.GetOverview(ctx.DB(), params)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}
	return ctx.JSON(overview)
}

// PageviewTimeseriesAction returns daily pageview counters.
func PageviewTimeseriesAction(ctx *cartridge.Context) error {
	params, err := queryParams(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	points, err := analytics.GetTimeseries(ctx.DB(), params)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}
	return ctx.JSON(fiber.Map{"data": points})
}

// PageviewSummaryAction returns the dashboard panels in one response.
func PageviewSummaryAction(ctx *cartridge.Context) error {
	params, err := queryParams(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	summary, err := analytics.GetSummary(ctx.UserContext(), ctx.DB(), params)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}
	return ctx.JSON(summary)
}

// CommentOverviewAction returns moderation outcome counters.
func CommentOverviewAction(ctx *cartridge.Context) error {
	params, err := queryParams(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	overview, err := analytics.GetCommentOverview(ctx.DB(), params)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}
	return ctx.JSON(overview)
}

// CommentTimeseriesAction returns daily moderation outcome counters.
func CommentTimeseriesAction(ctx *cartridge.Context) error {
	params, err := queryParams(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	points, err := analytics.GetCommentTimeseries(ctx.DB(), params)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}
	return ctx.JSON(fiber.Map{"data": points})
}
