package v1

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"siteworker/internal/apierror"
	"siteworker/internal/comments"
)

// GetThreadHandler returns a page's thread and its approved comments.
func GetThreadHandler(ctx *cartridge.Context) error {
	site, err := siteFromQuery(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	pageKey := strings.TrimSpace(ctx.Query("pageKey"))
	if pageKey == "" {
		return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.Invalid("pageKey is required"))
	}

	view, err := comments.GetThread(ctx.DBManager.GetConnection(), ctx.Logger, site.ID, pageKey)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}
	return ctx.JSON(view)
}

// SubmitCommentHandler accepts a new comment or reply.
func SubmitCommentHandler(ctx *cartridge.Context) error {
	var payload comments.SubmitPayload
	if err := apierror.Decode(ctx.Ctx, &payload); err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	result, err := comments.Submit(ctx.DBManager.GetConnection(), ctx.Logger, &comments.SubmitInput{
		Payload:   payload,
		Meta:      requestMeta(ctx.Ctx),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		ctx.Logger.Debug("Comment rejected",
			slog.String("site", payload.Site),
			slog.String("page_key", payload.PageKey),
			slog.Any("error", err))
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	return ctx.JSON(result)
}

// GetCountsHandler returns approved counts for a comma separated list of page keys.
func GetCountsHandler(ctx *cartridge.Context) error {
	site, err := siteFromQuery(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	counts, err := comments.CountsByPageKeys(ctx.DBManager.GetConnection(), site.ID, comments.ParsePageKeys(ctx.Query("pageKeys")))
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}
	return ctx.JSON(fiber.Map{"counts": counts})
}

// GetLatestHandler returns the most recent approved comments across a site.
func GetLatestHandler(ctx *cartridge.Context) error {
	site, err := siteFromQuery(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.Invalid("limit must be an integer"))
		}
	}

	latest, err := comments.Latest(ctx.DBManager.GetConnection(), site.ID, limit)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}
	return ctx.JSON(fiber.Map{"comments": latest})
}

// GetTotalHandler returns the number of approved comments on a site.
func GetTotalHandler(ctx *cartridge.Context) error {
	site, err := siteFromQuery(ctx)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	total, err := comments.TotalApproved(ctx.DBManager.GetConnection(), site.ID)
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}
	return ctx.JSON(fiber.Map{"total": total})
}
