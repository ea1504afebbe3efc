package http

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"siteworker/internal/apierror"
	"siteworker/internal/comments"
	"siteworker/internal/http/middleware"
)

// CommentsIndexAction pages through a site's comments for moderation.
func CommentsIndexAction(ctx *cartridge.Context) error {
	site := middleware.CurrentSite(ctx.Ctx)

	status := ctx.Query("status")
	if status != "" && !comments.ValidStatus(status) {
		return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.Invalid("unknown status %q", status))
	}

	list, total, err := comments.AdminList(ctx.DB(), comments.ListFilter{
		SiteID:  site.ID,
		Status:  status,
		Page:    ctx.QueryInt("page", 1),
		PerPage: ctx.QueryInt("limit", 0),
	})
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	return ctx.JSON(fiber.Map{
		"comments": list,
		"total":    total,
	})
}

// CommentModerateAction applies approve, hide or delete to one comment.
func CommentModerateAction(ctx *cartridge.Context) error {
	id, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.Invalid("invalid comment id"))
	}

	action, ok := comments.ParseAction(ctx.Params("action"))
	if !ok {
		return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.Invalid("unknown action %q", ctx.Params("action")))
	}

	session := middleware.CurrentSession(ctx.Ctx)
	comment, err := comments.Moderate(ctx.DB(), ctx.Logger, uint(id), action, session.UserID, time.Now().UTC())
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	ctx.Logger.Info("Comment moderated",
		slog.Int("comment_id", int(comment.ID)),
		slog.String("action", string(action)),
		slog.String("status", comment.Status))
	return ctx.JSON(fiber.Map{"ok": true, "id": comment.ID, "status": comment.Status})
}
