package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"siteworker/internal/apierror"
	"siteworker/internal/settings"
)

type settingRow struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	IsSecret  bool            `json:"isSecret"`
	UpdatedAt int64           `json:"updatedAt"`
}

type settingParams struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// SettingsIndexAction lists every setting with its secret flag.
func SettingsIndexAction(ctx *cartridge.Context) error {
	all, err := settings.All(ctx.DB())
	if err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	rows := make([]settingRow, 0, len(all))
	for _, s := range all {
		rows = append(rows, settingRow{
			Key:       s.Key,
			Value:     json.RawMessage(s.ValueJSON),
			IsSecret:  s.IsSecret,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return ctx.JSON(fiber.Map{"settings": rows})
}

// SettingsUpdateAction upserts one setting. The value may be any JSON value.
func SettingsUpdateAction(ctx *cartridge.Context) error {
	var params settingParams
	if err := apierror.Decode(ctx.Ctx, &params); err != nil {
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	key := strings.TrimSpace(params.Key)
	if key == "" {
		return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.Invalid("key is required"))
	}
	if len(params.Value) == 0 {
		return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.Invalid("value is required"))
	}

	if err := settings.Set(ctx.DB(), key, string(params.Value)); err != nil {
		if errors.Is(err, settings.ErrInvalidValue) {
			return apierror.Respond(ctx.Ctx, ctx.Logger, apierror.Invalid("value must be valid JSON"))
		}
		return apierror.Respond(ctx.Ctx, ctx.Logger, err)
	}

	ctx.Logger.Info("Setting updated", slog.String("key", key))
	return ctx.JSON(fiber.Map{"ok": true})
}
