package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"siteworker/internal/config"
)

// HealthStatus is the /_health response.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	DBStatus  string `json:"db_status"`
	DBType    string `json:"db_type"`
}

// HealthIndexAction pings the database. A failed ping reports "degraded"
// with a 503 so load balancers drain the instance.
func HealthIndexAction(ctx *cartridge.Context) error {
	dbStatus := "ok"

	db := ctx.DBManager.GetConnection()
	if db == nil {
		dbStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else if sqlDB, err := db.DB(); err != nil {
		dbStatus = "error"
		ctx.Logger.Error("Database connection error", slog.Any("error", err))
	} else if err := sqlDB.PingContext(ctx.UserContext()); err != nil {
		dbStatus = "error"
		ctx.Logger.Error("Database ping failed", slog.Any("error", err))
	}

	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC().Unix(),
		DBStatus:  dbStatus,
		DBType:    config.GetConfig().DatabaseType,
	}

	if dbStatus != "ok" {
		health.Status = "degraded"
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(health)
	}
	return ctx.JSON(health)
}
