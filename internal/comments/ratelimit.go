package comments

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"siteworker/internal/apierror"
)

const (
	// RateLimitWindow is the fixed window length in seconds.
	RateLimitWindow int64 = 600
	// DefaultRateLimit applies when neither the setting nor config set one.
	DefaultRateLimit = 5
)

// ErrRateLimited is returned when the caller's window is saturated.
var ErrRateLimited = apierror.New(fiber.StatusTooManyRequests, "rate limit exceeded")

// WindowStart floors now to the start of its fixed window.
func WindowStart(now int64) int64 {
	return now - now%RateLimitWindow
}

// RateLimitKey builds the bucket key for a site, hashed IP and window.
func RateLimitKey(site, hashedIP string, windowStart int64) string {
	return fmt.Sprintf("comment:%s:%s:%d", site, hashedIP, windowStart)
}

// ConsumeRateLimit reads the bucket and, when it is below limit, counts one
// more submission. The read and the write are separate statements, so
// concurrent callers can overshoot the limit slightly.
func ConsumeRateLimit(db *gorm.DB, logger *slog.Logger, key string, windowStart int64, limit int, now int64) error {
	if limit <= 0 {
		limit = DefaultRateLimit
	}

	var buckets []RateLimit
	if err := db.Where("key = ?", key).Limit(1).Find(&buckets).Error; err != nil {
		return fmt.Errorf("error reading rate limit bucket: %w", err)
	}
	if len(buckets) == 1 && buckets[0].Count >= limit {
		return ErrRateLimited
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO rate_limits (key, window_start, count, updated_at)
            VALUES (?, ?, 1, ?)
            ON CONFLICT(key) DO UPDATE SET count = rate_limits.count + 1, updated_at = excluded.updated_at
        `, key, windowStart, now).Error
	})
}
