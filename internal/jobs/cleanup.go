package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"siteworker/internal/config"
	"siteworker/internal/settings"
	"siteworker/internal/users"
)

const (
	// DefaultRetentionDays applies when neither the setting nor config is usable.
	DefaultRetentionDays = 90

	sweepBatchSize   = 1000
	rateLimitMaxAge  = 24 * time.Hour
	batchPauseLength = 50 * time.Millisecond
)

// sweptTables maps each pruned analytics table to its age column. Sessions
// age from their last activity so a long-lived session outlives its first
// event. Comments and their moderation log are never swept.
var sweptTables = []struct {
	table  string
	column string
}{
	{"umami_event", "created_at"},
	{"comment_event", "created_at"},
	{"umami_session", "last_seen_at"},
}

// SweepResult reports how many rows each pass removed.
type SweepResult struct {
	Cutoff        int64
	Deleted       map[string]int64
	AdminSessions int64
	RateLimits    int64
}

// RetentionSweepJob deletes analytics rows older than the retention window.
type RetentionSweepJob struct {
	conn   ConnectionProvider
	logger *slog.Logger
	cfg    *config.Config
}

func NewRetentionSweepJob(conn ConnectionProvider, logger *slog.Logger, cfg *config.Config) *RetentionSweepJob {
	return &RetentionSweepJob{
		conn:   conn,
		logger: logger,
		cfg:    cfg,
	}
}

// RetentionDays resolves the window: analytics.retention_days, then config,
// then 90.
func RetentionDays(db *gorm.DB, cfg *config.Config) int {
	fallback := DefaultRetentionDays
	if cfg != nil && cfg.RetentionDays > 0 {
		fallback = cfg.RetentionDays
	}
	return settings.Int(db, settings.KeyAnalyticsRetention, fallback)
}

// Run sweeps relative to the current time.
func (j *RetentionSweepJob) Run() error {
	_, err := j.Sweep(time.Now().UTC())
	return err
}

// Sweep removes rows older than now minus the retention window, plus
// expired admin sessions and stale rate-limit buckets. Running it twice is
// harmless.
func (j *RetentionSweepJob) Sweep(now time.Time) (*SweepResult, error) {
	db := j.conn.GetConnection()
	retentionDays := RetentionDays(db, j.cfg)
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour).Unix()

	j.logger.Info("Starting retention sweep",
		slog.Int("retention_days", retentionDays),
		slog.Int64("cutoff", cutoff))

	result := &SweepResult{Cutoff: cutoff, Deleted: make(map[string]int64, len(sweptTables))}
	for _, t := range sweptTables {
		deleted, err := j.deleteOlderThan(db, t.table, t.column, cutoff)
		if err != nil {
			return result, err
		}
		result.Deleted[t.table] = deleted
	}

	purged, err := users.PurgeExpiredSessions(db, now)
	if err != nil {
		j.logger.Error("Failed to purge admin sessions", slog.Any("error", err))
		return result, err
	}
	result.AdminSessions = purged

	err = sqlite.PerformWrite(j.logger, db, func(tx *gorm.DB) error {
		res := tx.Exec("DELETE FROM rate_limits WHERE window_start < ?", now.Add(-rateLimitMaxAge).Unix())
		result.RateLimits = res.RowsAffected
		return res.Error
	})
	if err != nil {
		j.logger.Error("Failed to purge rate limit buckets", slog.Any("error", err))
		return result, fmt.Errorf("failed to purge rate limits: %w", err)
	}

	j.logger.Info("Retention sweep finished",
		slog.Any("deleted", result.Deleted),
		slog.Int64("admin_sessions", result.AdminSessions),
		slog.Int64("rate_limits", result.RateLimits))
	return result, nil
}

// deleteOlderThan removes rows in rowid batches so the write lock is
// released between batches.
func (j *RetentionSweepJob) deleteOlderThan(db *gorm.DB, table, column string, cutoff int64) (int64, error) {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s WHERE %s < ? LIMIT ?)",
		table, table, column)

	var total int64
	for {
		var affected int64
		err := sqlite.PerformWrite(j.logger, db, func(tx *gorm.DB) error {
			res := tx.Exec(query, cutoff, sweepBatchSize)
			affected = res.RowsAffected
			return res.Error
		})
		if err != nil {
			j.logger.Error("Failed to sweep table",
				slog.String("table", table),
				slog.Int64("deleted_so_far", total),
				slog.Any("error", err))
			return total, fmt.Errorf("failed to sweep %s: %w", table, err)
		}

		total += affected
		if affected < sweepBatchSize {
			return total, nil
		}
		time.Sleep(batchPauseLength)
	}
}
