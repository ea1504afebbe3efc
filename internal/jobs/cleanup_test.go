package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"siteworker/internal/analytics"
	"siteworker/internal/comments"
	"siteworker/internal/config"
	"siteworker/internal/jobs"
	"siteworker/internal/settings"
	"siteworker/internal/testsupport"
	"siteworker/internal/users"
)

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestRetentionSweep(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	site := testsupport.CreateTestSite(db, "main", "example.com")
	require.NoError(t, settings.Set(db, settings.KeyAnalyticsRetention, "90"))

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-100 * 24 * time.Hour).Unix()
	recent := now.Add(-10 * 24 * time.Hour).Unix()

	oldSession := testsupport.CreateSession(t, db, site.ID, "visitor-old", "US", "Chrome", old)
	recentSession := testsupport.CreateSession(t, db, site.ID, "visitor-new", "US", "Chrome", recent)
	oldEvent := testsupport.CreatePageview(t, db, site.ID, oldSession, "/old", "", old)
	recentEvent := testsupport.CreatePageview(t, db, site.ID, recentSession, "/new", "", recent)
	testsupport.CreateCommentEvent(t, db, site.ID, analytics.CommentEventSubmit, "post-1", old)
	testsupport.CreateCommentEvent(t, db, site.ID, analytics.CommentEventSubmit, "post-1", recent)

	require.NoError(t, db.Create(&users.AdminSession{UserID: 1, TokenHash: "expired", CSRFHash: "x", CreatedAt: old, ExpiresAt: old + 3600}).Error)
	require.NoError(t, db.Create(&users.AdminSession{UserID: 1, TokenHash: "live", CSRFHash: "y", CreatedAt: recent, ExpiresAt: now.Add(time.Hour).Unix()}).Error)
	require.NoError(t, db.Create(&comments.RateLimit{Key: "comment:main:a:1", WindowStart: old, Count: 3, UpdatedAt: old}).Error)
	require.NoError(t, db.Create(&comments.RateLimit{Key: "comment:main:a:2", WindowStart: now.Unix() - 60, Count: 1, UpdatedAt: now.Unix()}).Error)

	job := jobs.NewRetentionSweepJob(dbManager, logger, config.GetConfig())
	result, err := job.Sweep(now)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-90*24*time.Hour).Unix(), result.Cutoff)
	assert.Equal(t, int64(1), result.Deleted["umami_event"])
	assert.Equal(t, int64(1), result.Deleted["comment_event"])
	assert.Equal(t, int64(1), result.Deleted["umami_session"])
	assert.Equal(t, int64(1), result.AdminSessions)
	assert.Equal(t, int64(1), result.RateLimits)

	var events []analytics.Event
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, recentEvent.EventID, events[0].EventID)
	assert.NotEqual(t, oldEvent.EventID, events[0].EventID)

	assert.Equal(t, int64(1), countRows(t, db, &analytics.Session{}))
	assert.Equal(t, int64(1), countRows(t, db, &analytics.CommentEvent{}))

	t.Run("second run is a no-op", func(t *testing.T) {
		again, err := job.Sweep(now)
		require.NoError(t, err)
		assert.Zero(t, again.Deleted["umami_event"])
		assert.Zero(t, again.Deleted["umami_session"])
		assert.Equal(t, int64(1), countRows(t, db, &analytics.Event{}))
	})
}

func TestRetentionSweepKeepsActiveSessions(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	site := testsupport.CreateTestSite(db, "main", "example.com")
	require.NoError(t, settings.Set(db, settings.KeyAnalyticsRetention, "90"))

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-120 * 24 * time.Hour).Unix()
	lastSeen := now.Add(-time.Hour).Unix()

	sessionID := testsupport.CreateSession(t, db, site.ID, "regular", "US", "Chrome", created)
	require.NoError(t, db.Model(&analytics.Session{}).
		Where("session_id = ?", sessionID).
		Update("last_seen_at", lastSeen).Error)
	recent := testsupport.CreatePageview(t, db, site.ID, sessionID, "/", "", lastSeen)

	result, err := jobs.NewRetentionSweepJob(dbManager, logger, config.GetConfig()).Sweep(now)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted["umami_session"])

	var session analytics.Session
	require.NoError(t, db.Where("session_id = ?", sessionID).First(&session).Error)
	assert.Equal(t, recent.SessionID, session.SessionID)
}

func TestRetentionSweepKeepsComments(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CreateTestSite(db, "main", "example.com")

	_, err := comments.Submit(db, logger, &comments.SubmitInput{
		Payload: comments.SubmitPayload{
			Site:    "main",
			PageKey: "post-1",
			URL:     "https://example.com/post-1",
			Author:  comments.Author{Name: "Ada"},
			Content: "old but kept",
		},
		Meta:      analytics.RequestMeta{IP: "203.0.113.10", UserAgent: testsupport.BrowserUA},
		Timestamp: time.Now().Add(-400 * 24 * time.Hour),
	})
	require.NoError(t, err)

	_, err = jobs.NewRetentionSweepJob(dbManager, logger, config.GetConfig()).Sweep(time.Now())
	require.NoError(t, err)

	assert.Equal(t, int64(1), countRows(t, db, &comments.Comment{}))
	assert.Equal(t, int64(1), countRows(t, db, &comments.Thread{}))
	assert.Zero(t, countRows(t, db, &analytics.CommentEvent{}))
}

func TestRetentionDays(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	assert.Equal(t, 30, jobs.RetentionDays(db, &config.Config{RetentionDays: 30}))
	assert.Equal(t, jobs.DefaultRetentionDays, jobs.RetentionDays(db, &config.Config{}))

	require.NoError(t, settings.Set(db, settings.KeyAnalyticsRetention, "7"))
	assert.Equal(t, 7, jobs.RetentionDays(db, &config.Config{RetentionDays: 30}))

	require.NoError(t, settings.Set(db, settings.KeyAnalyticsRetention, `"nonsense"`))
	assert.Equal(t, 30, jobs.RetentionDays(db, &config.Config{RetentionDays: 30}))
}

func TestGeoLiteUpdaterSkipsWithoutCredentials(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	require.NoError(t, settings.SetupDefaultSettings(db, settings.Defaults{RateLimit: 5, RetentionDays: 90}))

	job := jobs.NewGeoLiteUpdaterJob(dbManager, logger, config.GetConfig())
	require.NoError(t, job.Run())

	accountID, licenseKey := jobs.Credentials(db)
	assert.Empty(t, accountID)
	assert.Empty(t, licenseKey)

	_, err := settings.GetSetting(db, jobs.KeyGeoLiteLastUpdate)
	assert.Error(t, err, "no download attempted, so no timestamp recorded")
}
