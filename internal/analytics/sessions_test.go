package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"siteworker/internal/analytics"
	"siteworker/internal/testsupport"
)

func TestResolveSession(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	site := testsupport.CreateTestSite(db, "main", "example.com")

	resolve := func(distinctID string, attr analytics.Attribution, now int64) string {
		var id string
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			id, err = analytics.ResolveSession(tx, analytics.SessionInput{
				SiteID:      site.ID,
				DistinctID:  distinctID,
				Attribution: attr,
			}, now, analytics.DefaultSessionIdleTimeout)
			return err
		})
		require.NoError(t, err)
		return id
	}

	base := time.Now().UTC().Unix()

	t.Run("reuses session within idle window", func(t *testing.T) {
		first := resolve("device-a", analytics.Attribution{Browser: "Chrome"}, base)
		second := resolve("device-a", analytics.Attribution{}, base+1800)
		assert.Equal(t, first, second)
	})

	t.Run("window slides with activity", func(t *testing.T) {
		first := resolve("device-b", analytics.Attribution{}, base)
		resolve("device-b", analytics.Attribution{}, base+1700)
		third := resolve("device-b", analytics.Attribution{}, base+3400)
		assert.Equal(t, first, third)
	})

	t.Run("gap beyond idle window starts a new session", func(t *testing.T) {
		first := resolve("device-c", analytics.Attribution{}, base)
		second := resolve("device-c", analytics.Attribution{}, base+1801)
		assert.NotEqual(t, first, second)

		var count int64
		db.Model(&analytics.Session{}).Where("distinct_id = ?", "device-c").Count(&count)
		assert.Equal(t, int64(2), count)
	})

	t.Run("different devices never share", func(t *testing.T) {
		a := resolve("device-d", analytics.Attribution{}, base)
		b := resolve("device-e", analytics.Attribution{}, base)
		assert.NotEqual(t, a, b)
	})

	t.Run("late hints enrich without erasing", func(t *testing.T) {
		id := resolve("device-f", analytics.Attribution{Browser: "Firefox", Country: "US"}, base)
		resolve("device-f", analytics.Attribution{Screen: "1920x1080"}, base+60)

		var session analytics.Session
		require.NoError(t, db.Where("session_id = ?", id).First(&session).Error)
		assert.Equal(t, "Firefox", session.Browser)
		assert.Equal(t, "US", session.Country)
		assert.Equal(t, "1920x1080", session.Screen)
		assert.Equal(t, base+60, session.LastSeenAt)
		assert.Equal(t, base, session.CreatedAt)
	})
}

func TestVisitID(t *testing.T) {
	assert.Equal(t, "abc:0", analytics.VisitID("abc", 3599))
	assert.Equal(t, "abc:1", analytics.VisitID("abc", 3600))
	assert.Equal(t, analytics.VisitID("s", 7200), analytics.VisitID("s", 10799))
}
