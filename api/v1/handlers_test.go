package v1_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"siteworker/internal/analytics"
	"siteworker/internal/comments"
	"siteworker/internal/settings"
	"siteworker/internal/testsupport"
)

func setupPublicApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	testsupport.CreateTestSite(db, "main", "example.com", "www.example.com")
	return testsupport.CreateMinimalTestApp(t, db), db
}

func countEvents(db *gorm.DB) int64 {
	var n int64
	db.Model(&analytics.Event{}).Count(&n)
	return n
}

func TestCollectPageview(t *testing.T) {
	app, db := setupPublicApp(t)

	t.Run("records a pageview from an allowed origin", func(t *testing.T) {
		req := testsupport.JSONRequest(http.MethodPost, "/v1/analytics/collect", map[string]any{
			"site":     "main",
			"path":     "/hello",
			"referrer": "https://www.google.com/search?q=x",
			"url":      "https://example.com/hello",
		})
		req.Header.Set("Origin", "https://www.example.com")
		req.Header.Set("X-Forwarded-For", "203.0.113.7")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body map[string]any
		testsupport.DecodeBody(t, resp, &body)
		assert.Equal(t, true, body["ok"])

		var event analytics.Event
		require.NoError(t, db.Where("url_path = ?", "/hello").First(&event).Error)
		assert.Equal(t, analytics.EventTypePageview, event.EventType)
		assert.Equal(t, "google.com", event.ReferrerDomain)
		assert.NotEmpty(t, event.SessionID)
	})

	t.Run("do not track short-circuits without a write", func(t *testing.T) {
		before := countEvents(db)

		req := testsupport.JSONRequest(http.MethodPost, "/v1/analytics/collect", map[string]any{
			"site": "main",
			"path": "/private",
		})
		req.Header.Set("DNT", "1")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, before, countEvents(db))
	})

	tests := []struct {
		name   string
		body   any
		origin string
		status int
	}{
		{"malformed json", "{not json", "", fiber.StatusBadRequest},
		{"missing path", map[string]any{"site": "main"}, "", fiber.StatusBadRequest},
		{"unknown site", map[string]any{"site": "ghost", "path": "/"}, "", fiber.StatusNotFound},
		{"foreign origin", map[string]any{"site": "main", "path": "/"}, "https://evil.com", fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := countEvents(db)

			req := testsupport.JSONRequest(http.MethodPost, "/v1/analytics/collect", tt.body)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]string
			testsupport.DecodeBody(t, resp, &body)
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, before, countEvents(db))
		})
	}
}

func TestCollectCustomEvent(t *testing.T) {
	app, db := setupPublicApp(t)

	t.Run("name is required", func(t *testing.T) {
		req := testsupport.JSONRequest(http.MethodPost, "/v1/analytics/event", map[string]any{
			"site": "main",
			"path": "/pricing",
		})
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("stores name and data", func(t *testing.T) {
		req := testsupport.JSONRequest(http.MethodPost, "/v1/analytics/event", map[string]any{
			"site": "main",
			"path": "/pricing",
			"name": "signup",
			"data": map[string]any{"plan": "pro"},
		})
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var event analytics.Event
		require.NoError(t, db.Where("event_name = ?", "signup").First(&event).Error)
		assert.Equal(t, analytics.EventTypeCustom, event.EventType)
	})
}

func TestPublicOverview(t *testing.T) {
	app, db := setupPublicApp(t)
	site := testsupport.CreateTestSite(db, "main", "example.com")

	session := testsupport.CreateSession(t, db, site.ID, "visitor-1", "US", "Chrome", 1_000)
	testsupport.CreatePageview(t, db, site.ID, session, "/", "", 1_000)
	testsupport.CreatePageview(t, db, site.ID, session, "/about", "", 1_030)

	resp, err := app.Test(testsupport.JSONRequest(http.MethodGet, "/v1/analytics/overview?site=main&start=0&end=2000", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var overview analytics.Overview
	testsupport.DecodeBody(t, resp, &overview)
	assert.Equal(t, int64(2), overview.Pageviews)
	assert.Equal(t, int64(1), overview.Visitors)

	resp, err = app.Test(testsupport.JSONRequest(http.MethodGet, "/v1/analytics/overview", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPublicComments(t *testing.T) {
	app, db := setupPublicApp(t)
	require.NoError(t, settings.Set(db, settings.KeyAutoApprove, "true"))

	submit := func(t *testing.T, ip string, body map[string]any) *http.Response {
		t.Helper()
		req := testsupport.JSONRequest(http.MethodPost, "/v1/comments/submit", body)
		req.Header.Set("Origin", "https://example.com")
		req.Header.Set("X-Forwarded-For", ip)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	comment := func(pageKey, content string) map[string]any {
		return map[string]any{
			"site":    "main",
			"pageKey": pageKey,
			"url":     "https://example.com/" + pageKey,
			"title":   "A post",
			"author":  map[string]any{"name": "Ada"},
			"content": content,
		}
	}

	var first comments.SubmitResult
	t.Run("submit", func(t *testing.T) {
		resp := submit(t, "203.0.113.20", comment("post-1", "Nice *post*"))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		testsupport.DecodeBody(t, resp, &first)
		assert.NotZero(t, first.ID)
		assert.Equal(t, comments.StatusApproved, first.Status)

		resp = submit(t, "203.0.113.21", comment("post-2", "Another"))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("submit validation", func(t *testing.T) {
		bad := comment("post-1", "")
		resp := submit(t, "203.0.113.22", bad)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("thread", func(t *testing.T) {
		resp, err := app.Test(testsupport.JSONRequest(http.MethodGet, "/v1/comments/thread?site=main&pageKey=post-1", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var view comments.ThreadView
		testsupport.DecodeBody(t, resp, &view)
		require.NotNil(t, view.Thread)
		require.Len(t, view.Comments, 1)
		assert.Equal(t, first.ID, view.Comments[0].ID)
		assert.Contains(t, view.Comments[0].ContentHTML, "<em>post</em>")
	})

	t.Run("thread requires pageKey", func(t *testing.T) {
		resp, err := app.Test(testsupport.JSONRequest(http.MethodGet, "/v1/comments/thread?site=main", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("counts", func(t *testing.T) {
		resp, err := app.Test(testsupport.JSONRequest(http.MethodGet, "/v1/comments/counts?site=main&pageKeys=post-1,post-2,post-3", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body struct {
			Counts map[string]int64 `json:"counts"`
		}
		testsupport.DecodeBody(t, resp, &body)
		assert.Equal(t, map[string]int64{"post-1": 1, "post-2": 1, "post-3": 0}, body.Counts)
	})

	t.Run("latest", func(t *testing.T) {
		resp, err := app.Test(testsupport.JSONRequest(http.MethodGet, "/v1/comments/latest?site=main&limit=1", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body struct {
			Comments []comments.LatestComment `json:"comments"`
		}
		testsupport.DecodeBody(t, resp, &body)
		require.Len(t, body.Comments, 1)
		assert.Equal(t, "post-2", body.Comments[0].PageKey)

		resp, err = app.Test(testsupport.JSONRequest(http.MethodGet, "/v1/comments/latest?site=main&limit=abc", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("total", func(t *testing.T) {
		resp, err := app.Test(testsupport.JSONRequest(http.MethodGet, "/v1/comments/total?site=main", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body struct {
			Total int64 `json:"total"`
		}
		testsupport.DecodeBody(t, resp, &body)
		assert.Equal(t, int64(2), body.Total)
	})

	t.Run("foreign origin is rejected on reads", func(t *testing.T) {
		req := testsupport.JSONRequest(http.MethodGet, "/v1/comments/total?site=main", nil)
		req.Header.Set("Origin", "https://evil.com")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("unknown site", func(t *testing.T) {
		resp, err := app.Test(testsupport.JSONRequest(http.MethodGet, "/v1/comments/total?site=ghost", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestSubmitCommentRateLimitOverHTTP(t *testing.T) {
	app, db := setupPublicApp(t)
	require.NoError(t, settings.Set(db, settings.KeyCommentRateLimit, "2"))

	status := func(i int) int {
		req := testsupport.JSONRequest(http.MethodPost, "/v1/comments/submit", map[string]any{
			"site":    "main",
			"pageKey": "post-1",
			"url":     "https://example.com/post-1",
			"author":  map[string]any{"name": "Spammer"},
			"content": fmt.Sprintf("comment %d", i),
		})
		req.Header.Set("X-Forwarded-For", "198.51.100.50")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, status(1))
	assert.Equal(t, fiber.StatusOK, status(2))
	assert.Equal(t, fiber.StatusTooManyRequests, status(3))
}

func TestPublicCORSPreflight(t *testing.T) {
	app, _ := setupPublicApp(t)

	preflight := func(origin string) *http.Response {
		req := testsupport.JSONRequest(http.MethodOptions, "/v1/comments/submit", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("allowed origin is reflected", func(t *testing.T) {
		resp := preflight("https://www.example.com")
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "https://www.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("unknown origin gets no allow header", func(t *testing.T) {
		resp := preflight("https://evil.com")
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}
