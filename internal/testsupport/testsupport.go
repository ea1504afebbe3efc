package testsupport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"siteworker/internal"
	"siteworker/internal/analytics"
	"siteworker/internal/config"
	"siteworker/internal/models"
	"siteworker/internal/sites"
	"siteworker/internal/users"
)

// SessionCookieName is the admin session cookie in tests.
// This should match routes.go: cfg.AppName + "_session"
const SessionCookieName = "siteworker_session"

// BrowserUA is a desktop Chrome user agent used across HTTP tests.
const BrowserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func init() {
	if os.Getenv("SITEWORKER_ENV") == "" {
		os.Setenv("SITEWORKER_ENV", config.Test)
	}
}

// testDBCache caches test databases by root test name so subtests share one database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a named in-memory database with every model migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set SITEWORKER_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears every application table.
func CleanAllTables(db *gorm.DB) {
	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range models.Tables() {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CreateTestSite creates a site, or returns the existing one with that slug.
func CreateTestSite(db *gorm.DB, slug, primaryHost string, allowedHosts ...string) sites.Site {
	if existing, err := sites.FindBySlug(db, slug); err == nil {
		return *existing
	}
	site := sites.Site{Slug: slug, PrimaryHost: primaryHost, AllowedHosts: allowedHosts}
	if err := sites.Create(db, &site); err != nil {
		panic(fmt.Sprintf("testsupport: failed to create site %s: %v", slug, err))
	}
	return site
}

// CreateTestAdmin creates an admin user with a real password hash.
func CreateTestAdmin(t *testing.T, db *gorm.DB, username, password string) *users.AdminUser {
	t.Helper()
	user, err := users.CreateAdmin(db, GetLogger(), username, password)
	require.NoError(t, err)
	return user
}

// CreateSession inserts an analytics session row directly.
func CreateSession(t *testing.T, db *gorm.DB, siteID uint, distinctID, country, browser string, createdAt int64) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, db.Create(&analytics.Session{
		SessionID:  id,
		SiteID:     siteID,
		DistinctID: distinctID,
		Browser:    browser,
		OS:         "Windows",
		Device:     "desktop",
		Country:    country,
		CreatedAt:  createdAt,
		LastSeenAt: createdAt,
	}).Error)
	return id
}

// CreatePageview inserts a pageview row directly.
func CreatePageview(t *testing.T, db *gorm.DB, siteID uint, sessionID, path, referrerDomain string, createdAt int64) *analytics.Event {
	t.Helper()
	event := &analytics.Event{
		EventID:        uuid.NewString(),
		SiteID:         siteID,
		SessionID:      sessionID,
		VisitID:        analytics.VisitID(sessionID, createdAt),
		CreatedAt:      createdAt,
		URLPath:        path,
		ReferrerDomain: referrerDomain,
		EventType:      analytics.EventTypePageview,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

// CreateCommentEvent inserts a comment analytics row directly.
func CreateCommentEvent(t *testing.T, db *gorm.DB, siteID uint, eventType analytics.CommentEventType, pageKey string, createdAt int64) {
	t.Helper()
	require.NoError(t, db.Create(&analytics.CommentEvent{
		EventID:   uuid.NewString(),
		SiteID:    siteID,
		CreatedAt: createdAt,
		EventType: eventType,
		EventName: eventType.Name(),
		PageKey:   pageKey,
		URLPath:   pageKey,
		Device:    "desktop",
		Country:   "US",
	}).Error)
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = NewTestDBManager(db)
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// JSONRequest builds a browser-like JSON request.
func JSONRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			raw, _ := json.Marshal(b)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", BrowserUA)
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	return req
}

// DecodeBody reads a JSON response body into v.
func DecodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v), "body: %s", string(raw))
}

// AdminAuth is the pair of tokens an authenticated admin request carries.
type AdminAuth struct {
	SessionToken string
	CSRFToken    string
}

// Apply attaches the session cookie and CSRF header to req.
func (a AdminAuth) Apply(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: a.SessionToken})
	req.Header.Set("X-CSRF-Token", a.CSRFToken)
	return req
}

// LoginTestAdmin logs in through the HTTP API and returns the issued tokens.
func LoginTestAdmin(t *testing.T, app *fiber.App, username, password string) AdminAuth {
	t.Helper()

	req := JSONRequest(http.MethodPost, "/v1/admin/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		CSRFToken string `json:"csrf"`
	}
	var sessionToken string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			sessionToken = cookie.Value
		}
	}
	DecodeBody(t, resp, &body)

	require.NotEmpty(t, sessionToken)
	require.NotEmpty(t, body.CSRFToken)
	return AdminAuth{SessionToken: sessionToken, CSRFToken: body.CSRFToken}
}
