package analytics

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultSessionIdleTimeout is the idle gap, in seconds, after which a new
// session starts.
const DefaultSessionIdleTimeout int64 = 1800

// SessionInput identifies the device and carries the attributes persisted on
// the session row.
type SessionInput struct {
	SiteID      uint
	DistinctID  string
	Attribution Attribution
}

// ResolveSession returns the session for the device, reusing the most recent
// one when it was last seen within idleTimeout seconds of now. The session's
// descriptive columns are refreshed on every call; empty values never
// overwrite recorded ones.
func ResolveSession(tx *gorm.DB, in SessionInput, now, idleTimeout int64) (string, error) {
	if idleTimeout <= 0 {
		idleTimeout = DefaultSessionIdleTimeout
	}

	var latest []Session
	err := tx.Where("site_id = ? AND distinct_id = ?", in.SiteID, in.DistinctID).
		Order("last_seen_at DESC").
		Limit(1).
		Find(&latest).Error
	if err != nil {
		return "", fmt.Errorf("error looking up session: %w", err)
	}

	sessionID := uuid.NewString()
	if len(latest) == 1 && now-latest[0].LastSeenAt <= idleTimeout {
		sessionID = latest[0].SessionID
	}

	a := in.Attribution
	err = tx.Exec(`
        INSERT INTO umami_session (session_id, site_id, distinct_id, browser, os, device, screen, language, country, created_at, last_seen_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(session_id) DO UPDATE SET
            browser = COALESCE(NULLIF(excluded.browser, ''), umami_session.browser),
            os = COALESCE(NULLIF(excluded.os, ''), umami_session.os),
            device = COALESCE(NULLIF(excluded.device, ''), umami_session.device),
            screen = COALESCE(NULLIF(excluded.screen, ''), umami_session.screen),
            language = COALESCE(NULLIF(excluded.language, ''), umami_session.language),
            country = COALESCE(NULLIF(excluded.country, ''), umami_session.country),
            last_seen_at = MAX(umami_session.last_seen_at, excluded.last_seen_at)
    `, sessionID, in.SiteID, in.DistinctID, a.Browser, a.OS, a.Device, a.Screen, a.Language, a.Country, now, now).Error
	if err != nil {
		return "", fmt.Errorf("error upserting session: %w", err)
	}

	return sessionID, nil
}

// VisitID splits a session into hourly visits.
func VisitID(sessionID string, createdAt int64) string {
	return fmt.Sprintf("%s:%d", sessionID, createdAt/3600)
}
