// Package models lists every persisted type so migrations and test
// databases share one schema.
package models

import (
	"siteworker/internal/analytics"
	"siteworker/internal/comments"
	"siteworker/internal/settings"
	"siteworker/internal/sites"
	"siteworker/internal/users"
)

// All returns all siteworker models for migration.
func All() []any {
	return []any{
		&sites.Site{},
		&settings.Setting{},
		&analytics.Event{},
		&analytics.Session{},
		&analytics.CommentEvent{},
		&comments.Thread{},
		&comments.Comment{},
		&comments.ModerationLog{},
		&comments.RateLimit{},
		&users.AdminUser{},
		&users.AdminSession{},
	}
}

// Tables lists the table names of All, children before parents.
func Tables() []string {
	return []string{
		"umami_event", "umami_session", "comment_event",
		"c_moderation_log", "c_comments", "c_threads", "rate_limits",
		"admin_sessions", "admin_users", "settings", "sites",
	}
}
