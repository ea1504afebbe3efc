package comments

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"siteworker/internal/config"
	"siteworker/internal/visitors"
)

const maxCountKeys = 100

// PublicComment is what unauthenticated readers see.
type PublicComment struct {
	ID          uint   `json:"id"`
	ParentID    *uint  `json:"parentId"`
	AuthorName  string `json:"authorName"`
	AuthorURL   string `json:"authorUrl,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	ContentMD   string `json:"contentMd"`
	ContentHTML string `json:"contentHtml"`
	ReplyCount  int64  `json:"replyCount"`
	CreatedAt   int64  `json:"createdAt"`
}

// ThreadView is a thread with its approved comments.
type ThreadView struct {
	Thread   *Thread         `json:"thread"`
	Comments []PublicComment `json:"comments"`
}

// GetThread returns the thread for a page and its approved comments in
// ascending creation order. A page with no thread yields a nil thread and no
// comments.
func GetThread(db *gorm.DB, logger *slog.Logger, siteID uint, pageKey string) (*ThreadView, error) {
	view := &ThreadView{Comments: []PublicComment{}}

	var thread Thread
	err := db.Where("site_id = ? AND page_key = ?", siteID, strings.TrimSpace(pageKey)).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching thread: %w", err)
	}
	view.Thread = &thread

	var rows []Comment
	err = db.Where("thread_id = ? AND status = ?", thread.ID, StatusApproved).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching comments: %w", err)
	}

	for _, c := range rows {
		html, err := RenderMarkdown(c.ContentMD)
		if err != nil {
			logger.Warn("Failed to render comment markdown",
				slog.Uint64("comment_id", uint64(c.ID)),
				slog.Any("error", err))
		}
		view.Comments = append(view.Comments, PublicComment{
			ID:          c.ID,
			ParentID:    c.ParentID,
			AuthorName:  c.AuthorName,
			AuthorURL:   c.AuthorURL,
			AvatarURL:   c.AvatarURL,
			ContentMD:   c.ContentMD,
			ContentHTML: html,
			ReplyCount:  c.ReplyCount,
			CreatedAt:   c.CreatedAt,
		})
	}
	return view, nil
}

// ParsePageKeys splits a comma separated list, dropping blanks and duplicates.
func ParsePageKeys(raw string) []string {
	keys := lo.Uniq(lo.Compact(lo.Map(strings.Split(raw, ","), func(k string, _ int) string {
		return strings.TrimSpace(k)
	})))
	if len(keys) > maxCountKeys {
		keys = keys[:maxCountKeys]
	}
	return keys
}

// CountsByPageKeys returns the approved count for every requested key; keys
// without a thread report 0.
func CountsByPageKeys(db *gorm.DB, siteID uint, keys []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(keys))
	for _, k := range keys {
		counts[k] = 0
	}
	if len(keys) == 0 {
		return counts, nil
	}

	var rows []struct {
		PageKey              string
		CommentCountApproved int64
	}
	err := db.Model(&Thread{}).
		Select("page_key, comment_count_approved").
		Where("site_id = ? AND page_key IN ?", siteID, keys).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching comment counts: %w", err)
	}
	for _, r := range rows {
		counts[r.PageKey] = r.CommentCountApproved
	}
	return counts, nil
}

// LatestComment is a recent approved comment with its page.
type LatestComment struct {
	ID         uint   `json:"id"`
	AuthorName string `json:"authorName"`
	AuthorURL  string `json:"authorUrl,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	ContentMD  string `json:"contentMd"`
	CreatedAt  int64  `json:"createdAt"`
	PageKey    string `json:"pageKey"`
	URL        string `json:"url"`
	Title      string `json:"title"`
}

// Latest returns the most recent approved comments across the site.
func Latest(db *gorm.DB, siteID uint, limit int) ([]LatestComment, error) {
	results := []LatestComment{}
	err := db.Raw(`
    SELECT
        c.id AS id, c.author_name AS author_name, c.author_url AS author_url,
        c.avatar_url AS avatar_url, c.content_md AS content_md, c.created_at AS created_at,
        t.page_key AS page_key, t.url AS url, t.title AS title
    FROM c_comments c
    JOIN c_threads t ON t.id = c.thread_id
    WHERE t.site_id = ? AND c.status = ?
    ORDER BY c.created_at DESC, c.id DESC
    LIMIT ?
    `, siteID, StatusApproved, clampLimit(limit)).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching latest comments: %w", err)
	}
	return results, nil
}

// TotalApproved counts approved comments across the site.
func TotalApproved(db *gorm.DB, siteID uint) (int64, error) {
	var total int64
	err := db.Model(&Comment{}).
		Joins("JOIN c_threads ON c_threads.id = c_comments.thread_id").
		Where("c_threads.site_id = ? AND c_comments.status = ?", siteID, StatusApproved).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("error counting comments: %w", err)
	}
	return total, nil
}

// AdminComment is the moderation listing row. The commenter is shown by a
// stable alias of their hashed address, never the address itself.
type AdminComment struct {
	ID         uint   `json:"id"`
	ThreadID   uint   `json:"threadId"`
	ParentID   *uint  `json:"parentId"`
	Status     string `json:"status"`
	AuthorName string `json:"authorName"`
	AuthorURL  string `json:"authorUrl,omitempty"`
	Email      string `json:"email,omitempty"`
	Alias      string `json:"alias"`
	ContentMD  string `json:"contentMd"`
	Device     string `json:"device"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	Country    string `json:"country"`
	ReplyCount int64  `json:"replyCount"`
	CreatedAt  int64  `json:"createdAt"`
	ApprovedAt *int64 `json:"approvedAt"`
	PageKey    string `json:"pageKey"`
	URL        string `json:"url"`
}

// ListFilter narrows the admin listing.
type ListFilter struct {
	SiteID  uint
	Status  string
	Page    int
	PerPage int
}

// AdminList pages through a site's comments, newest first.
func AdminList(db *gorm.DB, filter ListFilter) ([]AdminComment, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	filter.PerPage = clampLimit(filter.PerPage)

	scoped := func() *gorm.DB {
		q := db.Table("c_comments").
			Joins("JOIN c_threads ON c_threads.id = c_comments.thread_id").
			Where("c_threads.site_id = ?", filter.SiteID)
		if filter.Status != "" {
			q = q.Where("c_comments.status = ?", filter.Status)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting comments: %w", err)
	}

	var rows []struct {
		Comment
		PageKey string
		URL     string `gorm:"column:thread_url"`
	}
	err := scoped().
		Select("c_comments.*, c_threads.page_key AS page_key, c_threads.url AS thread_url").
		Order("c_comments.created_at DESC, c_comments.id DESC").
		Offset((filter.Page - 1) * filter.PerPage).
		Limit(filter.PerPage).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("error listing comments: %w", err)
	}

	secret := config.GetConfig().PrivateKey
	results := make([]AdminComment, 0, len(rows))
	for _, r := range rows {
		results = append(results, AdminComment{
			ID:         r.ID,
			ThreadID:   r.ThreadID,
			ParentID:   r.ParentID,
			Status:     r.Status,
			AuthorName: r.AuthorName,
			AuthorURL:  r.AuthorURL,
			Email:      r.EmailPlain,
			Alias:      visitors.Alias(visitors.HashIP(secret, r.IPPlain)),
			ContentMD:  r.ContentMD,
			Device:     r.Device,
			OS:         r.OS,
			Browser:    r.Browser,
			Country:    r.Country,
			ReplyCount: r.ReplyCount,
			CreatedAt:  r.CreatedAt,
			ApprovedAt: r.ApprovedAt,
			PageKey:    r.PageKey,
			URL:        r.URL,
		})
	}
	return results, total, nil
}

// ValidStatus reports whether s is a known comment status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusHidden, StatusDeleted:
		return true
	}
	return false
}

func clampLimit(n int) int {
	if n < 1 {
		return 10
	}
	if n > 50 {
		return 50
	}
	return n
}
