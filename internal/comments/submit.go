package comments

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"siteworker/internal/analytics"
	"siteworker/internal/apierror"
	"siteworker/internal/config"
	"siteworker/internal/database"
	"siteworker/internal/pkg/referrers"
	"siteworker/internal/settings"
	"siteworker/internal/sites"
	"siteworker/internal/visitors"
)

const (
	maxAuthorNameLength = 64
	maxContentLength    = 5000
	maxPageKeyLength    = 512
	maxURLLength        = 2048
)

// Author identifies the commenter as entered in the form.
type Author struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Avatar string `json:"avatar"`
	Email  string `json:"email"`
}

// SubmitPayload is the public submission body.
type SubmitPayload struct {
	Site       string `json:"site"`
	PageKey    string `json:"pageKey"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	ParentID   *uint  `json:"parentId"`
	Author     Author `json:"author"`
	Content    string `json:"content"`
	Referrer   string `json:"referrer"`
	DeviceType string `json:"device_type"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	Country    string `json:"country"`
}

// SubmitInput pairs the payload with request metadata.
type SubmitInput struct {
	Payload   SubmitPayload
	Meta      analytics.RequestMeta
	Timestamp time.Time
}

// SubmitResult is returned to the submitter.
type SubmitResult struct {
	ID     uint   `json:"id"`
	Status string `json:"status"`
}

// Validate checks required fields and field limits.
func (p *SubmitPayload) Validate() error {
	p.Site = strings.TrimSpace(p.Site)
	p.PageKey = strings.TrimSpace(p.PageKey)
	p.URL = strings.TrimSpace(p.URL)
	p.Author.Name = strings.TrimSpace(p.Author.Name)
	p.Author.URL = strings.TrimSpace(p.Author.URL)
	p.Author.Email = strings.TrimSpace(p.Author.Email)
	p.Content = strings.TrimSpace(p.Content)

	switch {
	case p.Site == "":
		return apierror.Invalid("site is required")
	case p.PageKey == "":
		return apierror.Invalid("pageKey is required")
	case p.URL == "":
		return apierror.Invalid("url is required")
	case p.Author.Name == "":
		return apierror.Invalid("author.name is required")
	case p.Content == "":
		return apierror.Invalid("content is required")
	}

	if utf8.RuneCountInString(p.Author.Name) > maxAuthorNameLength {
		return apierror.Invalid("author.name is too long")
	}
	if utf8.RuneCountInString(p.Content) > maxContentLength {
		return apierror.Invalid("content is too long")
	}
	if len(p.PageKey) > maxPageKeyLength || len(p.URL) > maxURLLength {
		return apierror.Invalid("pageKey or url is too long")
	}
	if p.Author.URL != "" && !isHTTPURL(p.Author.URL) {
		return apierror.Invalid("author.url must be an http(s) URL")
	}
	if p.Author.Avatar != "" && !isHTTPURL(p.Author.Avatar) {
		return apierror.Invalid("author.avatar must be an http(s) URL")
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Submit validates and stores a comment. The thread upsert, comment insert,
// parent reply count, thread counters and the comment_submit analytics row
// are written in one transaction.
func Submit(db *gorm.DB, logger *slog.Logger, input *SubmitInput) (*SubmitResult, error) {
	p := &input.Payload
	if err := p.Validate(); err != nil {
		return nil, err
	}

	site, err := sites.FindBySlug(db, p.Site)
	if err != nil {
		return nil, err
	}

	cfg := config.GetConfig()
	if err := site.CheckOrigin(input.Meta.Origin, cfg.AllowedHosts()); err != nil {
		return nil, err
	}

	if input.Meta.IP == "" {
		return nil, apierror.Invalid("client ip could not be determined")
	}

	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	now := timestamp.Unix()

	window := WindowStart(now)
	limit := settings.Int(db, settings.KeyCommentRateLimit, fallbackRateLimit(cfg))
	key := RateLimitKey(site.Slug, visitors.HashIP(cfg.PrivateKey, input.Meta.IP), window)
	if err := ConsumeRateLimit(db, logger, key, window, limit, now); err != nil {
		if errors.Is(err, ErrRateLimited) {
			logger.Info("Comment rate limit exceeded", slog.String("site", site.Slug))
		}
		return nil, err
	}

	status := StatusPending
	if settings.Bool(db, settings.KeyAutoApprove, cfg.CommentsAutoApprove) {
		status = StatusApproved
	}

	attr := analytics.ResolveAttribution(analytics.Hints{
		DeviceType: p.DeviceType,
		OS:         p.OS,
		Browser:    p.Browser,
		Country:    p.Country,
	}, input.Meta.UserAgent, input.Meta.EdgeCountry, input.Meta.IP)

	distinctID := visitors.DistinctID(cfg.PrivateKey, site.ID, input.Meta.IP, input.Meta.UserAgent)

	comment := &Comment{
		ParentID:   p.ParentID,
		Status:     status,
		AuthorName: p.Author.Name,
		AuthorURL:  p.Author.URL,
		AvatarURL:  p.Author.Avatar,
		EmailPlain: p.Author.Email,
		IPPlain:    input.Meta.IP,
		UAPlain:    input.Meta.UserAgent,
		OS:         attr.OS,
		Browser:    attr.Browser,
		Device:     attr.Device,
		Country:    attr.Country,
		ContentMD:  p.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status == StatusApproved {
		comment.ApprovedAt = &now
	}

	err = database.Atomic(logger, db, func(tx *gorm.DB) error {
		thread, err := upsertThread(tx, site.ID, p, status == StatusApproved, now)
		if err != nil {
			return err
		}

		if p.ParentID != nil {
			var parent Comment
			err := tx.Where("id = ? AND thread_id = ?", *p.ParentID, thread.ID).First(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierror.Invalid("parentId does not belong to this thread")
			}
			if err != nil {
				return err
			}
		}

		comment.ThreadID = thread.ID
		if err := tx.Create(comment).Error; err != nil {
			return fmt.Errorf("error inserting comment: %w", err)
		}

		if p.ParentID != nil {
			if err := tx.Exec("UPDATE c_comments SET reply_count = reply_count + 1 WHERE id = ?", *p.ParentID).Error; err != nil {
				return fmt.Errorf("error incrementing reply count: %w", err)
			}
		}

		err = tx.Create(&analytics.CommentEvent{
			EventID:        uuid.NewString(),
			SiteID:         site.ID,
			ThreadID:       thread.ID,
			CommentID:      comment.ID,
			CreatedAt:      now,
			EventType:      analytics.CommentEventSubmit,
			EventName:      analytics.CommentEventSubmit.Name(),
			PageKey:        thread.PageKey,
			URLPath:        urlPath(p.URL),
			ReferrerDomain: referrers.Domain(p.Referrer),
			DistinctID:     distinctID,
			Device:         attr.Device,
			OS:             attr.OS,
			Browser:        attr.Browser,
			Country:        attr.Country,
		}).Error
		if err != nil {
			return fmt.Errorf("error inserting comment event: %w", err)
		}

		// Best effort: the submission also counts as a pageview-class event
		// for path-level analytics. SQLite keeps the transaction usable after
		// a failed statement, so the comment still commits.
		err = analytics.AppendEvent(tx, submitPageview(site, p, now), analytics.SessionInput{
			SiteID:      site.ID,
			DistinctID:  distinctID,
			Attribution: attr,
		}, int64(cfg.GetSessionIdleTimeout()))
		if err != nil {
			logger.Warn("Failed to record comment_submit event",
				slog.String("site", site.Slug),
				slog.Any("error", err))
		}
		return nil
	})
	if err != nil {
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) {
			return nil, err
		}
		logger.Error("Failed to store comment", slog.String("site", site.Slug), slog.Any("error", err))
		return nil, fmt.Errorf("failed to store comment: %w", err)
	}

	logger.Debug("Comment submitted",
		slog.String("site", site.Slug),
		slog.Uint64("comment_id", uint64(comment.ID)),
		slog.String("status", status))

	return &SubmitResult{ID: comment.ID, Status: status}, nil
}

// upsertThread creates the thread on first use, otherwise refreshes its
// url and title and bumps the counters.
func upsertThread(tx *gorm.DB, siteID uint, p *SubmitPayload, approved bool, now int64) (*Thread, error) {
	approvedDelta := 0
	if approved {
		approvedDelta = 1
	}

	err := tx.Exec(`
        INSERT INTO c_threads (site_id, page_key, url, title, comment_count_total, comment_count_approved, last_commented_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)
        ON CONFLICT(site_id, page_key) DO UPDATE SET
            url = COALESCE(NULLIF(excluded.url, ''), c_threads.url),
            title = COALESCE(NULLIF(excluded.title, ''), c_threads.title),
            comment_count_total = c_threads.comment_count_total + 1,
            comment_count_approved = c_threads.comment_count_approved + excluded.comment_count_approved,
            last_commented_at = excluded.last_commented_at,
            updated_at = excluded.updated_at
    `, siteID, p.PageKey, p.URL, strings.TrimSpace(p.Title), approvedDelta, now, now, now).Error
	if err != nil {
		return nil, fmt.Errorf("error upserting thread: %w", err)
	}

	var thread Thread
	if err := tx.Where("site_id = ? AND page_key = ?", siteID, p.PageKey).First(&thread).Error; err != nil {
		return nil, fmt.Errorf("error loading thread: %w", err)
	}
	return &thread, nil
}

func fallbackRateLimit(cfg *config.Config) int {
	if cfg.CommentsRateLimit > 0 {
		return cfg.CommentsRateLimit
	}
	return DefaultRateLimit
}

// submitPageview is the umami_event row a submission folds into the
// pageview stream.
func submitPageview(site *sites.Site, p *SubmitPayload, now int64) *analytics.Event {
	path, _ := analytics.NormalizePath(urlPath(p.URL))
	hostname := site.PrimaryHost
	if u, err := url.Parse(p.URL); err == nil {
		if h := sites.NormalizeHost(u.Hostname()); h != "" {
			hostname = h
		}
	}

	return &analytics.Event{
		EventID:        uuid.NewString(),
		SiteID:         site.ID,
		CreatedAt:      now,
		URLPath:        path,
		ReferrerDomain: referrers.Domain(p.Referrer),
		PageTitle:      analytics.Truncate(p.Title, analytics.MaxTitleLength),
		Hostname:       hostname,
		EventType:      analytics.EventTypePageview,
		EventName:      analytics.CommentEventSubmit.Name(),
	}
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
