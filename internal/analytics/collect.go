package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"siteworker/internal/apierror"
	"siteworker/internal/config"
	"siteworker/internal/database"
	"siteworker/internal/pkg/referrers"
	"siteworker/internal/sites"
	"siteworker/internal/visitors"
)

const (
	maxPathLength  = 2048
	MaxTitleLength = 512
	maxNameLength  = 128
	maxDataBytes   = 4096
)

// Payload is the public collect/event request body.
type Payload struct {
	Site       string          `json:"site"`
	Path       string          `json:"path"`
	Title      string          `json:"title"`
	Referrer   string          `json:"referrer"`
	URL        string          `json:"url"`
	Language   string          `json:"language"`
	Screen     string          `json:"screen"`
	TZ         string          `json:"tz"`
	DeviceType string          `json:"device_type"`
	OS         string          `json:"os"`
	Browser    string          `json:"browser"`
	Country    string          `json:"country"`
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data"`
}

// RequestMeta carries what the transport layer knows about the caller.
type RequestMeta struct {
	IP          string
	UserAgent   string
	Origin      string
	EdgeCountry string
}

// CollectEventInput defines the input required to collect an event.
type CollectEventInput struct {
	Payload   Payload
	Meta      RequestMeta
	EventType EventType
	Timestamp time.Time
}

// Validate checks required fields: site and path always, name for custom events.
func (in *CollectEventInput) Validate() error {
	if strings.TrimSpace(in.Payload.Site) == "" {
		return apierror.Invalid("site is required")
	}
	if strings.TrimSpace(in.Payload.Path) == "" {
		return apierror.Invalid("path is required")
	}
	if in.EventType == EventTypeCustom && strings.TrimSpace(in.Payload.Name) == "" {
		return apierror.Invalid("name is required")
	}
	if len(in.Payload.Data) > maxDataBytes {
		return apierror.Invalid("data is too large")
	}
	return nil
}

// CollectEvent validates the input, resolves the site and session, and
// appends one row to umami_event.
func CollectEvent(db *gorm.DB, logger *slog.Logger, input *CollectEventInput) (*Event, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	site, err := sites.FindBySlug(db, input.Payload.Site)
	if err != nil {
		return nil, err
	}

	cfg := config.GetConfig()
	if err := site.CheckOrigin(input.Meta.Origin, cfg.AllowedHosts()); err != nil {
		logger.Debug("Rejected event from disallowed origin",
			slog.String("site", site.Slug),
			slog.String("origin", input.Meta.Origin))
		return nil, err
	}

	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	now := timestamp.Unix()

	attr := ResolveAttribution(Hints{
		DeviceType: input.Payload.DeviceType,
		OS:         input.Payload.OS,
		Browser:    input.Payload.Browser,
		Country:    input.Payload.Country,
		Screen:     input.Payload.Screen,
		Language:   input.Payload.Language,
	}, input.Meta.UserAgent, input.Meta.EdgeCountry, input.Meta.IP)

	distinctID := visitors.DistinctID(cfg.PrivateKey, site.ID, input.Meta.IP, input.Meta.UserAgent)
	event := buildEvent(site, input, now)

	err = database.Atomic(logger, db, func(tx *gorm.DB) error {
		return AppendEvent(tx, event, SessionInput{
			SiteID:      site.ID,
			DistinctID:  distinctID,
			Attribution: attr,
		}, int64(cfg.GetSessionIdleTimeout()))
	})
	if err != nil {
		logger.Error("Failed to store event", slog.String("site", site.Slug), slog.Any("error", err))
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	return event, nil
}

// AppendEvent attaches event to the visitor's current session and inserts
// it. Callers own the transaction.
func AppendEvent(tx *gorm.DB, event *Event, session SessionInput, idleTimeout int64) error {
	sessionID, err := ResolveSession(tx, session, event.CreatedAt, idleTimeout)
	if err != nil {
		return err
	}

	event.SessionID = sessionID
	event.VisitID = VisitID(sessionID, event.CreatedAt)
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("error inserting event: %w", err)
	}
	return nil
}

func buildEvent(site *sites.Site, input *CollectEventInput, now int64) *Event {
	path, query := NormalizePath(input.Payload.Path)
	hostname := site.PrimaryHost

	if input.Payload.URL != "" {
		if u, err := url.Parse(strings.TrimSpace(input.Payload.URL)); err == nil {
			if u.RawQuery != "" {
				query = u.RawQuery
			}
			if h := sites.NormalizeHost(u.Hostname()); h != "" {
				hostname = h
			}
		}
	}

	event := &Event{
		EventID:        uuid.NewString(),
		SiteID:         site.ID,
		CreatedAt:      now,
		URLPath:        path,
		URLQuery:       query,
		ReferrerDomain: referrers.Domain(input.Payload.Referrer),
		PageTitle:      Truncate(input.Payload.Title, MaxTitleLength),
		Hostname:       hostname,
		EventType:      input.EventType,
	}

	if input.EventType == EventTypeCustom {
		event.EventName = Truncate(input.Payload.Name, maxNameLength)
		if len(input.Payload.Data) > 0 && json.Valid(input.Payload.Data) && string(input.Payload.Data) != "null" {
			event.DataJSON = string(input.Payload.Data)
		}
	}

	return event
}

// NormalizePath returns the path with a leading slash and any query split off.
func NormalizePath(raw string) (path, query string) {
	path = strings.TrimSpace(raw)
	if i := strings.IndexByte(path, '#'); i >= 0 {
		path = path[:i]
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i+1:]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return cutBytes(path, maxPathLength), query
}
