package analytics

// EventType distinguishes pageviews from custom events in umami_event.
type EventType int

const (
	EventTypePageview EventType = 1
	EventTypeCustom   EventType = 2
)

// CommentEventType is the moderation outcome recorded in comment_event.
type CommentEventType int

const (
	CommentEventSubmit  CommentEventType = 1
	CommentEventApprove CommentEventType = 2
	CommentEventHide    CommentEventType = 3
	CommentEventDelete  CommentEventType = 4
)

// Name returns the event_name stored alongside the type.
func (t CommentEventType) Name() string {
	switch t {
	case CommentEventSubmit:
		return "comment_submit"
	case CommentEventApprove:
		return "comment_approve"
	case CommentEventHide:
		return "comment_hide"
	case CommentEventDelete:
		return "comment_delete"
	}
	return "comment_unknown"
}

// Event is one observed pageview or custom event. Rows are never updated.
type Event struct {
	EventID        string    `gorm:"column:event_id;primaryKey"`
	SiteID         uint      `gorm:"column:site_id;not null;index:idx_umami_event_site_created,priority:1"`
	SessionID      string    `gorm:"column:session_id;not null;index"`
	VisitID        string    `gorm:"column:visit_id;not null"`
	CreatedAt      int64     `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_umami_event_site_created,priority:2"`
	URLPath        string    `gorm:"column:url_path;not null"`
	URLQuery       string    `gorm:"column:url_query"`
	ReferrerDomain string    `gorm:"column:referrer_domain"`
	PageTitle      string    `gorm:"column:page_title"`
	Hostname       string    `gorm:"column:hostname"`
	EventType      EventType `gorm:"column:event_type;not null"`
	EventName      string    `gorm:"column:event_name"`
	DataJSON       string    `gorm:"column:data_json"`
}

func (Event) TableName() string { return "umami_event" }

// Session is a rolling attribution window for one distinct id.
type Session struct {
	SessionID  string `gorm:"column:session_id;primaryKey"`
	SiteID     uint   `gorm:"column:site_id;not null;index:idx_umami_session_site_distinct,priority:1"`
	DistinctID string `gorm:"column:distinct_id;not null;index:idx_umami_session_site_distinct,priority:2"`
	Browser    string `gorm:"column:browser"`
	OS         string `gorm:"column:os"`
	Device     string `gorm:"column:device"`
	Screen     string `gorm:"column:screen"`
	Language   string `gorm:"column:language"`
	Country    string `gorm:"column:country"`
	CreatedAt  int64  `gorm:"column:created_at;not null;autoCreateTime:false;index"`
	LastSeenAt int64  `gorm:"column:last_seen_at;not null"`
}

func (Session) TableName() string { return "umami_session" }

// CommentEvent records a comment submission or moderation outcome for
// comment analytics.
type CommentEvent struct {
	EventID        string           `gorm:"column:event_id;primaryKey"`
	SiteID         uint             `gorm:"column:site_id;not null;index:idx_comment_event_site_created,priority:1"`
	ThreadID       uint             `gorm:"column:thread_id;not null"`
	CommentID      uint             `gorm:"column:comment_id;not null;index"`
	CreatedAt      int64            `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_comment_event_site_created,priority:2"`
	EventType      CommentEventType `gorm:"column:event_type;not null"`
	EventName      string           `gorm:"column:event_name;not null"`
	PageKey        string           `gorm:"column:page_key"`
	URLPath        string           `gorm:"column:url_path"`
	ReferrerDomain string           `gorm:"column:referrer_domain"`
	DistinctID     string           `gorm:"column:distinct_id"`
	Device         string           `gorm:"column:device"`
	OS             string           `gorm:"column:os"`
	Browser        string           `gorm:"column:browser"`
	Country        string           `gorm:"column:country"`
}

func (CommentEvent) TableName() string { return "comment_event" }
