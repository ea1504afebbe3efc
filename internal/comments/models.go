package comments

// Comment statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusHidden   = "hidden"
	StatusDeleted  = "deleted"
)

// Thread is the comment container for one page of a site, created lazily on
// the first submission.
type Thread struct {
	ID                   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID               uint   `gorm:"not null;uniqueIndex:idx_c_threads_site_page,priority:1" json:"site_id"`
	PageKey              string `gorm:"not null;uniqueIndex:idx_c_threads_site_page,priority:2" json:"page_key"`
	URL                  string `gorm:"column:url" json:"url"`
	Title                string `json:"title"`
	CommentCountTotal    int64  `gorm:"not null;default:0" json:"comment_count_total"`
	CommentCountApproved int64  `gorm:"not null;default:0" json:"comment_count_approved"`
	LastCommentedAt      int64  `json:"last_commented_at"`
	CreatedAt            int64  `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt            int64  `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (Thread) TableName() string { return "c_threads" }

// Comment is one submission. ReplyCount is maintained by increment on insert
// of a child and never recomputed.
type Comment struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ThreadID   uint   `gorm:"not null;index:idx_c_comments_thread_status,priority:1"`
	ParentID   *uint  `gorm:"index"`
	Status     string `gorm:"not null;index:idx_c_comments_thread_status,priority:2"`
	AuthorName string `gorm:"not null"`
	AuthorURL  string `gorm:"column:author_url"`
	AvatarURL  string `gorm:"column:avatar_url"`
	EmailPlain string `gorm:"column:email_plain"`
	IPPlain    string `gorm:"column:ip_plain"`
	UAPlain    string `gorm:"column:ua_plain"`
	OS         string `gorm:"column:os"`
	Browser    string
	Device     string
	Country    string
	ContentMD  string `gorm:"column:content_md;not null"`
	ReplyCount int64  `gorm:"not null;default:0"`
	CreatedAt  int64  `gorm:"not null;autoCreateTime:false;index"`
	UpdatedAt  int64  `gorm:"not null;autoUpdateTime:false"`
	ApprovedAt *int64
}

func (Comment) TableName() string { return "c_comments" }

// ModerationLog is the append-only audit trail of admin actions.
type ModerationLog struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	CommentID   uint   `gorm:"not null;index"`
	Action      string `gorm:"not null"`
	ActorUserID uint   `gorm:"not null"`
	CreatedAt   int64  `gorm:"not null;autoCreateTime:false"`
}

func (ModerationLog) TableName() string { return "c_moderation_log" }

// RateLimit is a fixed-window submission counter.
type RateLimit struct {
	Key         string `gorm:"primaryKey"`
	WindowStart int64  `gorm:"not null;index"`
	Count       int    `gorm:"not null;default:0"`
	UpdatedAt   int64  `gorm:"not null;autoUpdateTime:false"`
}

func (RateLimit) TableName() string { return "rate_limits" }
