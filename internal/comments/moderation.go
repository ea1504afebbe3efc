package comments

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"siteworker/internal/analytics"
	"siteworker/internal/apierror"
	"siteworker/internal/config"
	"siteworker/internal/database"
	"siteworker/internal/visitors"
)

// Action is an admin moderation verb.
type Action string

const (
	ActionApprove Action = "approve"
	ActionHide    Action = "hide"
	ActionDelete  Action = "delete"
)

var (
	ErrCommentNotFound   = apierror.New(fiber.StatusNotFound, "comment not found")
	ErrInvalidTransition = apierror.New(fiber.StatusConflict, "invalid transition")
)

var actionTarget = map[Action]string{
	ActionApprove: StatusApproved,
	ActionHide:    StatusHidden,
	ActionDelete:  StatusDeleted,
}

var actionEvent = map[Action]analytics.CommentEventType{
	ActionApprove: analytics.CommentEventApprove,
	ActionHide:    analytics.CommentEventHide,
	ActionDelete:  analytics.CommentEventDelete,
}

// transitions lists the statuses reachable from each status.
var transitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusHidden, StatusDeleted},
	StatusApproved: {StatusHidden, StatusDeleted},
	StatusHidden:   {StatusDeleted},
}

// ParseAction maps a route segment onto an Action.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := actionTarget[a]
	return a, ok
}

// CanTransition reports whether a comment may move from one status to another.
func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Moderate applies action to a comment on behalf of actorUserID. The status
// change, thread counter adjustment, audit row and analytics row commit
// together.
func Moderate(db *gorm.DB, logger *slog.Logger, commentID uint, action Action, actorUserID uint, at time.Time) (*Comment, error) {
	target, ok := actionTarget[action]
	if !ok {
		return nil, apierror.Invalid("unknown action %q", action)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	now := at.Unix()
	secret := config.GetConfig().PrivateKey

	var comment Comment
	err := database.Atomic(logger, db, func(tx *gorm.DB) error {
		if err := tx.First(&comment, commentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCommentNotFound
			}
			return err
		}

		if !CanTransition(comment.Status, target) {
			return ErrInvalidTransition
		}
		from := comment.Status

		updates := map[string]any{"status": target, "updated_at": now}
		if action == ActionApprove {
			updates["approved_at"] = now
		}
		if err := tx.Model(&Comment{}).Where("id = ?", comment.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("error updating comment: %w", err)
		}

		var delta int
		switch {
		case target == StatusApproved:
			delta = 1
		case from == StatusApproved:
			delta = -1
		}
		if delta != 0 {
			err := tx.Exec(`
                UPDATE c_threads
                SET comment_count_approved = MAX(comment_count_approved + ?, 0), updated_at = ?
                WHERE id = ?
            `, delta, now, comment.ThreadID).Error
			if err != nil {
				return fmt.Errorf("error adjusting thread counters: %w", err)
			}
		}

		if err := tx.Create(&ModerationLog{
			CommentID:   comment.ID,
			Action:      string(action),
			ActorUserID: actorUserID,
			CreatedAt:   now,
		}).Error; err != nil {
			return fmt.Errorf("error writing moderation log: %w", err)
		}

		if err := recordModerationEvent(tx, &comment, action, secret, now); err != nil {
			return err
		}

		comment.Status = target
		comment.UpdatedAt = now
		if action == ActionApprove {
			comment.ApprovedAt = &now
		}
		return nil
	})
	if err != nil {
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) {
			return nil, err
		}
		logger.Error("Failed to moderate comment",
			slog.Uint64("comment_id", uint64(commentID)),
			slog.String("action", string(action)),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to moderate comment: %w", err)
	}

	logger.Info("Comment moderated",
		slog.Uint64("comment_id", uint64(commentID)),
		slog.String("action", string(action)),
		slog.Uint64("actor_user_id", uint64(actorUserID)))

	return &comment, nil
}

// recordModerationEvent writes the outcome to comment_event when the thread
// still maps to a provisioned site.
func recordModerationEvent(tx *gorm.DB, comment *Comment, action Action, secret string, now int64) error {
	var row struct {
		SiteID  uint
		PageKey string
		URL     string
	}
	err := tx.Raw(`
        SELECT t.site_id AS site_id, t.page_key AS page_key, t.url AS url
        FROM c_threads t
        JOIN sites s ON s.id = t.site_id
        WHERE t.id = ?
    `, comment.ThreadID).Scan(&row).Error
	if err != nil {
		return fmt.Errorf("error resolving thread site: %w", err)
	}
	if row.SiteID == 0 {
		return nil
	}

	eventType := actionEvent[action]
	return tx.Create(&analytics.CommentEvent{
		EventID:    uuid.NewString(),
		SiteID:     row.SiteID,
		ThreadID:   comment.ThreadID,
		CommentID:  comment.ID,
		CreatedAt:  now,
		EventType:  eventType,
		EventName:  eventType.Name(),
		PageKey:    row.PageKey,
		URLPath:    urlPath(row.URL),
		DistinctID: visitors.DistinctID(secret, row.SiteID, comment.IPPlain, comment.UAPlain),
		Device:     comment.Device,
		OS:         comment.OS,
		Browser:    comment.Browser,
		Country:    comment.Country,
	}).Error
}
