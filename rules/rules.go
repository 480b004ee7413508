// Package rules holds the derived-state transitions for posts and comments.
// Nothing here touches the database; the store persists whatever these
// functions decide.
package rules

import (
	"time"

	"inkpress/common"
	"inkpress/models"
)

// ApplyStatus moves post into status. Entering published stamps
// PublishedAt the first time only; PublishedAt is never cleared.
func ApplyStatus(post *models.Post, status models.PostStatus, now time.Time) error {
	if !status.Valid() {
		return common.Validation("%q is not a valid status", status)
	}
	if status == models.StatusScheduled && post.ScheduledFor == nil {
		return common.Validation("scheduled_for is required when status is scheduled")
	}

	post.Status = status
	if status == models.StatusPublished {
		stampPublished(post, now)
	}
	return nil
}

// PublishIfDue flips a scheduled post whose time has come. It reports
// whether the post changed.
func PublishIfDue(post *models.Post, now time.Time) bool {
	if post.Status != models.StatusScheduled || post.ScheduledFor == nil {
		return false
	}
	if post.ScheduledFor.After(now) {
		return false
	}
	post.Status = models.StatusPublished
	stampPublished(post, now)
	return true
}

func stampPublished(post *models.Post, now time.Time) {
	if post.PublishedAt == nil {
		t := now
		post.PublishedAt = &t
	}
}

// Approve clears the spam flag as well.
func Approve(c *models.Comment) {
	c.Approved = true
	c.IsSpam = false
}

// MarkSpam also withdraws approval.
func MarkSpam(c *models.Comment) {
	c.IsSpam = true
	c.Approved = false
}

// InitialApproval is the approved flag a brand-new comment starts with.
func InitialApproval(s models.SiteSettings) bool {
	return !s.RequireCommentApproval
}
