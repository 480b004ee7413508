// Package analytics serves the admin dashboard figures. Every number is
// computed from the content tables on request.
package analytics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"inkpress/auth"
	"inkpress/common"
	"inkpress/models"
	"inkpress/policy"
)

const (
	defaultDays = 30
	maxDays     = 365
)

type AnalyticsModule struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAnalyticsModule(db *gorm.DB, now func() time.Time) *AnalyticsModule {
	if now == nil {
		now = time.Now
	}
	return &AnalyticsModule{db: db, now: now}
}

func (a *AnalyticsModule) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/analytics", a.requireAdmin)
	{
		g.GET("/overview", a.overview)
		g.GET("/posts", a.posts)
		g.GET("/comments_pending", a.commentsPending)
		g.GET("/publishing", a.publishing)
	}
}

func (a *AnalyticsModule) requireAdmin(c *gin.Context) {
	if err := policy.Check(auth.CurrentPrincipal(c), policy.Administer, policy.On(policy.AnalyticsKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	c.Next()
}

// Overview is the dashboard summary.
type Overview struct {
	TotalPosts            int64 `json:"total_posts"`
	PublishedPosts        int64 `json:"published_posts"`
	DraftPosts            int64 `json:"draft_posts"`
	ScheduledPosts        int64 `json:"scheduled_posts"`
	TotalUsers            int64 `json:"total_users"`
	TotalComments         int64 `json:"total_comments"`
	ApprovedComments      int64 `json:"approved_comments"`
	PendingComments       int64 `json:"pending_comments"`
	SpamComments          int64 `json:"spam_comments"`
	NewsletterSubscribers int64 `json:"newsletter_subscribers"`
	TotalViews            int64 `json:"total_views"`
}

// PostStats is one row of the per-post table, busiest first.
type PostStats struct {
	ID     uint              `json:"id"`
	Title  string            `json:"title"`
	Status models.PostStatus `json:"status"`
	Views  uint              `json:"views"`
	Likes  uint              `json:"likes"`
}

// PendingComment is a comment waiting for moderation.
type PendingComment struct {
	ID        uint      `json:"id"`
	PostTitle string    `json:"post__title"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// DayCount is the number of posts first published on Date.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

func (a *AnalyticsModule) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	db := a.db.WithContext(ctx)

	var byStatus []struct {
		Status models.PostStatus
		Count  int64
	}
	if err := db.Model(&models.Post{}).Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return o, err
	}
	for _, row := range byStatus {
		o.TotalPosts += row.Count
		switch row.Status {
		case models.StatusPublished:
			o.PublishedPosts = row.Count
		case models.StatusDraft:
			o.DraftPosts = row.Count
		case models.StatusScheduled:
			o.ScheduledPosts = row.Count
		}
	}

	var views struct{ Total int64 }
	if err := db.Model(&models.Post{}).Select("COALESCE(SUM(views), 0) AS total").Scan(&views).Error; err != nil {
		return o, err
	}
	o.TotalViews = views.Total

	counts := []struct {
		dst   *int64
		model any
		where []any
	}{
		{&o.TotalUsers, &models.User{}, nil},
		{&o.TotalComments, &models.Comment{}, nil},
		{&o.ApprovedComments, &models.Comment{}, []any{"approved = ?", true}},
		{&o.PendingComments, &models.Comment{}, []any{"approved = ? AND is_spam = ?", false, false}},
		{&o.SpamComments, &models.Comment{}, []any{"is_spam = ?", true}},
		{&o.NewsletterSubscribers, &models.NewsletterSubscriber{}, []any{"is_active = ?", true}},
	}
	for _, q := range counts {
		tx := db.Model(q.model)
		if len(q.where) > 0 {
			tx = tx.Where(q.where[0], q.where[1:]...)
		}
		if err := tx.Count(q.dst).Error; err != nil {
			return o, err
		}
	}
	return o, nil
}

func (a *AnalyticsModule) PostStats(ctx context.Context) ([]PostStats, error) {
	out := []PostStats{}
	err := a.db.WithContext(ctx).Model(&models.Post{}).
		Select("id, title, status, views, likes").
		Order("views DESC").
		Order("id ASC").
		Scan(&out).Error
	return out, err
}

func (a *AnalyticsModule) PendingComments(ctx context.Context) ([]PendingComment, error) {
	out := []PendingComment{}
	err := a.db.WithContext(ctx).Model(&models.Comment{}).
		Select("comments.id, posts.title AS post_title, comments.name, comments.message, comments.created_at").
		Joins("JOIN posts ON posts.id = comments.post_id").
		Where("comments.approved = ? AND comments.is_spam = ?", false, false).
		Order("comments.created_at DESC").
		Scan(&out).Error
	return out, err
}

// PublishingByDay counts posts by the day they were first published over
// the last days days, oldest first. Days without posts are zero.
func (a *AnalyticsModule) PublishingByDay(ctx context.Context, days int) ([]DayCount, error) {
	now := a.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	var published []time.Time
	err := a.db.WithContext(ctx).Model(&models.Post{}).
		Where("published_at IS NOT NULL AND published_at >= ?", start).
		Pluck("published_at", &published).Error
	if err != nil {
		return nil, err
	}

	out := make([]DayCount, days)
	index := make(map[string]int, days)
	for i := range out {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		out[i] = DayCount{Date: date}
		index[date] = i
	}
	for _, at := range published {
		if i, ok := index[at.UTC().Format(time.DateOnly)]; ok {
			out[i].Count++
		}
	}
	return out, nil
}

func (a *AnalyticsModule) overview(c *gin.Context) {
	o, err := a.Overview(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (a *AnalyticsModule) posts(c *gin.Context) {
	stats, err := a.PostStats(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *AnalyticsModule) commentsPending(c *gin.Context) {
	pending, err := a.PendingComments(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (a *AnalyticsModule) publishing(c *gin.Context) {
	days := defaultDays
	if n, err := strconv.Atoi(c.Query("days")); err == nil && n > 0 {
		days = min(n, maxDays)
	}
	out, err := a.PublishingByDay(c.Request.Context(), days)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
