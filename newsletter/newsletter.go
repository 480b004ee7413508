// Package newsletter serves subscribe, unsubscribe and the subscriber list.
package newsletter

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"inkpress/auth"
	"inkpress/common"
	"inkpress/policy"
	"inkpress/store"
)

type NewsletterModule struct {
	store *store.Store
	limit gin.HandlerFunc
}

// NewNewsletterModule builds the module. limit guards the public endpoints
// and may be nil.
func NewNewsletterModule(s *store.Store, limit gin.HandlerFunc) *NewsletterModule {
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}
	return &NewsletterModule{store: s, limit: limit}
}

func (m *NewsletterModule) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/newsletter")
	{
		g.GET("", m.list)
		g.POST("/subscribe", m.limit, m.subscribe)
		g.POST("/unsubscribe", m.limit, m.unsubscribe)
	}
}

type emailRequest struct {
	Email string `json:"email" binding:"omitempty,email"`
}

func (m *NewsletterModule) list(c *gin.Context) {
	if err := policy.Check(auth.CurrentPrincipal(c), policy.List, policy.On(policy.NewsletterKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	page, err := m.store.ListSubscribers(c.Request.Context(), common.ParseListParams(c))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (m *NewsletterModule) subscribe(c *gin.Context) {
	var in emailRequest
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	sub, created, err := m.store.Subscribe(c.Request.Context(), in.Email)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		slog.Info("newsletter subscription", "subscriber_id", sub.ID)
	}
	c.JSON(status, sub)
}

func (m *NewsletterModule) unsubscribe(c *gin.Context) {
	var in emailRequest
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	if err := m.store.Unsubscribe(c.Request.Context(), in.Email); err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unsubscribed successfully"})
}
