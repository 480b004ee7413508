// Package contact serves the public contact form and the admin inbox.
package contact

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"inkpress/auth"
	"inkpress/common"
	"inkpress/policy"
	"inkpress/store"
)

type ContactModule struct {
	store *store.Store
	limit gin.HandlerFunc
}

// NewContactModule builds the module. limit guards form submission and
// may be nil.
func NewContactModule(s *store.Store, limit gin.HandlerFunc) *ContactModule {
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}
	return &ContactModule{store: s, limit: limit}
}

func (m *ContactModule) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/contacts")
	{
		g.POST("", m.limit, m.create)
		g.GET("", m.admin(policy.List), m.list)
		g.GET("/:id", m.admin(policy.Retrieve), m.retrieve)
		g.DELETE("/:id", m.admin(policy.Delete), m.delete)
	}
}

func (m *ContactModule) admin(a policy.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := policy.Check(auth.CurrentPrincipal(c), a, policy.On(policy.ContactKind)); err != nil {
			common.RespondError(c, err)
			return
		}
		c.Next()
	}
}

func (m *ContactModule) create(c *gin.Context) {
	var in store.ContactInput
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	msg, err := m.store.CreateContact(c.Request.Context(), in)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("contact message received", "contact_id", msg.ID, "subject", msg.Subject)
	c.JSON(http.StatusCreated, msg)
}

func (m *ContactModule) list(c *gin.Context) {
	page, err := m.store.ListContacts(c.Request.Context(), common.ParseListParams(c))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (m *ContactModule) retrieve(c *gin.Context) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	msg, err := m.store.GetContact(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (m *ContactModule) delete(c *gin.Context) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if err := m.store.DeleteContact(c.Request.Context(), id); err != nil {
		common.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
