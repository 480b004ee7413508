// Package taxonomy serves categories and tags.
package taxonomy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"inkpress/auth"
	"inkpress/common"
	"inkpress/models"
	"inkpress/policy"
	"inkpress/store"
)

const popularTagsLimit = 10

type TaxonomyModule struct {
	store *store.Store
}

func NewTaxonomyModule(s *store.Store) *TaxonomyModule {
	return &TaxonomyModule{store: s}
}

func (m *TaxonomyModule) RegisterRoutes(rg *gin.RouterGroup) {
	categories := terms[models.Category]{
		kind:   policy.CategoryKind,
		list:   m.store.ListCategories,
		get:    m.store.GetCategory,
		create: m.store.CreateCategory,
		update: m.store.UpdateCategory,
		delete: m.store.DeleteCategory,
	}
	categories.register(rg.Group("/categories"))

	tags := terms[models.Tag]{
		kind:   policy.TagKind,
		list:   m.store.ListTags,
		get:    m.store.GetTag,
		create: m.store.CreateTag,
		update: m.store.UpdateTag,
		delete: m.store.DeleteTag,
	}
	g := rg.Group("/tags")
	g.GET("/popular", m.popularTags)
	tags.register(g)
}

func (m *TaxonomyModule) popularTags(c *gin.Context) {
	tags, err := m.store.PopularTags(c.Request.Context(), popularTagsLimit)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	c.JSON(http.StatusOK, tags)
}

// terms wires the CRUD routes shared by categories and tags. Reads are
// public, writes need an admin.
type terms[T any] struct {
	kind   policy.Kind
	list   func(context.Context, common.ListParams) (common.Page[T], error)
	get    func(context.Context, uint) (*T, error)
	create func(context.Context, store.TermInput) (*T, error)
	update func(context.Context, uint, store.TermInput) (*T, error)
	delete func(context.Context, uint) error
}

func (h terms[T]) register(g *gin.RouterGroup) {
	g.GET("", h.handleList)
	g.POST("", h.handleCreate)
	g.GET("/:id", h.handleGet)
	g.PUT("/:id", h.handleUpdate)
	g.PATCH("/:id", h.handleUpdate)
	g.DELETE("/:id", h.handleDelete)
}

func (h terms[T]) allowed(c *gin.Context, a policy.Action) bool {
	if err := policy.Check(auth.CurrentPrincipal(c), a, policy.On(h.kind)); err != nil {
		common.RespondError(c, err)
		return false
	}
	return true
}

func (h terms[T]) handleList(c *gin.Context) {
	page, err := h.list(c.Request.Context(), common.ParseListParams(c))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h terms[T]) handleGet(c *gin.Context) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	term, err := h.get(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, term)
}

func (h terms[T]) handleCreate(c *gin.Context) {
	if !h.allowed(c, policy.Create) {
		return
	}
	var in store.TermInput
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	term, err := h.create(c.Request.Context(), in)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("term created", "kind", h.kind.String())
	c.JSON(http.StatusCreated, term)
}

func (h terms[T]) handleUpdate(c *gin.Context) {
	if !h.allowed(c, policy.Update) {
		return
	}
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	var in store.TermInput
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	term, err := h.update(c.Request.Context(), id, in)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, term)
}

func (h terms[T]) handleDelete(c *gin.Context) {
	if !h.allowed(c, policy.Delete) {
		return
	}
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if err := h.delete(c.Request.Context(), id); err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("term deleted", "kind", h.kind.String(), "id", id)
	c.Status(http.StatusNoContent)
}
