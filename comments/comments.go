// Package comments serves threaded comments, their moderation and likes.
package comments

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inkpress/auth"
	"inkpress/common"
	"inkpress/models"
	"inkpress/policy"
	"inkpress/present"
	"inkpress/rules"
	"inkpress/store"
)

// maxThreadDepth bounds how far replies are followed when rendering.
const maxThreadDepth = 32

type CommentsModule struct {
	store   *store.Store
	present *present.Presenter
}

func NewCommentsModule(s *store.Store, p *present.Presenter) *CommentsModule {
	return &CommentsModule{store: s, present: p}
}

func (m *CommentsModule) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/comments")
	{
		g.GET("", m.list)
		g.POST("", m.create)
		g.GET("/:id", m.retrieve)
		g.PUT("/:id", m.update)
		g.PATCH("/:id", m.update)
		g.DELETE("/:id", m.delete)
		g.POST("/:id/approve", m.moderate(rules.Approve))
		g.POST("/:id/mark_as_spam", m.moderate(rules.MarkSpam))
		g.POST("/:id/like", m.like)
		g.DELETE("/:id/like", m.unlike)
	}
}

func options(p policy.Principal) present.CommentOptions {
	return present.CommentOptions{ShowEmail: p.IsAdmin()}
}

// threads renders roots with every reply below them that scope allows.
func (m *CommentsModule) threads(ctx context.Context, roots []models.Comment, scope policy.CommentScope, opts present.CommentOptions) ([]*present.Comment, error) {
	var descendants []models.Comment
	seen := make(map[uint]bool, len(roots))
	frontier := make([]uint, 0, len(roots))
	for _, r := range roots {
		seen[r.ID] = true
		frontier = append(frontier, r.ID)
	}
	for depth := 0; len(frontier) > 0 && depth < maxThreadDepth; depth++ {
		replies, err := m.store.Replies(ctx, frontier, scope)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, r := range replies {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			descendants = append(descendants, r)
			frontier = append(frontier, r.ID)
		}
	}
	return m.present.CommentThreads(roots, descendants, opts), nil
}

func (m *CommentsModule) respond(c *gin.Context, status int, comment *models.Comment) {
	p := auth.CurrentPrincipal(c)
	out, err := m.threads(c.Request.Context(), []models.Comment{*comment}, policy.CommentScopeFor(p), options(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(status, out[0])
}

func (m *CommentsModule) list(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	f := store.CommentFilter{Scope: policy.CommentScopeFor(p)}
	if n, err := strconv.ParseUint(c.Query("post"), 10, 64); err == nil {
		f.PostID = uint(n)
	}
	if n, err := strconv.ParseUint(c.Query("parent"), 10, 64); err == nil {
		f.ParentID = uint(n)
	}
	if b, err := strconv.ParseBool(c.Query("top_level")); err == nil {
		f.TopLevel = b
	}
	if b, err := strconv.ParseBool(c.Query("approved")); err == nil {
		f.Approved = &b
	}

	ctx := c.Request.Context()
	params := common.ParseListParams(c)
	page, err := m.store.ListComments(ctx, f, params)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	results, err := m.threads(ctx, page.Results, f.Scope, options(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewPage(params, page.Count, results))
}

func (m *CommentsModule) retrieve(c *gin.Context) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	p := auth.CurrentPrincipal(c)
	comment, err := m.store.GetComment(c.Request.Context(), id, policy.CommentScopeFor(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	m.respond(c, http.StatusOK, comment)
}

func (m *CommentsModule) create(c *gin.Context) {
	ctx := c.Request.Context()
	p := auth.CurrentPrincipal(c)

	settings, err := m.store.GetOrCreateSettings(ctx)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	resource := policy.Resource{Kind: policy.CommentKind, GuestWritable: settings.EnableGuestComments}
	if err := policy.Check(p, policy.Create, resource); err != nil {
		common.RespondError(c, err)
		return
	}

	var in store.CommentInput
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	comment, err := m.store.CreateComment(ctx, auth.CurrentUser(c), in, policy.PostScopeFor(p), policy.CommentScopeFor(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("comment created", "comment_id", comment.ID, "post_id", comment.PostID, "approved", comment.Approved)
	c.JSON(http.StatusCreated, m.present.Comment(comment, options(p)))
}

func (m *CommentsModule) authorizeOwned(c *gin.Context, a policy.Action) (uint, bool) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	p := auth.CurrentPrincipal(c)
	if !p.Authenticated {
		common.RespondError(c, policy.Check(p, a, policy.On(policy.CommentKind)))
		return 0, false
	}
	owner, err := m.store.CommentOwner(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	if err := policy.Check(p, a, policy.Owned(policy.CommentKind, owner)); err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	return id, true
}

func (m *CommentsModule) update(c *gin.Context) {
	id, ok := m.authorizeOwned(c, policy.Update)
	if !ok {
		return
	}
	var in store.CommentPatch
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	comment, err := m.store.UpdateComment(c.Request.Context(), id, in)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	m.respond(c, http.StatusOK, comment)
}

func (m *CommentsModule) delete(c *gin.Context) {
	id, ok := m.authorizeOwned(c, policy.Delete)
	if !ok {
		return
	}
	if err := m.store.DeleteComment(c.Request.Context(), id); err != nil {
		common.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (m *CommentsModule) moderate(transition func(*models.Comment)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := common.ParseID(c, "id")
		if err != nil {
			common.RespondError(c, err)
			return
		}
		p := auth.CurrentPrincipal(c)
		if err := policy.Check(p, policy.Moderate, policy.On(policy.CommentKind)); err != nil {
			common.RespondError(c, err)
			return
		}
		comment, err := m.store.ModerateComment(c.Request.Context(), id, transition)
		if err != nil {
			common.RespondError(c, err)
			return
		}
		slog.Info("comment moderated", "comment_id", id, "approved", comment.Approved, "spam", comment.IsSpam, "by", p.UserID)
		m.respond(c, http.StatusOK, comment)
	}
}

func (m *CommentsModule) like(c *gin.Context) {
	m.engage(c, m.store.LikeComment)
}

func (m *CommentsModule) unlike(c *gin.Context) {
	m.engage(c, m.store.UnlikeComment)
}

func (m *CommentsModule) engage(c *gin.Context, op func(context.Context, uint, uint, policy.CommentScope) (uint, error)) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	p := auth.CurrentPrincipal(c)
	if err := policy.Check(p, policy.Engage, policy.On(policy.CommentKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	likes, err := op(c.Request.Context(), id, p.UserID, policy.CommentScopeFor(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"likes": likes})
}
