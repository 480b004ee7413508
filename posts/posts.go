// Package posts serves the post endpoints: CRUD, canned listings,
// related posts, likes and the view counter.
package posts

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inkpress/auth"
	"inkpress/common"
	"inkpress/media"
	"inkpress/models"
	"inkpress/policy"
	"inkpress/present"
	"inkpress/store"
)

const (
	featuredLimit = 5
	recentLimit   = 10
	trendingLimit = 10
	relatedLimit  = 5
)

type PostsModule struct {
	store     *store.Store
	present   *present.Presenter
	media     media.Storage
	viewLimit gin.HandlerFunc
}

// NewPostsModule wires the post endpoints. viewLimit throttles the
// anonymous view counter and may be nil.
func NewPostsModule(s *store.Store, p *present.Presenter, files media.Storage, viewLimit gin.HandlerFunc) *PostsModule {
	if viewLimit == nil {
		viewLimit = func(c *gin.Context) { c.Next() }
	}
	return &PostsModule{store: s, present: p, media: files, viewLimit: viewLimit}
}

func (m *PostsModule) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/posts")
	{
		g.GET("", m.list)
		g.POST("", m.create)
		g.GET("/published", m.published)
		g.GET("/featured", m.featured)
		g.GET("/recent", m.recent)
		g.GET("/trending", m.trending)
		g.POST("/publish_scheduled", m.publishScheduled)
		g.GET("/:id", m.retrieve)
		g.PUT("/:id", m.update)
		g.PATCH("/:id", m.update)
		g.DELETE("/:id", m.delete)
		g.GET("/:id/related", m.related)
		g.POST("/:id/increment_views", m.viewLimit, m.incrementViews)
		g.POST("/:id/like", m.like)
		g.DELETE("/:id/like", m.unlike)
		g.POST("/:id/featured_image", m.uploadFeaturedImage)
	}
}

func parseFilter(c *gin.Context, p policy.Principal) store.PostFilter {
	f := store.PostFilter{
		Scope:  policy.PostScopeFor(p),
		Status: models.PostStatus(c.Query("status")),
	}
	if n, err := strconv.ParseUint(c.Query("category"), 10, 64); err == nil {
		f.CategoryID = uint(n)
	}
	if n, err := strconv.ParseUint(c.Query("author"), 10, 64); err == nil {
		f.AuthorID = uint(n)
	}
	if b, err := strconv.ParseBool(c.Query("is_featured")); err == nil {
		f.Featured = &b
	}
	return f
}

func (m *PostsModule) items(ctx context.Context, posts []models.Post) ([]present.PostItem, error) {
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	counts, err := m.store.CommentCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	return m.present.PostItems(posts, counts), nil
}

func (m *PostsModule) respondPage(c *gin.Context, page common.Page[models.Post]) {
	items, err := m.items(c.Request.Context(), page.Results)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.Page[present.PostItem]{
		Count: page.Count, Page: page.Page, PageSize: page.PageSize, Results: items,
	})
}

func (m *PostsModule) respondList(c *gin.Context, posts []models.Post, err error) {
	if err != nil {
		common.RespondError(c, err)
		return
	}
	items, err := m.items(c.Request.Context(), posts)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// detail renders a post with its visible comment threads.
func (m *PostsModule) detail(c *gin.Context, status int, post *models.Post) {
	ctx := c.Request.Context()
	p := auth.CurrentPrincipal(c)

	all, err := m.store.PostComments(ctx, post.ID, policy.CommentScopeFor(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	liked, err := m.store.UserLikedPost(ctx, post.ID, p.UserID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	roots, replies := present.SplitThreads(all)
	threads := m.present.CommentThreads(roots, replies, present.CommentOptions{ShowEmail: p.IsAdmin()})
	c.JSON(status, m.present.PostDetail(post, threads, liked))
}

func (m *PostsModule) list(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	page, err := m.store.ListPosts(c.Request.Context(), parseFilter(c, p), common.ParseListParams(c))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	m.respondPage(c, page)
}

func (m *PostsModule) published(c *gin.Context) {
	page, err := m.store.PublishedPosts(c.Request.Context(), common.ParseListParams(c))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	m.respondPage(c, page)
}

func (m *PostsModule) featured(c *gin.Context) {
	posts, err := m.store.FeaturedPosts(c.Request.Context(), featuredLimit)
	m.respondList(c, posts, err)
}

func (m *PostsModule) recent(c *gin.Context) {
	posts, err := m.store.RecentPosts(c.Request.Context(), recentLimit)
	m.respondList(c, posts, err)
}

func (m *PostsModule) trending(c *gin.Context) {
	posts, err := m.store.TrendingPosts(c.Request.Context(), trendingLimit)
	m.respondList(c, posts, err)
}

func (m *PostsModule) retrieve(c *gin.Context) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	p := auth.CurrentPrincipal(c)
	if err := policy.Check(p, policy.Retrieve, policy.On(policy.PostKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	post, err := m.store.GetPost(c.Request.Context(), id, policy.PostScopeFor(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	m.detail(c, http.StatusOK, post)
}

func (m *PostsModule) related(c *gin.Context) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	ctx := c.Request.Context()
	post, err := m.store.GetPost(ctx, id, policy.PostScopeFor(auth.CurrentPrincipal(c)))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	posts, err := m.store.RelatedPosts(ctx, post, relatedLimit)
	m.respondList(c, posts, err)
}

func (m *PostsModule) create(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	if err := policy.Check(p, policy.Create, policy.On(policy.PostKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	var in store.PostInput
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	post, err := m.store.CreatePost(c.Request.Context(), p.UserID, in)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("post created", "post_id", post.ID, "author_id", p.UserID, "status", post.Status)
	m.detail(c, http.StatusCreated, post)
}

// authorizeOwned loads the post owner without a visibility filter and
// checks action against it.
func (m *PostsModule) authorizeOwned(c *gin.Context, a policy.Action) (uint, bool) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	p := auth.CurrentPrincipal(c)
	if !p.Authenticated {
		common.RespondError(c, policy.Check(p, a, policy.On(policy.PostKind)))
		return 0, false
	}
	owner, err := m.store.PostOwner(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	if err := policy.Check(p, a, policy.Owned(policy.PostKind, owner)); err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	return id, true
}

func (m *PostsModule) update(c *gin.Context) {
	id, ok := m.authorizeOwned(c, policy.Update)
	if !ok {
		return
	}
	var in store.PostInput
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	post, err := m.store.UpdatePost(c.Request.Context(), id, in, c.Request.Method == http.MethodPut)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	m.detail(c, http.StatusOK, post)
}

func (m *PostsModule) delete(c *gin.Context) {
	id, ok := m.authorizeOwned(c, policy.Delete)
	if !ok {
		return
	}
	if err := m.store.DeletePost(c.Request.Context(), id); err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("post deleted", "post_id", id, "by", auth.CurrentPrincipal(c).UserID)
	c.Status(http.StatusNoContent)
}

func (m *PostsModule) uploadFeaturedImage(c *gin.Context) {
	id, ok := m.authorizeOwned(c, policy.Update)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	fh, err := c.FormFile("featured_image")
	if err != nil {
		common.RespondError(c, common.Validation("featured_image file is required"))
		return
	}
	old, err := m.store.GetPost(ctx, id, policy.AllPosts)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	key, err := media.Upload(ctx, m.media, "posts", fh)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if err := m.store.SetFeaturedImage(ctx, id, key); err != nil {
		common.RespondError(c, err)
		return
	}
	if old.FeaturedImage != "" {
		if err := m.media.Delete(ctx, old.FeaturedImage); err != nil {
			slog.Warn("failed to remove replaced featured image", "key", old.FeaturedImage, "error", err)
		}
	}
	post, err := m.store.GetPost(ctx, id, policy.AllPosts)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	m.detail(c, http.StatusOK, post)
}

func (m *PostsModule) incrementViews(c *gin.Context) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	p := auth.CurrentPrincipal(c)
	if err := policy.Check(p, policy.View, policy.On(policy.PostKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	views, err := m.store.IncrementViews(c.Request.Context(), id, policy.PostScopeFor(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"views": views})
}

func (m *PostsModule) like(c *gin.Context) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	p := auth.CurrentPrincipal(c)
	if err := policy.Check(p, policy.Engage, policy.On(policy.PostKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	likes, created, err := m.store.LikePost(c.Request.Context(), id, p.UserID, policy.PostScopeFor(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"liked": true, "likes": likes})
}

func (m *PostsModule) unlike(c *gin.Context) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	p := auth.CurrentPrincipal(c)
	if err := policy.Check(p, policy.Engage, policy.On(policy.PostKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	likes, err := m.store.UnlikePost(c.Request.Context(), id, p.UserID, policy.PostScopeFor(p))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": false, "likes": likes})
}

// publishScheduled runs the scheduled-post sweep on demand.
func (m *PostsModule) publishScheduled(c *gin.Context) {
	if err := policy.Check(auth.CurrentPrincipal(c), policy.Administer, policy.On(policy.PostKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	n, err := m.store.PublishDue(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("scheduled posts published", "count", n)
	c.JSON(http.StatusOK, gin.H{"published": n})
}
