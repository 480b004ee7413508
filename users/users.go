// Package users serves profiles and the admin user controls.
package users

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"inkpress/auth"
	"inkpress/common"
	"inkpress/media"
	"inkpress/models"
	"inkpress/policy"
	"inkpress/present"
	"inkpress/store"
)

type UsersModule struct {
	store   *store.Store
	present *present.Presenter
	media   media.Storage
}

func NewUsersModule(s *store.Store, p *present.Presenter, files media.Storage) *UsersModule {
	return &UsersModule{store: s, present: p, media: files}
}

func (m *UsersModule) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/users")
	{
		g.GET("", m.list)

		g.GET("/me", auth.RequireUser, m.me)
		g.PATCH("/me", auth.RequireUser, m.updateMe)
		g.POST("/me/profile_image", auth.RequireUser, m.uploadProfileImage)

		g.GET("/:id", m.retrieve)
		g.PATCH("/:id", m.update)
		g.DELETE("/:id", m.delete)
		g.POST("/:id/role", m.setRole)
		g.POST("/:id/activate", m.setActive(true))
		g.POST("/:id/deactivate", m.setActive(false))
	}
}

type roleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

func (m *UsersModule) respondDetail(c *gin.Context, u *models.User) {
	stats, err := m.store.UserStats(c.Request.Context(), u.ID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m.present.UserDetail(u, stats.PostsCount, stats.CommentsCount))
}

// target parses :id and checks a on that user.
func (m *UsersModule) target(c *gin.Context, a policy.Action) (uint, bool) {
	id, err := common.ParseID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	if err := policy.Check(auth.CurrentPrincipal(c), a, policy.Owned(policy.UserKind, id)); err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	return id, true
}

// notSelf rejects admin actions that would lock the caller out.
func notSelf(c *gin.Context, id uint, msg string) bool {
	if auth.CurrentPrincipal(c).UserID == id {
		common.RespondError(c, common.Validation("%s", msg))
		return false
	}
	return true
}

func (m *UsersModule) list(c *gin.Context) {
	if err := policy.Check(auth.CurrentPrincipal(c), policy.List, policy.On(policy.UserKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	params := common.ParseListParams(c)
	page, err := m.store.ListUsers(c.Request.Context(), params)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewPage(params, page.Count, m.present.Users(page.Results)))
}

func (m *UsersModule) me(c *gin.Context) {
	m.respondDetail(c, auth.CurrentUser(c))
}

func (m *UsersModule) updateMe(c *gin.Context) {
	m.patch(c, auth.CurrentUser(c).ID)
}

func (m *UsersModule) retrieve(c *gin.Context) {
	id, ok := m.target(c, policy.Retrieve)
	if !ok {
		return
	}
	u, err := m.store.GetUser(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	m.respondDetail(c, u)
}

func (m *UsersModule) update(c *gin.Context) {
	id, ok := m.target(c, policy.Update)
	if !ok {
		return
	}
	m.patch(c, id)
}

func (m *UsersModule) patch(c *gin.Context, id uint) {
	var in store.UserPatch
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	u, err := m.store.UpdateUser(c.Request.Context(), id, in)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	m.respondDetail(c, u)
}

func (m *UsersModule) delete(c *gin.Context) {
	id, ok := m.target(c, policy.Delete)
	if !ok || !notSelf(c, id, "You cannot delete your own account") {
		return
	}
	ctx := c.Request.Context()
	u, err := m.store.GetUser(ctx, id)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if err := m.store.DeleteUser(ctx, id); err != nil {
		common.RespondError(c, err)
		return
	}
	if u.ProfileImage != "" {
		if err := m.media.Delete(ctx, u.ProfileImage); err != nil {
			slog.Warn("failed to remove profile image", "key", u.ProfileImage, "error", err)
		}
	}
	slog.Info("user deleted", "user_id", id, "by", auth.CurrentPrincipal(c).UserID)
	c.Status(http.StatusNoContent)
}

func (m *UsersModule) setRole(c *gin.Context) {
	id, ok := m.target(c, policy.Administer)
	if !ok {
		return
	}
	var in roleRequest
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	if in.Role != models.RoleAdmin && !notSelf(c, id, "You cannot demote yourself") {
		return
	}
	u, err := m.store.SetRole(c.Request.Context(), id, in.Role)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("user role changed", "user_id", id, "role", u.Role)
	c.JSON(http.StatusOK, m.present.User(u))
}

func (m *UsersModule) setActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := m.target(c, policy.Administer)
		if !ok {
			return
		}
		if !active && !notSelf(c, id, "You cannot deactivate your own account") {
			return
		}
		u, err := m.store.SetActive(c.Request.Context(), id, active)
		if err != nil {
			common.RespondError(c, err)
			return
		}
		slog.Info("user activation changed", "user_id", id, "active", active)
		c.JSON(http.StatusOK, m.present.User(u))
	}
}

func (m *UsersModule) uploadProfileImage(c *gin.Context) {
	ctx := c.Request.Context()
	current := auth.CurrentUser(c)
	fh, err := c.FormFile("profile_image")
	if err != nil {
		common.RespondError(c, common.Validation("profile_image file is required"))
		return
	}
	key, err := media.Upload(ctx, m.media, "profiles", fh)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	u, err := m.store.SetProfileImage(ctx, current.ID, key)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if current.ProfileImage != "" {
		if err := m.media.Delete(ctx, current.ProfileImage); err != nil {
			slog.Warn("failed to remove replaced profile image", "key", current.ProfileImage, "error", err)
		}
	}
	m.respondDetail(c, u)
}
