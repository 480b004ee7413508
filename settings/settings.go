// Package settings serves the site-wide settings singleton.
package settings

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

type SettingsModule struct {
	store   *store.Store
	present *present.Presenter
	media   media.Storage
}

func NewSettingsModule(s *store.Store, p *present.Presenter, files media.Storage) *SettingsModule {
	return &SettingsModule{store: s, present: p, media: files}
}

func (m *SettingsModule) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/settings")
	{
		g.GET("", m.get)
		g.POST("", m.requireAdmin, m.create)
		g.POST("/configure", m.requireAdmin, m.configure)
		g.POST("/logo", m.requireAdmin, m.uploadLogo)
		g.DELETE("", m.requireAdmin, m.delete)
	}
}

func (m *SettingsModule) requireAdmin(c *gin.Context) {
	if err := policy.Check(auth.CurrentPrincipal(c), policy.Administer, policy.On(policy.SettingsKind)); err != nil {
		common.RespondError(c, err)
		return
	}
	c.Next()
}

func (m *SettingsModule) get(c *gin.Context) {
	st, err := m.store.GetOrCreateSettings(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m.present.Settings(st))
}

// create installs the singleton with non-default values. It only works
// before anything has read or written the settings.
func (m *SettingsModule) create(c *gin.Context) {
	in := models.DefaultSettings()
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	if in.PostsPerPage == 0 {
		common.RespondError(c, common.Validation("posts_per_page must be positive"))
		return
	}
	// Images only arrive through their upload endpoints.
	in.Logo, in.Favicon = "", ""
	st, err := m.store.CreateSettings(c.Request.Context(), in)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("site settings created", "by", auth.CurrentPrincipal(c).UserID)
	c.JSON(http.StatusCreated, m.present.Settings(st))
}

func (m *SettingsModule) configure(c *gin.Context) {
	var in store.SettingsPatch
	if err := common.BindJSON(c, &in); err != nil {
		common.RespondError(c, err)
		return
	}
	st, err := m.store.UpdateSettings(c.Request.Context(), in)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("site settings updated", "by", auth.CurrentPrincipal(c).UserID)
	c.JSON(http.StatusOK, m.present.Settings(st))
}

func (m *SettingsModule) uploadLogo(c *gin.Context) {
	ctx := c.Request.Context()
	fh, err := c.FormFile("logo")
	if err != nil {
		common.RespondError(c, common.Validation("logo file is required"))
		return
	}
	old, err := m.store.GetOrCreateSettings(ctx)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	key, err := media.Upload(ctx, m.media, "site", fh)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	previous := old.Logo
	st, err := m.store.SetLogo(ctx, key)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if previous != "" {
		if err := m.media.Delete(ctx, previous); err != nil {
			slog.Warn("failed to remove replaced logo", "key", previous, "error", err)
		}
	}
	c.JSON(http.StatusOK, m.present.Settings(st))
}

func (m *SettingsModule) delete(c *gin.Context) {
	common.RespondError(c, m.store.DeleteSettings(c.Request.Context()))
}
