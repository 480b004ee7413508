// Package auth mounts the token endpoints and resolves the principal of
// every API request.
package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"inkpress/common"
	"inkpress/identity"
	"inkpress/present"
)

type AuthModule struct {
	identity *identity.Service
	present  *present.Presenter
	limit    gin.HandlerFunc
}

// NewAuthModule wires the token endpoints. limit guards login and
// registration against credential stuffing.
func NewAuthModule(svc *identity.Service, p *present.Presenter, limit gin.HandlerFunc) *AuthModule {
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}
	return &AuthModule{identity: svc, present: p, limit: limit}
}

func (a *AuthModule) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", a.limit, a.login)
	rg.POST("/register", a.limit, a.register)
	rg.POST("/logout", RequireUser, a.logout)
	rg.POST("/token/refresh", a.refresh)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *AuthModule) login(c *gin.Context) {
	var req loginRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}
	u, pair, err := a.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("user logged in", "user_id", u.ID)
	c.JSON(http.StatusOK, pair)
}

func (a *AuthModule) register(c *gin.Context) {
	var req identity.RegisterInput
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}
	u, pair, err := a.identity.Register(c.Request.Context(), req)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	slog.Info("user registered", "user_id", u.ID)
	c.JSON(http.StatusCreated, gin.H{
		"access":  pair.Access,
		"refresh": pair.Refresh,
		"user":    a.present.UserDetail(u, 0, 0),
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// logout blacklists the presented refresh token. A request without one
// still succeeds; the client simply drops its tokens.
func (a *AuthModule) logout(c *gin.Context) {
	var req logoutRequest
	if c.Request.ContentLength != 0 {
		if err := common.BindJSON(c, &req); err != nil {
			common.RespondError(c, err)
			return
		}
	}
	if req.RefreshToken != "" {
		if err := a.identity.Logout(c.Request.Context(), req.RefreshToken); err != nil {
			common.RespondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Successfully logged out"})
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

func (a *AuthModule) refresh(c *gin.Context) {
	var req refreshRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}
	pair, err := a.identity.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}
