package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"inkpress/common"
	"inkpress/identity"
	"inkpress/models"
	"inkpress/policy"
	"inkpress/store"
)

const (
	principalKey = "principal"
	userKey      = "user"
)

// Middleware resolves an optional bearer token into the request
// principal. Requests without an Authorization header continue as
// anonymous; a header carrying a bad token is rejected with 401.
func Middleware(svc *identity.Service, s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(principalKey, policy.Anonymous())
			c.Next()
			return
		}

		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			common.RespondError(c, identity.ErrInvalidToken)
			return
		}

		claims, err := svc.ValidateAccess(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			common.RespondError(c, err)
			return
		}

		// Role and staff flags come from the row, not the token, so
		// promotions and deactivations apply immediately.
		u, err := s.GetUser(c.Request.Context(), claims.UserID)
		if errors.Is(err, common.ErrNotFound) || (err == nil && !u.IsActive) {
			common.RespondError(c, common.Unauthenticated("User not found or inactive"))
			return
		}
		if err != nil {
			common.RespondError(c, err)
			return
		}

		c.Set(principalKey, policy.FromUser(u))
		c.Set(userKey, u)
		c.Next()
	}
}

// CurrentPrincipal returns the request principal, anonymous if none.
func CurrentPrincipal(c *gin.Context) policy.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(policy.Principal); ok {
			return p
		}
	}
	return policy.Anonymous()
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// RequireUser aborts anonymous requests with 401.
func RequireUser(c *gin.Context) {
	if CurrentUser(c) == nil {
		common.RespondError(c, policy.Decision{Reason: policy.ReasonUnauthenticated}.Err())
		return
	}
	c.Next()
}
