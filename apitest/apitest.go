// Package apitest assembles the API stack over an in-memory database for
// handler tests.
package apitest

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"inkpress/auth"
	"inkpress/identity"
	"inkpress/media"
	"inkpress/models"
	"inkpress/present"
	"inkpress/store"
	"inkpress/testutil"
)

// Module is anything that mounts routes on the API group.
type Module interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

type Env struct {
	DB       *gorm.DB
	Store    *store.Store
	Clock    *testutil.Clock
	Identity *identity.Service
	Media    *media.LocalStorage
	Present  *present.Presenter
	Router   *gin.Engine
	API      *gin.RouterGroup
}

func New(t testing.TB) *Env {
	t.Helper()
	identity.PasswordCost = 4

	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	st := store.New(db).WithClock(clock.Now)
	tokens := identity.NewTokenService("apitest-secret-key", time.Hour, 7*24*time.Hour).WithClock(clock.Now)
	svc := identity.NewService(st, tokens, identity.NewDBBlacklist(db))

	files, err := media.NewLocalStorage(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("media storage: %v", err)
	}

	router := testutil.Router()
	api := router.Group("/api", auth.Middleware(svc, st))

	return &Env{
		DB:       db,
		Store:    st,
		Clock:    clock,
		Identity: svc,
		Media:    files,
		Present:  present.New(files),
		Router:   router,
		API:      api,
	}
}

func (e *Env) Mount(mods ...Module) *Env {
	for _, m := range mods {
		m.RegisterRoutes(e.API)
	}
	return e
}

// Token returns a fresh access token for u.
func (e *Env) Token(t testing.TB, u *models.User) string {
	t.Helper()
	pair, err := e.Identity.Tokens().IssuePair(u)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return pair.Access
}

// User inserts a user with role and returns it with an access token.
func (e *Env) User(t testing.TB, email string, role models.Role) (*models.User, string) {
	t.Helper()
	u := testutil.User(t, e.DB, email, role)
	return u, e.Token(t, u)
}

// Admin inserts a staff user.
func (e *Env) Admin(t testing.TB) (*models.User, string) {
	t.Helper()
	u := testutil.User(t, e.DB, "admin@example.com", models.RoleAdmin)
	return u, e.Token(t, u)
}

func (e *Env) Do(method, path, token string, body any) *httptest.ResponseRecorder {
	return testutil.Do(e.Router, method, path, token, body)
}
