package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("MEDIA_DRIVER", "local")
	t.Setenv("S3_BUCKET_NAME", "")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSecret")

	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("MEDIA_DRIVER", "s3")
	_, err = LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3Bucket")

	t.Setenv("S3_BUCKET_NAME", "media")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "media", cfg.S3Bucket)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:            "8080",
			AppEnv:          "test",
			DBDriver:        "sqlite",
			DBDSN:           "inkpress.db",
			JWTSecret:       "0123456789abcdef",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
			MediaDriver:     "local",
			LogLevel:        "info",
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short secret", func(c *Config) { c.JWTSecret = "short" }},
		{"unknown driver", func(c *Config) { c.DBDriver = "oracle" }},
		{"refresh shorter than access", func(c *Config) { c.RefreshTokenTTL = time.Minute }},
		{"s3 without bucket", func(c *Config) { c.MediaDriver = "s3" }},
		{"negative rate limit", func(c *Config) { c.RateLimitPerMinute = -1 }},
		{"negative pool size", func(c *Config) { c.DBMaxOpenConns = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConnectDb_PoolLimits(t *testing.T) {
	cfg := &Config{
		DBDriver:          "sqlite",
		DBDSN:             "file::memory:",
		DBMaxOpenConns:    7,
		DBMaxIdleConns:    2,
		DBConnMaxLifetime: time.Minute,
	}
	db, err := ConnectDb(cfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	assert.Equal(t, 7, sqlDB.Stats().MaxOpenConnections)

	_, err = ConnectDb(&Config{DBDriver: "oracle"})
	assert.Error(t, err)
}

func TestRateLimitByIP(t *testing.T) {
	r := gin.New()
	r.GET("/limited", RateLimitByIP(2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/open", RateLimitByIP(0, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := range 2 {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/limited").Code, "request %d", i)
	}
	w := serve(r, http.MethodGet, "/limited")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"detail":"Too many requests"}`, w.Body.String())

	for range 5 {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/open").Code)
	}
}

func TestWrapMiddleware(t *testing.T) {
	reached := 0
	handler := func(c *gin.Context) {
		reached++
		c.String(http.StatusOK, c.GetHeader("X-Seen"))
	}
	blocking := WrapMiddleware(func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	})
	passing := WrapMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.Clone(r.Context())
			r.Header.Set("X-Seen", "yes")
			next.ServeHTTP(w, r)
		})
	})

	r := gin.New()
	r.GET("/blocked", blocking, handler)
	r.GET("/passed", passing, handler)

	w := serve(r, http.MethodGet, "/blocked")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Zero(t, reached)

	w = serve(r, http.MethodGet, "/passed")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "yes", w.Body.String(), "the wrapped request reaches gin")
	assert.Equal(t, 1, reached)
}

func TestOrderClause(t *testing.T) {
	allowed := []string{"created_at", "views"}
	tests := []struct {
		ordering string
		expected string
	}{
		{"", "created_at DESC"},
		{"views", "views ASC"},
		{"-views", "views DESC"},
		{"title", "created_at DESC"},
		{"-created_at;DROP TABLE posts", "created_at DESC"},
		{"--views", "created_at DESC"},
	}
	for _, tt := range tests {
		t.Run(tt.ordering, func(t *testing.T) {
			assert.Equal(t, tt.expected, OrderClause(tt.ordering, allowed, "created_at DESC"))
		})
	}
}

func TestParseListParams(t *testing.T) {
	var got ListParams
	r := gin.New()
	r.GET("/", func(c *gin.Context) { got = ParseListParams(c) })

	serve(r, http.MethodGet, "/?page=3&page_size=500&search=+go+&ordering=-views")
	assert.Equal(t, ListParams{Page: 3, PageSize: MaxPageSize, Search: "go", Ordering: "-views"}, got)
	assert.Equal(t, 200, got.Offset())

	serve(r, http.MethodGet, "/?page=-1&page_size=abc")
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, DefaultPageSize, got.PageSize)

	page := NewPage[int](got, 0, nil)
	assert.NotNil(t, page.Results)
}

func TestOptional(t *testing.T) {
	var in struct {
		Absent  Optional[string] `json:"absent"`
		Null    Optional[string] `json:"null"`
		Present Optional[uint]   `json:"present"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"null": null, "present": 7}`), &in))

	assert.False(t, in.Absent.Set)
	assert.False(t, in.Absent.Present())

	assert.True(t, in.Null.Set)
	assert.False(t, in.Null.Present())
	assert.Equal(t, "", in.Null.Get())

	assert.True(t, in.Present.Present())
	assert.EqualValues(t, 7, in.Present.Get())

	out, err := json.Marshal(Some("x"))
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(out))
	out, err = json.Marshal(Null[string]())
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		detail string
	}{
		{Validation("bad %s", "input"), http.StatusBadRequest, "bad input"},
		{Conflict("Email already registered"), http.StatusBadRequest, "Email already registered"},
		{Unauthenticated("no"), http.StatusUnauthorized, "no"},
		{Forbidden("nope"), http.StatusForbidden, "nope"},
		{NotFound("Post"), http.StatusNotFound, "Post not found"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.detail, func(t *testing.T) {
			r := gin.New()
			r.GET("/", func(c *gin.Context) { RespondError(c, tt.err) })
			w := serve(r, http.MethodGet, "/")
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, `{"detail":"`+tt.detail+`"}`, w.Body.String())
		})
	}

	assert.ErrorIs(t, NotFound("Post"), ErrNotFound)
	assert.NotErrorIs(t, NotFound("Post"), ErrConflict)
}
