// Package testutil provides shared fixtures for package tests: a fresh
// in-memory database per test and a handful of row builders.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"inkpress/database"
	"inkpress/models"
)

// Epoch is a fixed instant tests use instead of the wall clock.
var Epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// NewDB opens a private in-memory sqlite database with every table
// migrated. Each call gets its own named database so parallel tests and
// the connection pool never see each other's rows.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Router returns a bare gin engine in test mode.
func Router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// Clock is a settable time source.
type Clock struct{ T time.Time }

func NewClock() *Clock { return &Clock{T: Epoch} }

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// User inserts a user. The password hash is a placeholder; use the
// identity package when a test needs to log in.
func User(t testing.TB, db *gorm.DB, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		IsActive:     true,
		PasswordHash: "x",
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

// Post inserts a post with the given status. Published posts get a
// published_at of Epoch.
func Post(t testing.TB, db *gorm.DB, author *models.User, title string, status models.PostStatus) *models.Post {
	t.Helper()
	p := &models.Post{
		Title:    title,
		Slug:     strings.ReplaceAll(strings.ToLower(title), " ", "-") + "-" + uuid.NewString()[:8],
		AuthorID: author.ID,
		Content:  "Body of " + title,
		Status:   status,
	}
	if status == models.StatusPublished {
		at := Epoch
		p.PublishedAt = &at
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create post %q: %v", title, err)
	}
	return p
}

// Comment inserts a comment on post by author (nil for a guest).
func Comment(t testing.TB, db *gorm.DB, post *models.Post, author *models.User, message string, approved bool) *models.Comment {
	t.Helper()
	c := &models.Comment{PostID: post.ID, Message: message, Approved: approved}
	if author != nil {
		c.AuthorID = &author.ID
	} else {
		c.Name, c.Email = "Guest", "guest@example.com"
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create comment: %v", err)
	}
	return c
}

// PNG is the smallest byte sequence sniffed as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// Multipart builds a form body with one file field.
func Multipart(t testing.TB, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

// Do sends a request to h. A non-nil body that is not an io.Reader is
// encoded as JSON. An empty token sends no Authorization header.
func Do(h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case io.Reader:
		r = b
	default:
		raw, _ := json.Marshal(b)
		r = bytes.NewReader(raw)
		contentType = "application/json"
	}
	req := httptest.NewRequest(method, path, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// JSON decodes a response body into a generic map.
func JSON(t testing.TB, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

// Upload posts a multipart form with one file field to h.
func Upload(t testing.TB, h http.Handler, path, token, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := Multipart(t, field, filename, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
