package cache

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

type entry struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Options configures Middleware.
type Options struct {
	TTL time.Duration
	// Cached lists the path prefixes whose anonymous GETs are cached.
	Cached []string
	// Quiet lists path.Match patterns of writes that never change cached
	// content, such as logins and view counters. They do not purge.
	Quiet []string
}

// Middleware serves anonymous GET requests under one of opts.Cached from
// backend. A successful write purges the whole cache, since one write can
// change many listings, unless it matches opts.Quiet.
func Middleware(backend Backend, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			if c.Writer.Status() < http.StatusBadRequest && !quiet(c.Request.URL.Path, opts.Quiet) {
				if err := backend.Purge(ctx); err != nil {
					slog.Warn("cache purge failed", "error", err)
				}
			}
			return
		}

		if c.Request.Method != http.MethodGet || c.GetHeader("Authorization") != "" || !cacheable(c.Request.URL.Path, opts.Cached) {
			c.Next()
			return
		}

		key := generateHash(c.Request.URL.RequestURI())
		if raw, found, err := backend.Get(ctx, key); err != nil {
			slog.Warn("cache read failed", "error", err)
		} else if found {
			var e entry
			if err := json.Unmarshal(raw, &e); err == nil {
				c.Header("X-Cache", "HIT")
				c.Data(http.StatusOK, e.ContentType, e.Body)
				c.Abort()
				return
			}
		}

		c.Header("X-Cache", "MISS")
		writer := &responseWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = writer
		c.Next()

		if c.Writer.Status() != http.StatusOK {
			return
		}
		raw, err := json.Marshal(entry{ContentType: c.Writer.Header().Get("Content-Type"), Body: writer.body.Bytes()})
		if err != nil {
			return
		}
		if err := backend.Set(ctx, key, raw, opts.TTL); err != nil {
			slog.Warn("cache write failed", "error", err)
		}
	}
}

func quiet(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

func cacheable(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
