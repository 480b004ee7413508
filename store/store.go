// Package store persists content with gorm and owns the relational rules
// the database alone does not enforce: slug uniqueness policy, explicit
// cascades, visibility scopes and atomic counters.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"inkpress/common"
	"inkpress/policy"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the time source used for publishing decisions.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Now() time.Time { return s.now() }

// DB exposes the handle for read-only reporting queries.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// translate classifies gorm errors. what names the entity for not found
// messages ("Post" becomes "Post not found").
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return common.NotFound(what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return common.Conflict("%s already exists", what)
	}
	return err
}

// like builds a case-insensitive LIKE clause over columns.
func like(db *gorm.DB, term string, columns ...string) *gorm.DB {
	if term == "" {
		return db
	}
	pattern := "%" + strings.ToLower(term) + "%"
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		parts[i] = "LOWER(" + col + ") LIKE ?"
		args[i] = pattern
	}
	return db.Where("("+strings.Join(parts, " OR ")+")", args...)
}

// reusable lets a filtered query be counted and then fetched.
func reusable(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{})
}

func paginate(db *gorm.DB, p common.ListParams) *gorm.DB {
	return db.Offset(p.Offset()).Limit(p.PageSize)
}

func postScope(db *gorm.DB, scope policy.PostScope) *gorm.DB {
	if scope == policy.AllPosts {
		return db
	}
	return db.Where("posts.status = ?", "published")
}

func commentScope(db *gorm.DB, scope policy.CommentScope) *gorm.DB {
	if scope == policy.AllComments {
		return db
	}
	return db.Where("comments.approved = ? AND comments.is_spam = ?", true, false)
}
