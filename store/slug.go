package store

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"inkpress/common"
)

// Slugify derives a URL slug from a title or name.
func Slugify(s string) string {
	return slug.Make(s)
}

// slugTaken reports whether another row of table already uses slug.
func slugTaken(tx *gorm.DB, table, slug string, exceptID uint) (bool, error) {
	var n int64
	q := tx.Table(table).Where("slug = ?", slug)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// slugSizes mirrors the slug column sizes in models.
var slugSizes = map[string]int{"posts": 220, "categories": 120, "tags": 60}

// slugSuffixRoom is left free in a derived slug for a "-N" suffix.
const slugSuffixRoom = 10

// truncateSlug cuts s to at most max bytes without leaving a trailing
// hyphen. Slugify output is ASCII, so byte offsets are safe.
func truncateSlug(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimRight(s[:max], "-")
}

// resolveSlug applies the slug policy. An explicit slug must be free or the
// call fails with Conflict; a slug derived from source gets -2, -3, ...
// appended until it is free.
func resolveSlug(tx *gorm.DB, table, explicit, source string, exceptID uint) (string, error) {
	size := slugSizes[table]
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if size > 0 && len(explicit) > size {
			return "", common.Validation("slug must be at most %d characters", size)
		}
		taken, err := slugTaken(tx, table, explicit, exceptID)
		if err != nil {
			return "", err
		}
		if taken {
			return "", common.Conflict("This slug is already in use.")
		}
		return explicit, nil
	}

	base := Slugify(source)
	if size > 0 {
		base = truncateSlug(base, size-slugSuffixRoom)
	}
	if base == "" {
		return "", common.Validation("Cannot derive a slug from %q", source)
	}
	candidate := base
	for n := 2; ; n++ {
		taken, err := slugTaken(tx, table, candidate, exceptID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
