package store

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"inkpress/common"
	"inkpress/models"
)

// TermInput creates or patches a category or tag. A nil field is left
// unchanged on update.
type TermInput struct {
	Name *string `json:"name"`
	Slug *string `json:"slug"`
}

const categoryPostsCount = `(SELECT COUNT(*) FROM posts WHERE posts.category_id = categories.id AND posts.status = 'published') AS posts_count`

const tagPostsCount = `(SELECT COUNT(*) FROM post_tags JOIN posts ON posts.id = post_tags.post_id WHERE post_tags.tag_id = tags.id AND posts.status = 'published') AS posts_count`

var termOrdering = []string{"name", "created_at"}

func (s *Store) ListCategories(ctx context.Context, p common.ListParams) (common.Page[models.Category], error) {
	q := reusable(like(s.conn(ctx).Model(&models.Category{}), p.Search, "name"))

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return common.Page[models.Category]{}, err
	}

	var cats []models.Category
	err := paginate(q, p).
		Select("categories.*, " + categoryPostsCount).
		Order(common.OrderClause(p.Ordering, termOrdering, "name ASC")).
		Find(&cats).Error
	if err != nil {
		return common.Page[models.Category]{}, err
	}
	return common.NewPage(p, count, cats), nil
}

func (s *Store) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	var cat models.Category
	err := s.conn(ctx).Select("categories.*, "+categoryPostsCount).First(&cat, id).Error
	if err != nil {
		return nil, translate(err, "Category")
	}
	return &cat, nil
}

func (s *Store) CreateCategory(ctx context.Context, in TermInput) (*models.Category, error) {
	name := strings.TrimSpace(deref(in.Name))
	if name == "" {
		return nil, common.Validation("name is required")
	}

	cat := models.Category{Name: name}
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := resolveSlug(tx, "categories", deref(in.Slug), name, 0)
		if err != nil {
			return err
		}
		cat.Slug = slug
		return tx.Create(&cat).Error
	})
	if err != nil {
		return nil, translate(err, "Category")
	}
	return &cat, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id uint, in TermInput) (*models.Category, error) {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var cat models.Category
		if err := tx.First(&cat, id).Error; err != nil {
			return err
		}
		if err := patchTerm(tx, "categories", id, &cat.Name, &cat.Slug, in); err != nil {
			return err
		}
		return tx.Model(&cat).Select("name", "slug").Updates(&cat).Error
	})
	if err != nil {
		return nil, translate(err, "Category")
	}
	return s.GetCategory(ctx, id)
}

// DeleteCategory detaches the category's posts rather than deleting them.
func (s *Store) DeleteCategory(ctx context.Context, id uint) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Category{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Post{}).
			Where("category_id = ?", id).
			UpdateColumn("category_id", nil).Error
	})
	return translate(err, "Category")
}

func (s *Store) ListTags(ctx context.Context, p common.ListParams) (common.Page[models.Tag], error) {
	q := reusable(like(s.conn(ctx).Model(&models.Tag{}), p.Search, "name"))

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return common.Page[models.Tag]{}, err
	}

	var tags []models.Tag
	err := paginate(q, p).
		Select("tags.*, " + tagPostsCount).
		Order(common.OrderClause(p.Ordering, []string{"name"}, "name ASC")).
		Find(&tags).Error
	if err != nil {
		return common.Page[models.Tag]{}, err
	}
	return common.NewPage(p, count, tags), nil
}

// PopularTags ranks tags by how many published posts carry them.
func (s *Store) PopularTags(ctx context.Context, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.conn(ctx).
		Select("tags.*, " + tagPostsCount).
		Order("posts_count DESC").
		Order("name ASC").
		Limit(limit).
		Find(&tags).Error
	return tags, err
}

func (s *Store) GetTag(ctx context.Context, id uint) (*models.Tag, error) {
	var tag models.Tag
	if err := s.conn(ctx).Select("tags.*, "+tagPostsCount).First(&tag, id).Error; err != nil {
		return nil, translate(err, "Tag")
	}
	return &tag, nil
}

func (s *Store) CreateTag(ctx context.Context, in TermInput) (*models.Tag, error) {
	name := strings.TrimSpace(deref(in.Name))
	if name == "" {
		return nil, common.Validation("name is required")
	}

	tag := models.Tag{Name: name}
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := resolveSlug(tx, "tags", deref(in.Slug), name, 0)
		if err != nil {
			return err
		}
		tag.Slug = slug
		return tx.Create(&tag).Error
	})
	if err != nil {
		return nil, translate(err, "Tag")
	}
	return &tag, nil
}

func (s *Store) UpdateTag(ctx context.Context, id uint, in TermInput) (*models.Tag, error) {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var tag models.Tag
		if err := tx.First(&tag, id).Error; err != nil {
			return err
		}
		if err := patchTerm(tx, "tags", id, &tag.Name, &tag.Slug, in); err != nil {
			return err
		}
		return tx.Model(&tag).Select("name", "slug").Updates(&tag).Error
	})
	if err != nil {
		return nil, translate(err, "Tag")
	}
	return s.GetTag(ctx, id)
}

func (s *Store) DeleteTag(ctx context.Context, id uint) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Tag{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Exec("DELETE FROM post_tags WHERE tag_id = ?", id).Error
	})
	return translate(err, "Tag")
}

// patchTerm applies in to name and slug. Renaming without a slug keeps
// the existing slug; an explicit empty slug re-derives it from the name.
func patchTerm(tx *gorm.DB, table string, id uint, name, slug *string, in TermInput) error {
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		if n == "" {
			return common.Validation("name may not be blank")
		}
		*name = n
	}
	if in.Slug == nil || *in.Slug == *slug {
		return nil
	}
	resolved, err := resolveSlug(tx, table, *in.Slug, *name, id)
	if err != nil {
		return err
	}
	*slug = resolved
	return nil
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
