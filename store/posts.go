package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkpress/common"
	"inkpress/models"
	"inkpress/policy"
	"inkpress/rules"
)

// PostInput carries a create, full update or partial update of a post.
// Unset fields keep their current value on update.
type PostInput struct {
	Title          common.Optional[string]            `json:"title"`
	Slug           common.Optional[string]            `json:"slug"`
	CategoryID     common.Optional[uint]              `json:"category"`
	TagIDs         common.Optional[[]uint]            `json:"tag_ids"`
	Content        common.Optional[string]            `json:"content"`
	Status         common.Optional[models.PostStatus] `json:"status"`
	IsFeatured     common.Optional[bool]              `json:"is_featured"`
	SeoTitle       common.Optional[string]            `json:"seo_title"`
	SeoDescription common.Optional[string]            `json:"seo_description"`
	SeoKeywords    common.Optional[string]            `json:"seo_keywords"`
	ScheduledFor   common.Optional[time.Time]         `json:"scheduled_for"`
}

// PostFilter narrows a post listing.
type PostFilter struct {
	Scope      policy.PostScope
	Status     models.PostStatus
	CategoryID uint
	AuthorID   uint
	Featured   *bool
}

var postOrdering = []string{"created_at", "views", "likes"}

const newestFirst = "posts.created_at DESC"

func withPostRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Author").Preload("Category").Preload("Tags")
}

func (s *Store) ListPosts(ctx context.Context, f PostFilter, p common.ListParams) (common.Page[models.Post], error) {
	q := postScope(s.conn(ctx).Model(&models.Post{}), f.Scope)
	if f.Status != "" {
		q = q.Where("posts.status = ?", f.Status)
	}
	if f.CategoryID != 0 {
		q = q.Where("posts.category_id = ?", f.CategoryID)
	}
	if f.AuthorID != 0 {
		q = q.Where("posts.author_id = ?", f.AuthorID)
	}
	if f.Featured != nil {
		q = q.Where("posts.is_featured = ?", *f.Featured)
	}
	q = reusable(like(q, p.Search, "posts.title", "posts.content", "posts.seo_description"))

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return common.Page[models.Post]{}, err
	}

	var posts []models.Post
	err := withPostRelations(paginate(q, p)).
		Order(common.OrderClause(p.Ordering, postOrdering, newestFirst)).
		Find(&posts).Error
	if err != nil {
		return common.Page[models.Post]{}, err
	}
	return common.NewPage(p, count, posts), nil
}

// PublishedPosts is every published post, newest first.
func (s *Store) PublishedPosts(ctx context.Context, p common.ListParams) (common.Page[models.Post], error) {
	return s.ListPosts(ctx, PostFilter{Scope: policy.PublishedPosts}, common.ListParams{
		Page: p.Page, PageSize: p.PageSize,
	})
}

func (s *Store) FeaturedPosts(ctx context.Context, limit int) ([]models.Post, error) {
	return s.topPosts(ctx, limit, newestFirst, "posts.is_featured = ?", true)
}

func (s *Store) RecentPosts(ctx context.Context, limit int) ([]models.Post, error) {
	return s.topPosts(ctx, limit, newestFirst)
}

func (s *Store) TrendingPosts(ctx context.Context, limit int) ([]models.Post, error) {
	return s.topPosts(ctx, limit, "posts.views DESC, posts.created_at DESC")
}

func (s *Store) topPosts(ctx context.Context, limit int, order string, where ...any) ([]models.Post, error) {
	q := postScope(s.conn(ctx).Model(&models.Post{}), policy.PublishedPosts)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	var posts []models.Post
	err := withPostRelations(q).Order(order).Limit(limit).Find(&posts).Error
	return posts, err
}

// RelatedPosts returns published posts sharing the category or any tag of
// post, excluding post itself.
func (s *Store) RelatedPosts(ctx context.Context, post *models.Post, limit int) ([]models.Post, error) {
	var tagIDs []uint
	for _, t := range post.Tags {
		tagIDs = append(tagIDs, t.ID)
	}
	if post.CategoryID == nil && len(tagIDs) == 0 {
		return []models.Post{}, nil
	}

	var conds []string
	var args []any
	if post.CategoryID != nil {
		conds = append(conds, "posts.category_id = ?")
		args = append(args, *post.CategoryID)
	}
	if len(tagIDs) > 0 {
		conds = append(conds, "posts.id IN (SELECT post_id FROM post_tags WHERE tag_id IN ?)")
		args = append(args, tagIDs)
	}

	var posts []models.Post
	err := withPostRelations(postScope(s.conn(ctx).Model(&models.Post{}), policy.PublishedPosts)).
		Where("("+strings.Join(conds, " OR ")+")", args...).
		Where("posts.id <> ?", post.ID).
		Order(newestFirst).
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// GetPost loads a post with its relations if scope lets the reader see it.
// It never changes state, so a due scheduled post stays scheduled here.
func (s *Store) GetPost(ctx context.Context, id uint, scope policy.PostScope) (*models.Post, error) {
	var post models.Post
	err := withPostRelations(postScope(s.conn(ctx), scope)).First(&post, id).Error
	if err != nil {
		return nil, translate(err, "Post")
	}
	return &post, nil
}

func (s *Store) GetPostBySlug(ctx context.Context, slug string, scope policy.PostScope) (*models.Post, error) {
	var post models.Post
	err := withPostRelations(postScope(s.conn(ctx), scope)).Where("posts.slug = ?", slug).First(&post).Error
	if err != nil {
		return nil, translate(err, "Post")
	}
	return &post, nil
}

// CommentCounts returns the number of visible comments per post id.
func (s *Store) CommentCounts(ctx context.Context, postIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		PostID uint
		N      int64
	}
	err := commentScope(s.conn(ctx).Model(&models.Comment{}), policy.VisibleComments).
		Select("post_id, COUNT(*) AS n").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.PostID] = r.N
	}
	return counts, nil
}

func (s *Store) UserLikedPost(ctx context.Context, postID, userID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	var n int64
	err := s.conn(ctx).Model(&models.PostLike{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&n).Error
	return n > 0, err
}

func (s *Store) CreatePost(ctx context.Context, authorID uint, in PostInput) (*models.Post, error) {
	if strings.TrimSpace(in.Title.Get()) == "" {
		return nil, common.Validation("title is required")
	}
	if strings.TrimSpace(in.Content.Get()) == "" {
		return nil, common.Validation("content is required")
	}

	post := models.Post{AuthorID: authorID, Status: models.StatusDraft}
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.applyPostInput(tx, &post, in); err != nil {
			return err
		}
		return tx.Omit("Author", "Category").Create(&post).Error
	})
	if err != nil {
		return nil, translate(err, "Post")
	}
	return s.GetPost(ctx, post.ID, policy.AllPosts)
}

// UpdatePost applies in to the post. With full set, title and content
// must be present as for a create.
func (s *Store) UpdatePost(ctx context.Context, id uint, in PostInput, full bool) (*models.Post, error) {
	if full && (strings.TrimSpace(in.Title.Get()) == "" || strings.TrimSpace(in.Content.Get()) == "") {
		return nil, common.Validation("title and content are required")
	}

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Preload("Tags").First(&post, id).Error; err != nil {
			return err
		}
		if err := s.applyPostInput(tx, &post, in); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations, "views", "likes").Save(&post).Error; err != nil {
			return err
		}
		if in.TagIDs.Set {
			return tx.Model(&post).Association("Tags").Replace(post.Tags)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "Post")
	}
	return s.GetPost(ctx, id, policy.AllPosts)
}

func (s *Store) applyPostInput(tx *gorm.DB, post *models.Post, in PostInput) error {
	if in.Title.Set {
		title := strings.TrimSpace(in.Title.Get())
		if title == "" {
			return common.Validation("title may not be blank")
		}
		post.Title = title
	}
	if in.Content.Set {
		if strings.TrimSpace(in.Content.Get()) == "" {
			return common.Validation("content may not be blank")
		}
		post.Content = in.Content.Get()
	}
	if post.Slug == "" || (in.Slug.Set && in.Slug.Get() != post.Slug) {
		slug, err := resolveSlug(tx, "posts", in.Slug.Get(), post.Title, post.ID)
		if err != nil {
			return err
		}
		post.Slug = slug
	}
	if in.CategoryID.Set {
		post.CategoryID = in.CategoryID.Value
		post.Category = nil
		if post.CategoryID != nil {
			var n int64
			if err := tx.Model(&models.Category{}).Where("id = ?", *post.CategoryID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return common.Validation("Invalid category %d", *post.CategoryID)
			}
		}
	}
	if in.TagIDs.Set {
		ids := in.TagIDs.Get()
		post.Tags = []models.Tag{}
		if len(ids) > 0 {
			if err := tx.Where("id IN ?", ids).Find(&post.Tags).Error; err != nil {
				return err
			}
			if len(post.Tags) != len(uniqueIDs(ids)) {
				return common.Validation("tag_ids contains an unknown tag")
			}
		}
	}
	if in.IsFeatured.Set {
		post.IsFeatured = in.IsFeatured.Get()
	}
	if in.SeoTitle.Set {
		post.SeoTitle = in.SeoTitle.Get()
	}
	if in.SeoDescription.Set {
		post.SeoDescription = in.SeoDescription.Get()
	}
	if in.SeoKeywords.Set {
		post.SeoKeywords = in.SeoKeywords.Get()
	}
	if in.ScheduledFor.Set {
		post.ScheduledFor = in.ScheduledFor.Value
	}

	now := s.now()
	status := post.Status
	if in.Status.Present() {
		status = *in.Status.Value
	}
	if err := rules.ApplyStatus(post, status, now); err != nil {
		return err
	}
	rules.PublishIfDue(post, now)
	return nil
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// SetFeaturedImage stores the blob reference of an uploaded image.
func (s *Store) SetFeaturedImage(ctx context.Context, id uint, ref string) error {
	res := s.conn(ctx).Model(&models.Post{}).Where("id = ?", id).Update("featured_image", ref)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("Post")
	}
	return nil
}

// DeletePost removes the post and everything hanging off it.
func (s *Store) DeletePost(ctx context.Context, id uint) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Post{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
		return deletePosts(tx, []uint{id})
	})
	return translate(err, "Post")
}

func deletePosts(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	var commentIDs []uint
	if err := tx.Model(&models.Comment{}).Where("post_id IN ?", ids).Pluck("id", &commentIDs).Error; err != nil {
		return err
	}
	if len(commentIDs) > 0 {
		if err := tx.Where("comment_id IN ?", commentIDs).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", commentIDs).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("post_id IN ?", ids).Delete(&models.PostLike{}).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM post_tags WHERE post_id IN ?", ids).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&models.Post{}).Error
}

// touchPost runs the lazy scheduled transition on a single row. Every
// write path that targets an existing post calls it first.
func (s *Store) touchPost(tx *gorm.DB, id uint) error {
	var post models.Post
	err := tx.Select("id", "status", "scheduled_for", "published_at").First(&post, id).Error
	if err != nil {
		return err
	}
	if !rules.PublishIfDue(&post, s.now()) {
		return nil
	}
	return tx.Model(&post).UpdateColumns(map[string]any{
		"status":       post.Status,
		"published_at": post.PublishedAt,
	}).Error
}

// visiblePost confirms a post is in scope inside a transaction.
func visiblePost(tx *gorm.DB, id uint, scope policy.PostScope) error {
	var n int64
	if err := postScope(tx.Model(&models.Post{}), scope).Where("posts.id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementViews bumps the view counter in one statement and returns the
// new value.
func (s *Store) IncrementViews(ctx context.Context, id uint, scope policy.PostScope) (uint, error) {
	var views uint
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.touchPost(tx, id); err != nil {
			return err
		}
		if err := visiblePost(tx, id, scope); err != nil {
			return err
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", id).
			UpdateColumn("views", gorm.Expr("views + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", id).Pluck("views", &views).Error
	})
	return views, translate(err, "Post")
}

// LikePost records userID's like. created is false when the like already
// existed, in which case the counter is untouched.
func (s *Store) LikePost(ctx context.Context, id, userID uint, scope policy.PostScope) (likes uint, created bool, err error) {
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.touchPost(tx, id); err != nil {
			return err
		}
		if err := visiblePost(tx, id, scope); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.PostLike{PostID: id, UserID: userID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			created = true
			if err := tx.Model(&models.Post{}).Where("id = ?", id).
				UpdateColumn("likes", gorm.Expr("likes + ?", 1)).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Post{}).Where("id = ?", id).Pluck("likes", &likes).Error
	})
	return likes, created, translate(err, "Post")
}

// UnlikePost removes userID's like. Removing a like that does not exist
// is a no-op that reports the current count.
func (s *Store) UnlikePost(ctx context.Context, id, userID uint, scope policy.PostScope) (uint, error) {
	var likes uint
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.touchPost(tx, id); err != nil {
			return err
		}
		if err := visiblePost(tx, id, scope); err != nil {
			return err
		}
		res := tx.Where("post_id = ? AND user_id = ?", id, userID).Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			if err := decrementLikes(tx, &models.Post{}, "id = ?", id); err != nil {
				return err
			}
		}
		return tx.Model(&models.Post{}).Where("id = ?", id).Pluck("likes", &likes).Error
	})
	return likes, translate(err, "Post")
}

func decrementLikes(tx *gorm.DB, model any, where string, args ...any) error {
	return tx.Model(model).Where(where, args...).
		UpdateColumn("likes", gorm.Expr("CASE WHEN likes > 0 THEN likes - 1 ELSE 0 END")).Error
}

// PublishDue publishes every scheduled post whose time has passed and
// returns how many changed.
func (s *Store) PublishDue(ctx context.Context) (int, error) {
	now := s.now()
	published := 0
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var due []models.Post
		err := tx.Select("id", "status", "scheduled_for", "published_at").
			Where("status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?", models.StatusScheduled, now).
			Find(&due).Error
		if err != nil {
			return err
		}
		for i := range due {
			if !rules.PublishIfDue(&due[i], now) {
				continue
			}
			err := tx.Model(&due[i]).UpdateColumns(map[string]any{
				"status":       due[i].Status,
				"published_at": due[i].PublishedAt,
			}).Error
			if err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// PostOwner returns the author id of a post regardless of visibility.
func (s *Store) PostOwner(ctx context.Context, id uint) (uint, error) {
	var post models.Post
	err := s.conn(ctx).Select("id", "author_id").First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, common.NotFound("Post")
	}
	return post.AuthorID, err
}
