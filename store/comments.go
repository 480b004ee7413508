package store

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkpress/common"
	"inkpress/models"
	"inkpress/policy"
	"inkpress/rules"
)

// CommentInput is the writable part of a comment. Name and email are
// only used for guest comments.
type CommentInput struct {
	PostID   uint   `json:"post"`
	ParentID *uint  `json:"parent"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Message  string `json:"message"`
}

// CommentPatch edits an existing comment; nil fields stay unchanged.
type CommentPatch struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Message *string `json:"message"`
}

// CommentFilter narrows a comment listing. TopLevel restricts to comments
// without a parent and wins over ParentID.
type CommentFilter struct {
	Scope    policy.CommentScope
	PostID   uint
	ParentID uint
	TopLevel bool
	Approved *bool
}

func (s *Store) ListComments(ctx context.Context, f CommentFilter, p common.ListParams) (common.Page[models.Comment], error) {
	q := commentScope(s.conn(ctx).Model(&models.Comment{}), f.Scope)
	if f.PostID != 0 {
		q = q.Where("comments.post_id = ?", f.PostID)
	}
	switch {
	case f.TopLevel:
		q = q.Where("comments.parent_id IS NULL")
	case f.ParentID != 0:
		q = q.Where("comments.parent_id = ?", f.ParentID)
	}
	if f.Approved != nil {
		q = q.Where("comments.approved = ?", *f.Approved)
	}
	q = reusable(q)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return common.Page[models.Comment]{}, err
	}

	var comments []models.Comment
	err := paginate(q, p).
		Preload("Author").
		Order(common.OrderClause(p.Ordering, []string{"created_at", "likes"}, "comments.created_at DESC")).
		Find(&comments).Error
	if err != nil {
		return common.Page[models.Comment]{}, err
	}
	return common.NewPage(p, count, comments), nil
}

func (s *Store) GetComment(ctx context.Context, id uint, scope policy.CommentScope) (*models.Comment, error) {
	var c models.Comment
	if err := commentScope(s.conn(ctx), scope).Preload("Author").First(&c, id).Error; err != nil {
		return nil, translate(err, "Comment")
	}
	return &c, nil
}

// Replies returns the comments under any of parentIDs, oldest first.
func (s *Store) Replies(ctx context.Context, parentIDs []uint, scope policy.CommentScope) ([]models.Comment, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var out []models.Comment
	err := commentScope(s.conn(ctx), scope).
		Preload("Author").
		Where("parent_id IN ?", parentIDs).
		Order("comments.created_at ASC").
		Find(&out).Error
	return out, err
}

// PostComments returns every comment on a post within scope, oldest
// first, for building a thread.
func (s *Store) PostComments(ctx context.Context, postID uint, scope policy.CommentScope) ([]models.Comment, error) {
	var out []models.Comment
	err := commentScope(s.conn(ctx), scope).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("comments.created_at ASC").
		Find(&out).Error
	return out, err
}

// CreateComment stores a new comment by author, or a guest comment when
// author is nil. The post must be visible within postScope. A reply's
// parent must be visible within parentScope and belong to the same post.
func (s *Store) CreateComment(ctx context.Context, author *models.User, in CommentInput, postScope policy.PostScope, parentScope policy.CommentScope) (*models.Comment, error) {
	settings, err := s.GetOrCreateSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.EnableComments {
		return nil, common.Validation("Comments are disabled")
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, common.Validation("message is required")
	}
	if in.PostID == 0 {
		return nil, common.Validation("post is required")
	}

	c := models.Comment{
		PostID:   in.PostID,
		ParentID: in.ParentID,
		Message:  in.Message,
		Approved: rules.InitialApproval(*settings),
	}
	if author != nil {
		c.AuthorID = &author.ID
		c.Name = strings.TrimSpace(author.FullName())
		c.Email = author.Email
	} else {
		c.Name, c.Email = strings.TrimSpace(in.Name), strings.TrimSpace(in.Email)
		if c.Name == "" || c.Email == "" {
			return nil, common.Validation("name and email are required for guest comments")
		}
	}

	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := visiblePost(tx, in.PostID, postScope); err != nil {
			return common.Validation("Invalid post %d", in.PostID)
		}
		if in.ParentID != nil {
			var parent models.Comment
			err := commentScope(tx, parentScope).Select("id", "post_id").First(&parent, *in.ParentID).Error
			if err != nil {
				return common.Validation("Invalid parent comment %d", *in.ParentID)
			}
			if parent.PostID != in.PostID {
				return common.Validation("Parent comment must belong to the same post")
			}
		}
		return tx.Omit("Author").Create(&c).Error
	})
	if err != nil {
		return nil, translate(err, "Comment")
	}
	return s.GetComment(ctx, c.ID, policy.AllComments)
}

func (s *Store) UpdateComment(ctx context.Context, id uint, in CommentPatch) (*models.Comment, error) {
	updates := map[string]any{}
	if in.Message != nil {
		if strings.TrimSpace(*in.Message) == "" {
			return nil, common.Validation("message may not be blank")
		}
		updates["message"] = *in.Message
	}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		updates["email"] = strings.TrimSpace(*in.Email)
	}
	if len(updates) > 0 {
		res := s.conn(ctx).Model(&models.Comment{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, common.NotFound("Comment")
		}
	}
	return s.GetComment(ctx, id, policy.AllComments)
}

// CommentOwner returns the author id of a comment, zero for a guest.
func (s *Store) CommentOwner(ctx context.Context, id uint) (uint, error) {
	var c models.Comment
	if err := s.conn(ctx).Select("id", "author_id").First(&c, id).Error; err != nil {
		return 0, translate(err, "Comment")
	}
	return deref(c.AuthorID), nil
}

// ModerateComment loads a comment, applies transition and saves the
// moderation flags.
func (s *Store) ModerateComment(ctx context.Context, id uint, transition func(*models.Comment)) (*models.Comment, error) {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Comment
		if err := tx.First(&c, id).Error; err != nil {
			return err
		}
		transition(&c)
		return tx.Model(&c).Select("approved", "is_spam").Updates(&c).Error
	})
	if err != nil {
		return nil, translate(err, "Comment")
	}
	return s.GetComment(ctx, id, policy.AllComments)
}

func (s *Store) DeleteComment(ctx context.Context, id uint) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Comment{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
		return deleteComments(tx, []uint{id})
	})
	return translate(err, "Comment")
}

// deleteComments removes ids, every reply below them and their likes.
func deleteComments(tx *gorm.DB, ids []uint) error {
	all := append([]uint(nil), ids...)
	frontier := ids
	for len(frontier) > 0 {
		var children []uint
		if err := tx.Model(&models.Comment{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
			return err
		}
		all = append(all, children...)
		frontier = children
	}
	if err := tx.Where("comment_id IN ?", all).Delete(&models.CommentLike{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", all).Delete(&models.Comment{}).Error
}

func visibleComment(tx *gorm.DB, id uint, scope policy.CommentScope) error {
	var n int64
	if err := commentScope(tx.Model(&models.Comment{}), scope).Where("comments.id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// LikeComment is idempotent per user and returns the current count.
func (s *Store) LikeComment(ctx context.Context, id, userID uint, scope policy.CommentScope) (uint, error) {
	var likes uint
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := visibleComment(tx, id, scope); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.CommentLike{CommentID: id, UserID: userID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			if err := tx.Model(&models.Comment{}).Where("id = ?", id).
				UpdateColumn("likes", gorm.Expr("likes + ?", 1)).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Comment{}).Where("id = ?", id).Pluck("likes", &likes).Error
	})
	return likes, translate(err, "Comment")
}

func (s *Store) UnlikeComment(ctx context.Context, id, userID uint, scope policy.CommentScope) (uint, error) {
	var likes uint
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := visibleComment(tx, id, scope); err != nil {
			return err
		}
		res := tx.Where("comment_id = ? AND user_id = ?", id, userID).Delete(&models.CommentLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			if err := decrementLikes(tx, &models.Comment{}, "id = ?", id); err != nil {
				return err
			}
		}
		return tx.Model(&models.Comment{}).Where("id = ?", id).Pluck("likes", &likes).Error
	})
	return likes, translate(err, "Comment")
}
