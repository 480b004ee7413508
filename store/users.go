package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"inkpress/common"
	"inkpress/models"
)

// UserPatch is the self-service profile edit.
type UserPatch struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Bio       *string `json:"bio"`
}

// UserStats are the counters shown on a user's detail view.
type UserStats struct {
	PostsCount    int64 `json:"posts_count"`
	CommentsCount int64 `json:"comments_count"`
}

// CreateUser inserts u. A duplicate email is a Conflict.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = models.RoleSubscriber
	}
	err := s.conn(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return common.Conflict("Email already registered")
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err, "User")
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error; err != nil {
		return nil, translate(err, "User")
	}
	return &u, nil
}

func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int64
	err := s.conn(ctx).Model(&models.User{}).Where("email = ?", NormalizeEmail(email)).Count(&n).Error
	return n > 0, err
}

func (s *Store) ListUsers(ctx context.Context, p common.ListParams) (common.Page[models.User], error) {
	q := reusable(like(s.conn(ctx).Model(&models.User{}), p.Search, "first_name", "last_name", "email"))

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return common.Page[models.User]{}, err
	}
	var users []models.User
	err := paginate(q, p).
		Order(common.OrderClause(p.Ordering, []string{"created_at", "first_name"}, "created_at DESC")).
		Find(&users).Error
	if err != nil {
		return common.Page[models.User]{}, err
	}
	return common.NewPage(p, count, users), nil
}

func (s *Store) UserStats(ctx context.Context, id uint) (UserStats, error) {
	var st UserStats
	db := s.conn(ctx)
	if err := db.Model(&models.Post{}).Where("author_id = ?", id).Count(&st.PostsCount).Error; err != nil {
		return st, err
	}
	err := db.Model(&models.Comment{}).Where("author_id = ?", id).Count(&st.CommentsCount).Error
	return st, err
}

func (s *Store) UpdateUser(ctx context.Context, id uint, in UserPatch) (*models.User, error) {
	updates := map[string]any{}
	if in.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Bio != nil {
		updates["bio"] = *in.Bio
	}
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		if email == "" {
			return nil, common.Validation("email may not be blank")
		}
		updates["email"] = email
	}
	if err := s.updateUserColumns(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) SetRole(ctx context.Context, id uint, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, common.Validation("%q is not a valid role", role)
	}
	if err := s.updateUserColumns(ctx, id, map[string]any{"role": role}); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) SetActive(ctx context.Context, id uint, active bool) (*models.User, error) {
	if err := s.updateUserColumns(ctx, id, map[string]any{"is_active": active}); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) SetStaff(ctx context.Context, id uint, staff bool) error {
	return s.updateUserColumns(ctx, id, map[string]any{"is_staff": staff})
}

func (s *Store) SetPassword(ctx context.Context, id uint, hash string) error {
	return s.updateUserColumns(ctx, id, map[string]any{"password_hash": hash})
}

func (s *Store) SetProfileImage(ctx context.Context, id uint, ref string) (*models.User, error) {
	if err := s.updateUserColumns(ctx, id, map[string]any{"profile_image": ref}); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) updateUserColumns(ctx context.Context, id uint, updates map[string]any) error {
	if len(updates) == 0 {
		_, err := s.GetUser(ctx, id)
		return err
	}
	res := s.conn(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return common.Conflict("Email already registered")
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("User")
	}
	return nil
}

// DeleteUser removes the user with their posts, comments and likes. The
// like counters on content they liked are decremented to match.
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}

		liked := tx.Model(&models.PostLike{}).Select("post_id").Where("user_id = ?", id)
		if err := decrementLikes(tx, &models.Post{}, "id IN (?)", liked); err != nil {
			return err
		}
		likedComments := tx.Model(&models.CommentLike{}).Select("comment_id").Where("user_id = ?", id)
		if err := decrementLikes(tx, &models.Comment{}, "id IN (?)", likedComments); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.PostLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}

		var postIDs []uint
		if err := tx.Model(&models.Post{}).Where("author_id = ?", id).Pluck("id", &postIDs).Error; err != nil {
			return err
		}
		if err := deletePosts(tx, postIDs); err != nil {
			return err
		}

		var commentIDs []uint
		if err := tx.Model(&models.Comment{}).Where("author_id = ?", id).Pluck("id", &commentIDs).Error; err != nil {
			return err
		}
		if len(commentIDs) > 0 {
			if err := deleteComments(tx, commentIDs); err != nil {
				return err
			}
		}
		return tx.Delete(&models.User{}, id).Error
	})
	return translate(err, "User")
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
