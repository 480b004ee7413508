// Package present shapes models into API response bodies.
package present

import (
	"time"

	"inkpress/media"
	"inkpress/models"
)

// Presenter resolves stored media keys to URLs while rendering.
type Presenter struct {
	media media.Storage
}

func New(st media.Storage) *Presenter {
	return &Presenter{media: st}
}

type User struct {
	ID           uint        `json:"id"`
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone"`
	Bio          string      `json:"bio"`
	ProfileImage *string     `json:"profile_image"`
	Role         models.Role `json:"role"`
	IsStaff      bool        `json:"is_staff"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type UserDetail struct {
	User
	PostsCount    int64 `json:"posts_count"`
	CommentsCount int64 `json:"comments_count"`
}

func (p *Presenter) User(u *models.User) *User {
	if u == nil {
		return nil
	}
	return &User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Phone:        u.Phone,
		Bio:          u.Bio,
		ProfileImage: media.URL(p.media, u.ProfileImage),
		Role:         u.Role,
		IsStaff:      u.IsStaff,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (p *Presenter) UserDetail(u *models.User, posts, comments int64) UserDetail {
	return UserDetail{User: *p.User(u), PostsCount: posts, CommentsCount: comments}
}

func (p *Presenter) Users(us []models.User) []*User {
	out := make([]*User, len(us))
	for i := range us {
		out[i] = p.User(&us[i])
	}
	return out
}

type Settings struct {
	ID                     uint           `json:"id"`
	SiteTitle              string         `json:"site_title"`
	SiteDescription        string         `json:"site_description"`
	Logo                   *string        `json:"logo"`
	Favicon                string         `json:"favicon"`
	EnableComments         bool           `json:"enable_comments"`
	EnableGuestComments    bool           `json:"enable_guest_comments"`
	RequireCommentApproval bool           `json:"require_comment_approval"`
	PostsPerPage           uint           `json:"posts_per_page"`
	Features               map[string]any `json:"features"`
}

func (p *Presenter) Settings(s *models.SiteSettings) Settings {
	features := map[string]any(s.Features)
	if features == nil {
		features = map[string]any{}
	}
	return Settings{
		ID:                     s.ID,
		SiteTitle:              s.SiteTitle,
		SiteDescription:        s.SiteDescription,
		Logo:                   media.URL(p.media, s.Logo),
		Favicon:                s.Favicon,
		EnableComments:         s.EnableComments,
		EnableGuestComments:    s.EnableGuestComments,
		RequireCommentApproval: s.RequireCommentApproval,
		PostsPerPage:           s.PostsPerPage,
		Features:               features,
	}
}
