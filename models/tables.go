package models

import (
	"time"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleEditor      Role = "editor"
	RoleContributor Role = "contributor"
	RoleSubscriber  Role = "subscriber"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleContributor, RoleSubscriber:
		return true
	}
	return false
}

type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
	StatusScheduled PostStatus = "scheduled"
	StatusArchived  PostStatus = "archived"
)

func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusScheduled, StatusArchived:
		return true
	}
	return false
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FirstName    string    `gorm:"size:50" json:"first_name"`
	LastName     string    `gorm:"size:50" json:"last_name"`
	Email        string    `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Phone        string    `gorm:"size:20" json:"phone"`
	Bio          string    `gorm:"type:text" json:"bio"`
	ProfileImage string    `gorm:"size:255" json:"profile_image"`
	Role         Role      `gorm:"size:20;not null;default:subscriber" json:"role"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	IsStaff      bool      `gorm:"not null;default:false" json:"is_staff"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"` // never serialized
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName joins first and last name the way comment bylines show it.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Slug      string    `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `json:"created_at"`

	PostsCount int64 `gorm:"->;-:migration" json:"posts_count"`
}

type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:50;not null" json:"name"`
	Slug string `gorm:"size:60;uniqueIndex;not null" json:"slug"`

	PostsCount int64 `gorm:"->;-:migration" json:"posts_count"`
}

type Post struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Title          string     `gorm:"size:200;not null" json:"title"`
	Slug           string     `gorm:"size:220;uniqueIndex;not null" json:"slug"`
	AuthorID       uint       `gorm:"not null;index" json:"author_id"`
	Author         *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	CategoryID     *uint      `gorm:"index" json:"category_id"`
	Category       *Category  `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Tags           []Tag      `gorm:"many2many:post_tags;" json:"tags"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	FeaturedImage  string     `gorm:"size:255" json:"featured_image"`
	Status         PostStatus `gorm:"size:20;not null;default:draft;index" json:"status"`
	Views          uint       `gorm:"not null;default:0" json:"views"`
	Likes          uint       `gorm:"not null;default:0" json:"likes"`
	SeoTitle       string     `gorm:"size:255" json:"seo_title"`
	SeoDescription string     `gorm:"type:text" json:"seo_description"`
	SeoKeywords    string     `gorm:"size:255" json:"seo_keywords"`
	IsFeatured     bool       `gorm:"not null;default:false" json:"is_featured"`
	PublishedAt    *time.Time `gorm:"index" json:"published_at"`
	ScheduledFor   *time.Time `json:"scheduled_for"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post"`
	AuthorID  *uint     `gorm:"index" json:"author"`
	Author    *User     `gorm:"foreignKey:AuthorID" json:"-"`
	ParentID  *uint     `gorm:"index" json:"parent"`
	Name      string    `gorm:"size:100" json:"name"`
	Email     string    `gorm:"size:254" json:"email"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Approved  bool      `gorm:"not null;default:false;index" json:"approved"`
	IsSpam    bool      `gorm:"not null;default:false" json:"is_spam"`
	Likes     uint      `gorm:"not null;default:0" json:"likes"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Visible reports whether an anonymous reader may see the comment.
func (c Comment) Visible() bool {
	return c.Approved && !c.IsSpam
}

type PostLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_post_like" json:"post"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_post_like;index" json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

type CommentLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_comment_like" json:"comment"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_comment_like;index" json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

type NewsletterSubscriber struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"size:254;uniqueIndex;not null" json:"email"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// SettingsID is the primary key of the only SiteSettings row.
const SettingsID uint = 1

type SiteSettings struct {
	ID                     uint              `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SiteTitle              string            `gorm:"size:200;not null" json:"site_title"`
	SiteDescription        string            `gorm:"type:text" json:"site_description"`
	Logo                   string            `gorm:"size:255" json:"logo"`
	Favicon                string            `gorm:"size:255" json:"favicon"`
	EnableComments         bool              `gorm:"not null" json:"enable_comments"`
	EnableGuestComments    bool              `gorm:"not null" json:"enable_guest_comments"`
	RequireCommentApproval bool              `gorm:"not null" json:"require_comment_approval"`
	PostsPerPage           uint              `gorm:"not null" json:"posts_per_page"`
	Features               datatypes.JSONMap `json:"features"`
}

// DefaultSettings is what a fresh install starts with.
func DefaultSettings() SiteSettings {
	return SiteSettings{
		ID:                     SettingsID,
		SiteTitle:              "My CMS Blog",
		EnableComments:         true,
		EnableGuestComments:    false,
		RequireCommentApproval: true,
		PostsPerPage:           10,
		Features:               datatypes.JSONMap{},
	}
}

type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     string    `gorm:"size:254;not null" json:"email"`
	Subject   string    `gorm:"size:200;not null" json:"subject"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type BlacklistedToken struct {
	ID        uint      `gorm:"primaryKey"`
	JTI       string    `gorm:"size:64;uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}
