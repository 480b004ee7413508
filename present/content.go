package present

import (
	"bytes"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"inkpress/media"
	"inkpress/models"
)

// Raw HTML in post bodies is dropped, not passed through.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
)

// RenderMarkdown converts a post body to HTML. On failure the source is
// returned unchanged.
func RenderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return buf.String()
}

// Term is a category or tag nested inside a post.
type Term struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type PostItem struct {
	ID            uint              `json:"id"`
	Title         string            `json:"title"`
	Slug          string            `json:"slug"`
	Author        *User             `json:"author"`
	Category      *Term             `json:"category"`
	Tags          []Term            `json:"tags"`
	Content       string            `json:"content"`
	FeaturedImage *string           `json:"featured_image"`
	Status        models.PostStatus `json:"status"`
	Views         uint              `json:"views"`
	Likes         uint              `json:"likes"`
	IsFeatured    bool              `json:"is_featured"`
	PublishedAt   *time.Time        `json:"published_at"`
	CommentsCount int64             `json:"comments_count"`
	CreatedAt     time.Time         `json:"created_at"`
}

type PostDetail struct {
	ID             uint              `json:"id"`
	Title          string            `json:"title"`
	Slug           string            `json:"slug"`
	Author         *User             `json:"author"`
	Category       *Term             `json:"category"`
	Tags           []Term            `json:"tags"`
	Content        string            `json:"content"`
	ContentHTML    string            `json:"content_html"`
	FeaturedImage  *string           `json:"featured_image"`
	Status         models.PostStatus `json:"status"`
	Views          uint              `json:"views"`
	Likes          uint              `json:"likes"`
	IsFeatured     bool              `json:"is_featured"`
	SeoTitle       string            `json:"seo_title"`
	SeoDescription string            `json:"seo_description"`
	SeoKeywords    string            `json:"seo_keywords"`
	PublishedAt    *time.Time        `json:"published_at"`
	ScheduledFor   *time.Time        `json:"scheduled_for"`
	Comments       []*Comment        `json:"comments"`
	UserLiked      bool              `json:"user_liked"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func tagTerms(tags []models.Tag) []Term {
	out := make([]Term, 0, len(tags))
	for _, t := range tags {
		out = append(out, Term{ID: t.ID, Name: t.Name, Slug: t.Slug})
	}
	return out
}

func category(c *models.Category) *Term {
	if c == nil {
		return nil
	}
	return &Term{ID: c.ID, Name: c.Name, Slug: c.Slug}
}

func (p *Presenter) PostItem(post *models.Post, comments int64) PostItem {
	return PostItem{
		ID:            post.ID,
		Title:         post.Title,
		Slug:          post.Slug,
		Author:        p.User(post.Author),
		Category:      category(post.Category),
		Tags:          tagTerms(post.Tags),
		Content:       post.Content,
		FeaturedImage: media.URL(p.media, post.FeaturedImage),
		Status:        post.Status,
		Views:         post.Views,
		Likes:         post.Likes,
		IsFeatured:    post.IsFeatured,
		PublishedAt:   post.PublishedAt,
		CommentsCount: comments,
		CreatedAt:     post.CreatedAt,
	}
}

// PostItems renders a listing. counts maps post ids to visible comment
// counts; missing ids count as zero.
func (p *Presenter) PostItems(posts []models.Post, counts map[uint]int64) []PostItem {
	out := make([]PostItem, len(posts))
	for i := range posts {
		out[i] = p.PostItem(&posts[i], counts[posts[i].ID])
	}
	return out
}

func (p *Presenter) PostDetail(post *models.Post, comments []*Comment, liked bool) PostDetail {
	if comments == nil {
		comments = []*Comment{}
	}
	return PostDetail{
		ID:             post.ID,
		Title:          post.Title,
		Slug:           post.Slug,
		Author:         p.User(post.Author),
		Category:       category(post.Category),
		Tags:           tagTerms(post.Tags),
		Content:        post.Content,
		ContentHTML:    RenderMarkdown(post.Content),
		FeaturedImage:  media.URL(p.media, post.FeaturedImage),
		Status:         post.Status,
		Views:          post.Views,
		Likes:          post.Likes,
		IsFeatured:     post.IsFeatured,
		SeoTitle:       post.SeoTitle,
		SeoDescription: post.SeoDescription,
		SeoKeywords:    post.SeoKeywords,
		PublishedAt:    post.PublishedAt,
		ScheduledFor:   post.ScheduledFor,
		Comments:       comments,
		UserLiked:      liked,
		CreatedAt:      post.CreatedAt,
		UpdatedAt:      post.UpdatedAt,
	}
}

type Comment struct {
	ID          uint       `json:"id"`
	Post        uint       `json:"post"`
	Author      *uint      `json:"author"`
	AuthorName  string     `json:"author_name"`
	AuthorImage *string    `json:"author_image"`
	Parent      *uint      `json:"parent"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	Message     string     `json:"message"`
	Approved    bool       `json:"approved"`
	IsSpam      bool       `json:"is_spam"`
	Likes       uint       `json:"likes"`
	Replies     []*Comment `json:"replies"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CommentOptions controls comment rendering. Emails are only shown to
// admins.
type CommentOptions struct {
	ShowEmail bool
}

func (p *Presenter) comment(c *models.Comment, opts CommentOptions) *Comment {
	out := &Comment{
		ID:         c.ID,
		Post:       c.PostID,
		Author:     c.AuthorID,
		AuthorName: c.Name,
		Parent:     c.ParentID,
		Name:       c.Name,
		Message:    c.Message,
		Approved:   c.Approved,
		IsSpam:     c.IsSpam,
		Likes:      c.Likes,
		Replies:    []*Comment{},
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if c.Author != nil {
		if name := c.Author.FullName(); name != "" {
			out.AuthorName = name
		}
		out.AuthorImage = media.URL(p.media, c.Author.ProfileImage)
	}
	if opts.ShowEmail {
		out.Email = c.Email
	}
	return out
}

// Comment renders one comment without its replies.
func (p *Presenter) Comment(c *models.Comment, opts CommentOptions) *Comment {
	return p.comment(c, opts)
}

// CommentThreads renders roots with replies nested beneath them.
// descendants may hold comments at any depth below the roots; entries
// whose parent is not reachable are dropped.
func (p *Presenter) CommentThreads(roots, descendants []models.Comment, opts CommentOptions) []*Comment {
	children := make(map[uint][]*models.Comment)
	for i := range descendants {
		c := &descendants[i]
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		}
	}

	var build func(c *models.Comment, seen map[uint]bool) *Comment
	build = func(c *models.Comment, seen map[uint]bool) *Comment {
		out := p.comment(c, opts)
		seen[c.ID] = true
		for _, child := range children[c.ID] {
			if seen[child.ID] {
				continue
			}
			out.Replies = append(out.Replies, build(child, seen))
		}
		return out
	}

	out := make([]*Comment, 0, len(roots))
	for i := range roots {
		out = append(out, build(&roots[i], map[uint]bool{}))
	}
	return out
}

// SplitThreads separates the top-level comments of a flat post listing
// from the replies.
func SplitThreads(all []models.Comment) (roots, replies []models.Comment) {
	for _, c := range all {
		if c.ParentID == nil {
			roots = append(roots, c)
		} else {
			replies = append(replies, c)
		}
	}
	return roots, replies
}
