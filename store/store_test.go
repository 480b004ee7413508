package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"inkpress/common"
	"inkpress/models"
	"inkpress/policy"
	"inkpress/testutil"
)

type fixture struct {
	db     *gorm.DB
	store  *Store
	clock  *testutil.Clock
	ctx    context.Context
	author *models.User
	reader *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	return &fixture{
		db:     db,
		store:  New(db).WithClock(clock.Now),
		clock:  clock,
		ctx:    context.Background(),
		author: testutil.User(t, db, "author@example.com", models.RoleEditor),
		reader: testutil.User(t, db, "reader@example.com", models.RoleSubscriber),
	}
}

func page() common.ListParams {
	return common.ListParams{Page: 1, PageSize: common.DefaultPageSize}
}

func (f *fixture) createPost(t *testing.T, title string, status models.PostStatus) *models.Post {
	t.Helper()
	post, err := f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title:   common.Some(title),
		Content: common.Some("Content for " + title),
		Status:  common.Some(status),
	})
	require.NoError(t, err)
	return post
}

func (f *fixture) scheduledPost(t *testing.T, title string, in time.Duration) *models.Post {
	t.Helper()
	post, err := f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title:        common.Some(title),
		Content:      common.Some("later"),
		Status:       common.Some(models.StatusScheduled),
		ScheduledFor: common.Some(f.clock.Now().Add(in)),
	})
	require.NoError(t, err)
	return post
}

func (f *fixture) status(t *testing.T, id uint) models.PostStatus {
	t.Helper()
	var post models.Post
	require.NoError(t, f.db.First(&post, id).Error)
	return post.Status
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello-world"},
		{"Testing 123", "testing-123"},
		{"Multiple   Spaces", "multiple-spaces"},
		{"Rock & Roll!", "rock-and-roll"},
		{"Café com Açúcar", "cafe-com-acucar"},
		{"  -Leading and trailing-  ", "leading-and-trailing"},
		{"#!?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.input))
		})
	}
}

func TestSlugPolicy_FitsColumn(t *testing.T) {
	f := setup(t)
	title := strings.Repeat("Щ", 100)

	first := f.createPost(t, title, models.StatusDraft)
	second := f.createPost(t, title, models.StatusDraft)
	assert.NotEmpty(t, first.Slug)
	assert.LessOrEqual(t, len(first.Slug), 220-slugSuffixRoom)
	assert.Equal(t, first.Slug+"-2", second.Slug)
	assert.False(t, strings.HasSuffix(first.Slug, "-"))

	_, err := f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title:   common.Some("Explicit"),
		Slug:    common.Some(strings.Repeat("a", 221)),
		Content: common.Some("x"),
	})
	assert.ErrorIs(t, err, common.ErrValidation)

	assert.Equal(t, "abc", truncateSlug("abc-def", 4))
	assert.Equal(t, "abc-def", truncateSlug("abc-def", 20))
}

func TestSlugPolicy(t *testing.T) {
	f := setup(t)

	first := f.createPost(t, "Hello World", models.StatusDraft)
	second := f.createPost(t, "Hello World", models.StatusDraft)
	third := f.createPost(t, "Hello, World!", models.StatusDraft)
	assert.Equal(t, "hello-world", first.Slug)
	assert.Equal(t, "hello-world-2", second.Slug)
	assert.Equal(t, "hello-world-3", third.Slug)

	_, err := f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title:   common.Some("Another"),
		Slug:    common.Some("hello-world"),
		Content: common.Some("x"),
	})
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, 400, common.KindOf(err).Status())

	// Keeping your own slug on update is not a collision.
	_, err = f.store.UpdatePost(f.ctx, first.ID, PostInput{Slug: common.Some("hello-world")}, false)
	assert.NoError(t, err)

	_, err = f.store.UpdatePost(f.ctx, second.ID, PostInput{Slug: common.Some("hello-world")}, false)
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestCreatePost_Validation(t *testing.T) {
	f := setup(t)

	_, err := f.store.CreatePost(f.ctx, f.author.ID, PostInput{Content: common.Some("x")})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title: common.Some("t"), Content: common.Some("x"), Status: common.Some(models.StatusScheduled),
	})
	assert.ErrorIs(t, err, common.ErrValidation, "scheduled without scheduled_for")

	_, err = f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title: common.Some("t"), Content: common.Some("x"), CategoryID: common.Some(uint(999)),
	})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title: common.Some("t"), Content: common.Some("x"), TagIDs: common.Some([]uint{999}),
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestCreatePost_PublishStampsPublishedAt(t *testing.T) {
	f := setup(t)

	post := f.createPost(t, "Now", models.StatusPublished)
	require.NotNil(t, post.PublishedAt)
	assert.True(t, post.PublishedAt.Equal(testutil.Epoch))
	require.NotNil(t, post.Author)
	assert.Equal(t, f.author.ID, post.Author.ID)

	draft := f.createPost(t, "Later", models.StatusDraft)
	assert.Nil(t, draft.PublishedAt)
}

func TestListPosts_VisibilityScope(t *testing.T) {
	f := setup(t)
	f.createPost(t, "Published", models.StatusPublished)
	draft := f.createPost(t, "Draft", models.StatusDraft)
	f.createPost(t, "Archived", models.StatusArchived)
	f.scheduledPost(t, "Soon", time.Hour)

	public, err := f.store.ListPosts(f.ctx, PostFilter{Scope: policy.PublishedPosts}, page())
	require.NoError(t, err)
	assert.EqualValues(t, 1, public.Count)
	for _, p := range public.Results {
		assert.Equal(t, models.StatusPublished, p.Status)
	}

	all, err := f.store.ListPosts(f.ctx, PostFilter{Scope: policy.AllPosts}, page())
	require.NoError(t, err)
	assert.EqualValues(t, 4, all.Count)

	drafts, err := f.store.ListPosts(f.ctx, PostFilter{Scope: policy.AllPosts, Status: models.StatusDraft}, page())
	require.NoError(t, err)
	require.Len(t, drafts.Results, 1)
	assert.Equal(t, "Draft", drafts.Results[0].Title)

	// A hidden post is a 404 for the public scope.
	_, err = f.store.GetPost(f.ctx, draft.ID, policy.PublishedPosts)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.store.GetPost(f.ctx, draft.ID, policy.AllPosts)
	assert.NoError(t, err)
}

func TestListPosts_SearchOrderingPaging(t *testing.T) {
	f := setup(t)
	a := f.createPost(t, "Go Concurrency", models.StatusPublished)
	b := f.createPost(t, "Rust Ownership", models.StatusPublished)
	c := f.createPost(t, "Gardening", models.StatusPublished)
	f.db.Model(&models.Post{}).Where("id = ?", b.ID).UpdateColumn("views", 50)
	f.db.Model(&models.Post{}).Where("id = ?", c.ID).UpdateColumn("views", 10)

	res, err := f.store.ListPosts(f.ctx, PostFilter{}, common.ListParams{Page: 1, PageSize: 10, Search: "concurrency"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, a.ID, res.Results[0].ID)

	res, err = f.store.ListPosts(f.ctx, PostFilter{}, common.ListParams{Page: 1, PageSize: 10, Ordering: "-views"})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	assert.Equal(t, []uint{b.ID, c.ID, a.ID}, []uint{res.Results[0].ID, res.Results[1].ID, res.Results[2].ID})

	res, err = f.store.ListPosts(f.ctx, PostFilter{}, common.ListParams{Page: 2, PageSize: 2, Ordering: "views"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Count)
	require.Len(t, res.Results, 1)
	assert.Equal(t, b.ID, res.Results[0].ID)

	// Unknown ordering falls back to newest first rather than failing.
	_, err = f.store.ListPosts(f.ctx, PostFilter{}, common.ListParams{Page: 1, PageSize: 10, Ordering: "password_hash"})
	assert.NoError(t, err)
}

func TestScheduledPost_NotPublishedByRead(t *testing.T) {
	f := setup(t)
	post := f.scheduledPost(t, "Scheduled", time.Hour)

	f.clock.Advance(2 * time.Hour)

	_, err := f.store.GetPost(f.ctx, post.ID, policy.AllPosts)
	require.NoError(t, err)
	_, err = f.store.ListPosts(f.ctx, PostFilter{Scope: policy.AllPosts}, page())
	require.NoError(t, err)
	_, err = f.store.GetPost(f.ctx, post.ID, policy.PublishedPosts)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.Equal(t, models.StatusScheduled, f.status(t, post.ID))
}

func TestScheduledPost_PublishedByWrite(t *testing.T) {
	writes := map[string]func(f *fixture, id uint) error{
		"update": func(f *fixture, id uint) error {
			_, err := f.store.UpdatePost(f.ctx, id, PostInput{SeoTitle: common.Some("seo")}, false)
			return err
		},
		"like": func(f *fixture, id uint) error {
			_, _, err := f.store.LikePost(f.ctx, id, f.reader.ID, policy.PublishedPosts)
			return err
		},
		"unlike": func(f *fixture, id uint) error {
			_, err := f.store.UnlikePost(f.ctx, id, f.reader.ID, policy.PublishedPosts)
			return err
		},
		"views": func(f *fixture, id uint) error {
			_, err := f.store.IncrementViews(f.ctx, id, policy.PublishedPosts)
			return err
		},
		"sweep": func(f *fixture, id uint) error {
			n, err := f.store.PublishDue(f.ctx)
			if n != 1 {
				return assert.AnError
			}
			return err
		},
	}

	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			f := setup(t)
			post := f.scheduledPost(t, "Scheduled", time.Hour)

			// Not due yet: public writes cannot see it.
			if name != "update" && name != "sweep" {
				assert.ErrorIs(t, write(f, post.ID), common.ErrNotFound)
				assert.Equal(t, models.StatusScheduled, f.status(t, post.ID))
			}

			f.clock.Advance(2 * time.Hour)
			require.NoError(t, write(f, post.ID))

			got, err := f.store.GetPost(f.ctx, post.ID, policy.PublishedPosts)
			require.NoError(t, err)
			assert.Equal(t, models.StatusPublished, got.Status)
			require.NotNil(t, got.PublishedAt)
			assert.True(t, got.PublishedAt.Equal(f.clock.Now()))
		})
	}
}

func TestLikePost_Idempotent(t *testing.T) {
	f := setup(t)
	post := f.createPost(t, "Likeable", models.StatusPublished)

	likes, created, err := f.store.LikePost(f.ctx, post.ID, f.reader.ID, policy.PublishedPosts)
	require.NoError(t, err)
	assert.True(t, created)
	assert.EqualValues(t, 1, likes)

	likes, created, err = f.store.LikePost(f.ctx, post.ID, f.reader.ID, policy.PublishedPosts)
	require.NoError(t, err)
	assert.False(t, created)
	assert.EqualValues(t, 1, likes)

	likes, _, err = f.store.LikePost(f.ctx, post.ID, f.author.ID, policy.PublishedPosts)
	require.NoError(t, err)
	assert.EqualValues(t, 2, likes)

	var rows int64
	f.db.Model(&models.PostLike{}).Where("post_id = ?", post.ID).Count(&rows)
	assert.EqualValues(t, 2, rows)

	liked, err := f.store.UserLikedPost(f.ctx, post.ID, f.reader.ID)
	require.NoError(t, err)
	assert.True(t, liked)
}

func TestUnlikePost_NoOpWhenMissing(t *testing.T) {
	f := setup(t)
	post := f.createPost(t, "Likeable", models.StatusPublished)

	likes, err := f.store.UnlikePost(f.ctx, post.ID, f.reader.ID, policy.PublishedPosts)
	require.NoError(t, err)
	assert.EqualValues(t, 0, likes)

	_, _, err = f.store.LikePost(f.ctx, post.ID, f.reader.ID, policy.PublishedPosts)
	require.NoError(t, err)
	likes, err = f.store.UnlikePost(f.ctx, post.ID, f.reader.ID, policy.PublishedPosts)
	require.NoError(t, err)
	assert.EqualValues(t, 0, likes)

	likes, err = f.store.UnlikePost(f.ctx, post.ID, f.reader.ID, policy.PublishedPosts)
	require.NoError(t, err)
	assert.EqualValues(t, 0, likes)
}

func TestUnlike_CounterNeverNegative(t *testing.T) {
	f := setup(t)
	post := f.createPost(t, "Drifted", models.StatusPublished)
	_, _, err := f.store.LikePost(f.ctx, post.ID, f.reader.ID, policy.PublishedPosts)
	require.NoError(t, err)
	f.db.Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumn("likes", 0)

	likes, err := f.store.UnlikePost(f.ctx, post.ID, f.reader.ID, policy.PublishedPosts)
	require.NoError(t, err)
	assert.EqualValues(t, 0, likes)
}

func TestIncrementViews(t *testing.T) {
	f := setup(t)
	post := f.createPost(t, "Viewed", models.StatusPublished)

	for i := 1; i <= 3; i++ {
		views, err := f.store.IncrementViews(f.ctx, post.ID, policy.PublishedPosts)
		require.NoError(t, err)
		assert.EqualValues(t, i, views)
	}

	draft := f.createPost(t, "Hidden", models.StatusDraft)
	_, err := f.store.IncrementViews(f.ctx, draft.ID, policy.PublishedPosts)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.store.IncrementViews(f.ctx, draft.ID, policy.AllPosts)
	assert.NoError(t, err)
}

func TestRelatedPosts(t *testing.T) {
	f := setup(t)
	cat, err := f.store.CreateCategory(f.ctx, TermInput{Name: ptr("Tech")})
	require.NoError(t, err)
	tag, err := f.store.CreateTag(f.ctx, TermInput{Name: ptr("go")})
	require.NoError(t, err)

	mk := func(title string, status models.PostStatus, cat *uint, tags []uint) *models.Post {
		in := PostInput{Title: common.Some(title), Content: common.Some("x"), Status: common.Some(status)}
		if cat != nil {
			in.CategoryID = common.Some(*cat)
		}
		if tags != nil {
			in.TagIDs = common.Some(tags)
		}
		p, err := f.store.CreatePost(f.ctx, f.author.ID, in)
		require.NoError(t, err)
		return p
	}

	p1 := mk("P1", models.StatusPublished, &cat.ID, []uint{tag.ID})
	p2 := mk("P2", models.StatusPublished, &cat.ID, nil)
	p3 := mk("P3", models.StatusPublished, nil, []uint{tag.ID})
	mk("P4", models.StatusPublished, nil, nil)
	mk("P5", models.StatusDraft, &cat.ID, []uint{tag.ID})

	related, err := f.store.RelatedPosts(f.ctx, p1, 5)
	require.NoError(t, err)
	ids := []uint{}
	for _, p := range related {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []uint{p2.ID, p3.ID}, ids)

	lonely := mk("Lonely", models.StatusPublished, nil, nil)
	related, err = f.store.RelatedPosts(f.ctx, lonely, 5)
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestCannedPostLists(t *testing.T) {
	f := setup(t)
	for i := 0; i < 12; i++ {
		f.createPost(t, "Post", models.StatusPublished)
	}
	feat, err := f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title: common.Some("Star"), Content: common.Some("x"),
		Status: common.Some(models.StatusPublished), IsFeatured: common.Some(true),
	})
	require.NoError(t, err)
	f.db.Model(&models.Post{}).Where("id = ?", feat.ID).UpdateColumn("views", 99)
	f.createPost(t, "Draft", models.StatusDraft)

	recent, err := f.store.RecentPosts(f.ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 10)

	featured, err := f.store.FeaturedPosts(f.ctx, 5)
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.Equal(t, feat.ID, featured[0].ID)

	trending, err := f.store.TrendingPosts(f.ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, trending)
	assert.Equal(t, feat.ID, trending[0].ID)

	published, err := f.store.PublishedPosts(f.ctx, page())
	require.NoError(t, err)
	assert.EqualValues(t, 13, published.Count)
}

func TestDeletePost_Cascades(t *testing.T) {
	f := setup(t)
	tag, err := f.store.CreateTag(f.ctx, TermInput{Name: ptr("gone")})
	require.NoError(t, err)
	post, err := f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title: common.Some("Doomed"), Content: common.Some("x"),
		Status: common.Some(models.StatusPublished), TagIDs: common.Some([]uint{tag.ID}),
	})
	require.NoError(t, err)
	parent := testutil.Comment(t, f.db, post, f.reader, "top", true)
	reply := &models.Comment{PostID: post.ID, ParentID: &parent.ID, AuthorID: &f.author.ID, Message: "reply", Approved: true}
	require.NoError(t, f.db.Create(reply).Error)
	_, err = f.store.LikeComment(f.ctx, reply.ID, f.reader.ID, policy.VisibleComments)
	require.NoError(t, err)
	_, _, err = f.store.LikePost(f.ctx, post.ID, f.reader.ID, policy.PublishedPosts)
	require.NoError(t, err)

	require.NoError(t, f.store.DeletePost(f.ctx, post.ID))

	for _, model := range []any{&models.Post{}, &models.Comment{}, &models.PostLike{}, &models.CommentLike{}} {
		var n int64
		f.db.Model(model).Count(&n)
		assert.Zero(t, n, "%T rows left", model)
	}
	var joins int64
	f.db.Table("post_tags").Count(&joins)
	assert.Zero(t, joins)

	// The tag itself survives.
	_, err = f.store.GetTag(f.ctx, tag.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, f.store.DeletePost(f.ctx, post.ID), common.ErrNotFound)
}

func TestDeleteUser_Cascades(t *testing.T) {
	f := setup(t)
	own := f.createPost(t, "Mine", models.StatusPublished)
	other, err := f.store.CreatePost(f.ctx, f.reader.ID, PostInput{
		Title: common.Some("Theirs"), Content: common.Some("x"), Status: common.Some(models.StatusPublished),
	})
	require.NoError(t, err)
	testutil.Comment(t, f.db, other, f.author, "author comment", true)
	keep := testutil.Comment(t, f.db, other, f.reader, "reader comment", true)
	_, _, err = f.store.LikePost(f.ctx, other.ID, f.author.ID, policy.PublishedPosts)
	require.NoError(t, err)
	_, err = f.store.LikeComment(f.ctx, keep.ID, f.author.ID, policy.VisibleComments)
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteUser(f.ctx, f.author.ID))

	_, err = f.store.GetPost(f.ctx, own.ID, policy.AllPosts)
	assert.ErrorIs(t, err, common.ErrNotFound)

	survivor, err := f.store.GetPost(f.ctx, other.ID, policy.AllPosts)
	require.NoError(t, err)
	assert.EqualValues(t, 0, survivor.Likes)

	comments, err := f.store.PostComments(f.ctx, other.ID, policy.AllComments)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, keep.ID, comments[0].ID)
	assert.EqualValues(t, 0, comments[0].Likes)

	_, err = f.store.GetUser(f.ctx, f.author.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestTaxonomy(t *testing.T) {
	f := setup(t)

	cat, err := f.store.CreateCategory(f.ctx, TermInput{Name: ptr("Web Dev")})
	require.NoError(t, err)
	assert.Equal(t, "web-dev", cat.Slug)

	dup, err := f.store.CreateCategory(f.ctx, TermInput{Name: ptr("Web Dev")})
	require.NoError(t, err)
	assert.Equal(t, "web-dev-2", dup.Slug)

	_, err = f.store.CreateCategory(f.ctx, TermInput{Name: ptr("Other"), Slug: ptr("web-dev")})
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = f.store.CreateCategory(f.ctx, TermInput{Name: ptr("  ")})
	assert.ErrorIs(t, err, common.ErrValidation)

	post, err := f.store.CreatePost(f.ctx, f.author.ID, PostInput{
		Title: common.Some("Filed"), Content: common.Some("x"),
		Status: common.Some(models.StatusPublished), CategoryID: common.Some(cat.ID),
	})
	require.NoError(t, err)
	f.createPost(t, "Draft", models.StatusDraft)
	_, err = f.store.UpdatePost(f.ctx, post.ID, PostInput{CategoryID: common.Some(cat.ID)}, false)
	require.NoError(t, err)

	got, err := f.store.GetCategory(f.ctx, cat.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.PostsCount)

	renamed, err := f.store.UpdateCategory(f.ctx, cat.ID, TermInput{Name: ptr("Web Development")})
	require.NoError(t, err)
	assert.Equal(t, "Web Development", renamed.Name)
	assert.Equal(t, "web-dev", renamed.Slug)

	require.NoError(t, f.store.DeleteCategory(f.ctx, cat.ID))
	detached, err := f.store.GetPost(f.ctx, post.ID, policy.AllPosts)
	require.NoError(t, err)
	assert.Nil(t, detached.CategoryID)

	assert.ErrorIs(t, f.store.DeleteCategory(f.ctx, cat.ID), common.ErrNotFound)

	// Clearing the category with an explicit null.
	_, err = f.store.UpdatePost(f.ctx, post.ID, PostInput{CategoryID: common.Null[uint]()}, false)
	assert.NoError(t, err)
}

func TestPopularTags(t *testing.T) {
	f := setup(t)
	hot, _ := f.store.CreateTag(f.ctx, TermInput{Name: ptr("hot")})
	warm, _ := f.store.CreateTag(f.ctx, TermInput{Name: ptr("warm")})
	cold, _ := f.store.CreateTag(f.ctx, TermInput{Name: ptr("cold")})

	for i, tags := range [][]uint{{hot.ID, warm.ID}, {hot.ID}, {hot.ID, cold.ID}} {
		status := models.StatusPublished
		if i == 2 {
			status = models.StatusDraft
		}
		_, err := f.store.CreatePost(f.ctx, f.author.ID, PostInput{
			Title: common.Some("t"), Content: common.Some("x"),
			Status: common.Some(status), TagIDs: common.Some(tags),
		})
		require.NoError(t, err)
	}

	tags, err := f.store.PopularTags(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, "hot", tags[0].Name)
	assert.EqualValues(t, 2, tags[0].PostsCount)
	assert.Equal(t, "warm", tags[1].Name)
	assert.EqualValues(t, 1, tags[1].PostsCount)
	assert.EqualValues(t, 0, tags[2].PostsCount, "drafts do not count")
}

func TestComments_VisibilityAndThreading(t *testing.T) {
	f := setup(t)
	_, err := f.store.UpdateSettings(f.ctx, SettingsPatch{RequireCommentApproval: ptr(true)})
	require.NoError(t, err)
	post := f.createPost(t, "Discussed", models.StatusPublished)

	pending, err := f.store.CreateComment(f.ctx, f.reader, CommentInput{PostID: post.ID, Message: "hi"}, policy.PublishedPosts, policy.VisibleComments)
	require.NoError(t, err)
	assert.False(t, pending.Approved)
	assert.Equal(t, "Test User", pending.Name)

	approved := testutil.Comment(t, f.db, post, f.author, "approved", true)
	spam := testutil.Comment(t, f.db, post, nil, "buy now", true)
	_, err = f.store.ModerateComment(f.ctx, spam.ID, func(c *models.Comment) { c.IsSpam = true; c.Approved = false })
	require.NoError(t, err)

	visible, err := f.store.ListComments(f.ctx, CommentFilter{Scope: policy.VisibleComments, PostID: post.ID}, page())
	require.NoError(t, err)
	require.Len(t, visible.Results, 1)
	assert.Equal(t, approved.ID, visible.Results[0].ID)

	all, err := f.store.ListComments(f.ctx, CommentFilter{Scope: policy.AllComments, PostID: post.ID}, page())
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Count)

	_, err = f.store.GetComment(f.ctx, pending.ID, policy.VisibleComments)
	assert.ErrorIs(t, err, common.ErrNotFound)

	counts, err := f.store.CommentCounts(f.ctx, []uint{post.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[post.ID])
}

func TestCreateComment_Rules(t *testing.T) {
	f := setup(t)
	post := f.createPost(t, "A", models.StatusPublished)
	other := f.createPost(t, "B", models.StatusPublished)
	draft := f.createPost(t, "C", models.StatusDraft)
	parent := testutil.Comment(t, f.db, post, f.author, "parent", true)

	_, err := f.store.CreateComment(f.ctx, f.reader, CommentInput{PostID: other.ID, ParentID: &parent.ID, Message: "x"}, policy.PublishedPosts, policy.VisibleComments)
	assert.ErrorIs(t, err, common.ErrValidation, "parent on another post")

	reply, err := f.store.CreateComment(f.ctx, f.reader, CommentInput{PostID: post.ID, ParentID: &parent.ID, Message: "x"}, policy.PublishedPosts, policy.VisibleComments)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, *reply.ParentID)

	hidden := testutil.Comment(t, f.db, post, f.author, "pending", false)
	_, err = f.store.CreateComment(f.ctx, f.reader, CommentInput{PostID: post.ID, ParentID: &hidden.ID, Message: "x"}, policy.PublishedPosts, policy.VisibleComments)
	assert.ErrorIs(t, err, common.ErrValidation, "hidden parent")
	_, err = f.store.CreateComment(f.ctx, f.reader, CommentInput{PostID: post.ID, ParentID: &hidden.ID, Message: "x"}, policy.AllPosts, policy.AllComments)
	assert.NoError(t, err, "admins may answer pending comments")

	_, err = f.store.CreateComment(f.ctx, f.reader, CommentInput{PostID: draft.ID, Message: "x"}, policy.PublishedPosts, policy.VisibleComments)
	assert.ErrorIs(t, err, common.ErrValidation, "draft is not visible")

	_, err = f.store.CreateComment(f.ctx, nil, CommentInput{PostID: post.ID, Message: "x"}, policy.PublishedPosts, policy.VisibleComments)
	assert.ErrorIs(t, err, common.ErrValidation, "guest without name")

	guest, err := f.store.CreateComment(f.ctx, nil, CommentInput{PostID: post.ID, Name: "Ann", Email: "ann@example.com", Message: "x"}, policy.PublishedPosts, policy.VisibleComments)
	require.NoError(t, err)
	assert.Nil(t, guest.AuthorID)

	_, err = f.store.UpdateSettings(f.ctx, SettingsPatch{RequireCommentApproval: ptr(false)})
	require.NoError(t, err)
	auto, err := f.store.CreateComment(f.ctx, f.reader, CommentInput{PostID: post.ID, Message: "auto"}, policy.PublishedPosts, policy.VisibleComments)
	require.NoError(t, err)
	assert.True(t, auto.Approved)

	_, err = f.store.UpdateSettings(f.ctx, SettingsPatch{EnableComments: ptr(false)})
	require.NoError(t, err)
	_, err = f.store.CreateComment(f.ctx, f.reader, CommentInput{PostID: post.ID, Message: "closed"}, policy.PublishedPosts, policy.VisibleComments)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestDeleteComment_RemovesReplies(t *testing.T) {
	f := setup(t)
	post := f.createPost(t, "A", models.StatusPublished)
	root := testutil.Comment(t, f.db, post, f.author, "root", true)
	child := &models.Comment{PostID: post.ID, ParentID: &root.ID, Message: "child", Name: "g", Email: "g@x.io"}
	require.NoError(t, f.db.Create(child).Error)
	grandchild := &models.Comment{PostID: post.ID, ParentID: &child.ID, Message: "grandchild", Name: "g", Email: "g@x.io"}
	require.NoError(t, f.db.Create(grandchild).Error)
	sibling := testutil.Comment(t, f.db, post, f.reader, "sibling", true)

	require.NoError(t, f.store.DeleteComment(f.ctx, root.ID))

	left, err := f.store.PostComments(f.ctx, post.ID, policy.AllComments)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, sibling.ID, left[0].ID)
}

func TestCommentLikes(t *testing.T) {
	f := setup(t)
	post := f.createPost(t, "A", models.StatusPublished)
	c := testutil.Comment(t, f.db, post, f.author, "nice", true)

	likes, err := f.store.LikeComment(f.ctx, c.ID, f.reader.ID, policy.VisibleComments)
	require.NoError(t, err)
	assert.EqualValues(t, 1, likes)
	likes, err = f.store.LikeComment(f.ctx, c.ID, f.reader.ID, policy.VisibleComments)
	require.NoError(t, err)
	assert.EqualValues(t, 1, likes)

	likes, err = f.store.UnlikeComment(f.ctx, c.ID, f.reader.ID, policy.VisibleComments)
	require.NoError(t, err)
	assert.EqualValues(t, 0, likes)
	likes, err = f.store.UnlikeComment(f.ctx, c.ID, f.reader.ID, policy.VisibleComments)
	require.NoError(t, err)
	assert.EqualValues(t, 0, likes)

	hidden := testutil.Comment(t, f.db, post, f.author, "pending", false)
	_, err = f.store.LikeComment(f.ctx, hidden.ID, f.reader.ID, policy.VisibleComments)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSettingsSingleton(t *testing.T) {
	f := setup(t)

	st, err := f.store.GetOrCreateSettings(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SettingsID, st.ID)
	assert.Equal(t, "My CMS Blog", st.SiteTitle)
	assert.True(t, st.RequireCommentApproval)
	assert.False(t, st.EnableGuestComments)

	again, err := f.store.GetOrCreateSettings(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, st.ID, again.ID)

	_, err = f.store.CreateSettings(f.ctx, models.DefaultSettings())
	assert.ErrorIs(t, err, common.ErrConflict)

	assert.ErrorIs(t, f.store.DeleteSettings(f.ctx), common.ErrValidation)

	updated, err := f.store.UpdateSettings(f.ctx, SettingsPatch{
		SiteTitle: ptr("Inkpress"),
		Features:  map[string]any{"dark_mode": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "Inkpress", updated.SiteTitle)
	assert.Equal(t, true, updated.Features["dark_mode"])
	assert.True(t, updated.EnableComments, "untouched fields keep their value")

	_, err = f.store.UpdateSettings(f.ctx, SettingsPatch{PostsPerPage: ptr(uint(0))})
	assert.ErrorIs(t, err, common.ErrValidation)

	var rows int64
	f.db.Model(&models.SiteSettings{}).Count(&rows)
	assert.EqualValues(t, 1, rows)
}

func TestCreateSettings_FreshInstall(t *testing.T) {
	f := setup(t)
	custom := models.DefaultSettings()
	custom.SiteTitle = "Custom"
	st, err := f.store.CreateSettings(f.ctx, custom)
	require.NoError(t, err)
	assert.Equal(t, "Custom", st.SiteTitle)
}

func TestNewsletter(t *testing.T) {
	f := setup(t)

	sub, created, err := f.store.Subscribe(f.ctx, "Fan@Example.com ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "fan@example.com", sub.Email)
	assert.True(t, sub.IsActive)

	require.NoError(t, f.store.Unsubscribe(f.ctx, "fan@example.com"))
	require.NoError(t, f.store.Unsubscribe(f.ctx, "fan@example.com"))
	n, err := f.store.ActiveSubscriberCount(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	sub, created, err = f.store.Subscribe(f.ctx, "fan@example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, sub.IsActive)

	assert.ErrorIs(t, f.store.Unsubscribe(f.ctx, "nobody@example.com"), common.ErrNotFound)
	_, _, err = f.store.Subscribe(f.ctx, "")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestContacts(t *testing.T) {
	f := setup(t)
	c, err := f.store.CreateContact(f.ctx, ContactInput{Name: "Ann", Email: "ann@example.com", Subject: "Hello", Message: "Hi there"})
	require.NoError(t, err)

	res, err := f.store.ListContacts(f.ctx, common.ListParams{Page: 1, PageSize: 10, Search: "hello"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Count)

	require.NoError(t, f.store.DeleteContact(f.ctx, c.ID))
	assert.ErrorIs(t, f.store.DeleteContact(f.ctx, c.ID), common.ErrNotFound)
}

func TestUsers(t *testing.T) {
	f := setup(t)

	err := f.store.CreateUser(f.ctx, &models.User{Email: "AUTHOR@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, common.ErrConflict)

	u, err := f.store.UpdateUser(f.ctx, f.reader.ID, UserPatch{Bio: ptr("hello"), FirstName: ptr("Rea")})
	require.NoError(t, err)
	assert.Equal(t, "hello", u.Bio)
	assert.Equal(t, "Rea", u.FirstName)

	_, err = f.store.UpdateUser(f.ctx, f.reader.ID, UserPatch{Email: ptr("author@example.com")})
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = f.store.SetRole(f.ctx, f.reader.ID, "overlord")
	assert.ErrorIs(t, err, common.ErrValidation)
	u, err = f.store.SetRole(f.ctx, f.reader.ID, models.RoleContributor)
	require.NoError(t, err)
	assert.Equal(t, models.RoleContributor, u.Role)

	u, err = f.store.SetActive(f.ctx, f.reader.ID, false)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	res, err := f.store.ListUsers(f.ctx, common.ListParams{Page: 1, PageSize: 10, Search: "author"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Count)

	f.createPost(t, "Stat", models.StatusDraft)
	st, err := f.store.UserStats(f.ctx, f.author.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.PostsCount)

	_, err = f.store.UpdateUser(f.ctx, 9999, UserPatch{Bio: ptr("x")})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func ptr[T any](v T) *T { return &v }
