package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/folio/internal/db"
	"github.com/folio/internal/model"
	"github.com/folio/internal/repository"
	"github.com/folio/internal/store"
	"github.com/folio/internal/validate"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupBlogServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:blog-service-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func newTestBlogService(t *testing.T) (*BlogService, *gorm.DB) {
	t.Helper()
	gdb := setupBlogServiceTestDB(t)
	tags := repository.NewTagRepository(gdb)
	svc, err := NewBlogService(repository.NewPostRepository(gdb, tags), tags)
	if err != nil {
		t.Fatalf("new blog service: %v", err)
	}
	return svc, gdb
}

func paragraph(text string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"type": "doc",
		"content": []any{map[string]any{
			"type":    "paragraph",
			"content": []any{map[string]any{"type": "text", "text": text}},
		}},
	})
	return raw
}

func mustCreate(t *testing.T, svc *BlogService, title, status string, tags ...string) *model.Post {
	t.Helper()
	post, err := svc.CreatePost(context.Background(), model.CreatePostInput{
		Title:   title,
		Content: paragraph("body of " + title),
		Status:  status,
		Tags:    tags,
	}, "author-a")
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return post
}

func TestNewBlogServiceRequiresStores(t *testing.T) {
	if _, err := NewBlogService(nil, nil); err == nil {
		t.Fatalf("expected constructor to reject missing stores")
	}
}

func TestBlogService_EndToEnd(t *testing.T) {
	svc, gdb := newTestBlogService(t)
	ctx := context.Background()

	post := mustCreate(t, svc, "Hello World", model.StatusDraft, "react", "testing")
	if post.Slug != "hello-world" || post.PublishedAt != nil {
		t.Fatalf("unexpected draft %+v", post)
	}
	var tagRows int64
	gdb.Model(&db.Tag{}).Count(&tagRows)
	if tagRows != 2 {
		t.Fatalf("expected 2 tag rows, got %d", tagRows)
	}

	published := model.StatusPublished
	updated, err := svc.UpdatePost(ctx, post.ID, model.UpdatePostInput{Status: &published}, "author-a")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if updated.PublishedAt == nil {
		t.Fatalf("expected publishedAt after publishing")
	}

	before, _ := svc.GetPostByID(ctx, post.ID)
	got, err := svc.GetPostBySlug(ctx, "hello-world")
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if got.ID != post.ID {
		t.Fatalf("unexpected post %s", got.ID)
	}
	svc.Background().Wait()

	after, _ := svc.GetPostByID(ctx, post.ID)
	if after.ViewCount != before.ViewCount+1 {
		t.Fatalf("expected view count %d, got %d", before.ViewCount+1, after.ViewCount)
	}
}

func TestBlogService_CreateValidatesBeforeWriting(t *testing.T) {
	svc, gdb := newTestBlogService(t)

	_, err := svc.CreatePost(context.Background(), model.CreatePostInput{
		Title:   strings.Repeat("t", 201),
		Content: paragraph("body"),
		Tags:    []string{"never-created"},
	}, "author-a")
	if !errors.Is(err, validate.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *validate.ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Field != "title" {
		t.Fatalf("expected a title field error, got %v", err)
	}

	var posts, tags int64
	gdb.Model(&db.Post{}).Count(&posts)
	gdb.Model(&db.Tag{}).Count(&tags)
	if posts != 0 || tags != 0 {
		t.Fatalf("expected no writes, got %d posts and %d tags", posts, tags)
	}

	blank := "  "
	if _, err := svc.UpdatePost(context.Background(), "any", model.UpdatePostInput{Title: &blank}, "author-a"); !errors.Is(err, validate.ErrValidation) {
		t.Fatalf("expected validation error on update, got %v", err)
	}
}

func TestBlogService_SlugCollision(t *testing.T) {
	svc, _ := newTestBlogService(t)

	first := mustCreate(t, svc, "Hello World", model.StatusDraft)
	second := mustCreate(t, svc, "Hello World", model.StatusDraft)
	if first.Slug == second.Slug || second.Slug != "hello-world-1" {
		t.Fatalf("expected distinct slugs, got %q and %q", first.Slug, second.Slug)
	}
}

func TestBlogService_OwnershipLeavesPostUnchanged(t *testing.T) {
	svc, _ := newTestBlogService(t)
	ctx := context.Background()

	post := mustCreate(t, svc, "Mine", model.StatusDraft)
	title := "Yours"
	if _, err := svc.UpdatePost(ctx, post.ID, model.UpdatePostInput{Title: &title}, "author-b"); !errors.Is(err, store.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := svc.DeletePost(ctx, post.ID, "author-b"); !errors.Is(err, store.ErrPermissionDenied) {
		t.Fatalf("expected permission denied on delete, got %v", err)
	}
	current, _ := svc.GetPostByID(ctx, post.ID)
	if current.Title != "Mine" || !current.UpdatedAt.Equal(post.UpdatedAt) {
		t.Fatalf("post changed after rejected update: %+v", current)
	}
}

func TestBlogService_PublishedAtMonotonic(t *testing.T) {
	svc, _ := newTestBlogService(t)
	ctx := context.Background()

	post := mustCreate(t, svc, "Stable", model.StatusPublished)
	original := *post.PublishedAt

	excerpt := "edited"
	edited, err := svc.UpdatePost(ctx, post.ID, model.UpdatePostInput{Excerpt: &excerpt}, "author-a")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !edited.PublishedAt.Equal(original) {
		t.Fatalf("editing moved publishedAt")
	}

	draft, published := model.StatusDraft, model.StatusPublished
	svc.UpdatePost(ctx, post.ID, model.UpdatePostInput{Status: &draft}, "author-a")
	again, err := svc.UpdatePost(ctx, post.ID, model.UpdatePostInput{Status: &published}, "author-a")
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if !again.PublishedAt.Equal(original) {
		t.Fatalf("republishing moved publishedAt from %v to %v", original, again.PublishedAt)
	}
}

func TestBlogService_TagReplacement(t *testing.T) {
	svc, _ := newTestBlogService(t)
	ctx := context.Background()

	post := mustCreate(t, svc, "Tagged", model.StatusDraft, "a", "b")

	excerpt := "no tag change"
	kept, _ := svc.UpdatePost(ctx, post.ID, model.UpdatePostInput{Excerpt: &excerpt}, "author-a")
	if len(kept.Tags) != 2 {
		t.Fatalf("omitting tags must keep associations, got %d", len(kept.Tags))
	}

	none := []string{}
	cleared, err := svc.UpdatePost(ctx, post.ID, model.UpdatePostInput{Tags: &none}, "author-a")
	if err != nil {
		t.Fatalf("clear tags: %v", err)
	}
	if len(cleared.Tags) != 0 {
		t.Fatalf("expected no tags, got %d", len(cleared.Tags))
	}
}

func TestBlogService_ReadTimeGrowsWithContent(t *testing.T) {
	svc, _ := newTestBlogService(t)
	ctx := context.Background()

	post := mustCreate(t, svc, "Growing", model.StatusDraft)
	previous := post.ReadTime
	for _, words := range []int{150, 250, 900, 2000} {
		updated, err := svc.UpdatePost(ctx, post.ID, model.UpdatePostInput{
			Content: paragraph(strings.TrimSpace(strings.Repeat("word ", words))),
		}, "author-a")
		if err != nil {
			t.Fatalf("update to %d words: %v", words, err)
		}
		if updated.ReadTime < previous {
			t.Fatalf("read time decreased from %d to %d at %d words", previous, updated.ReadTime, words)
		}
		previous = updated.ReadTime
	}
	if previous != 10 {
		t.Fatalf("expected 10 minutes for 2000 words, got %d", previous)
	}
}

func TestBlogService_RelatedPosts(t *testing.T) {
	svc, _ := newTestBlogService(t)
	ctx := context.Background()

	p := mustCreate(t, svc, "P", model.StatusPublished, "a", "b", "c")
	r := mustCreate(t, svc, "R", model.StatusPublished, "a")
	q := mustCreate(t, svc, "Q", model.StatusPublished, "a", "b")
	mustCreate(t, svc, "S", model.StatusPublished, "d")
	mustCreate(t, svc, "Hidden", model.StatusDraft, "a", "b", "c")

	related, err := svc.GetRelatedPosts(ctx, p.ID, 0)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 2 || related[0].ID != q.ID || related[1].ID != r.ID {
		titles := make([]string, 0, len(related))
		for _, post := range related {
			titles = append(titles, post.Title)
		}
		t.Fatalf("expected [Q R], got %v", titles)
	}

	one, _ := svc.GetRelatedPosts(ctx, p.ID, 1)
	if len(one) != 1 || one[0].ID != q.ID {
		t.Fatalf("expected limit to truncate to Q")
	}
	if _, err := svc.GetRelatedPosts(ctx, "missing", 4); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBlogService_AuthorStats(t *testing.T) {
	svc, _ := newTestBlogService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustCreate(t, svc, fmt.Sprintf("Published %d", i), model.StatusPublished)
	}
	for i := 0; i < 2; i++ {
		mustCreate(t, svc, fmt.Sprintf("Draft %d", i), model.StatusDraft)
	}
	if _, err := svc.CreatePost(ctx, model.CreatePostInput{
		Title:    "Featured archive",
		Content:  paragraph("body"),
		Status:   model.StatusArchived,
		Featured: true,
	}, "author-a"); err != nil {
		t.Fatalf("create featured: %v", err)
	}

	stats, err := svc.GetAuthorStats(ctx, "author-a")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := model.AuthorStats{Total: 6, Published: 3, Drafts: 2, Featured: 1}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
}

func TestBlogService_ListingAndSearch(t *testing.T) {
	svc, _ := newTestBlogService(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		mustCreate(t, svc, fmt.Sprintf("Go note %d", i), model.StatusPublished)
	}
	mustCreate(t, svc, "Rust note", model.StatusPublished)

	page, err := svc.GetPublishedPosts(ctx, model.BlogPostFilters{})
	if err != nil {
		t.Fatalf("published: %v", err)
	}
	if len(page) != DefaultPageSize {
		t.Fatalf("expected default page of %d, got %d", DefaultPageSize, len(page))
	}

	found, err := svc.SearchPosts(ctx, "rust", 5)
	if err != nil || len(found) != 1 || found[0].Title != "Rust note" {
		t.Fatalf("search: %v %+v", err, found)
	}
}

func TestBlogService_TagsPassThrough(t *testing.T) {
	svc, _ := newTestBlogService(t)
	ctx := context.Background()

	mustCreate(t, svc, "One", model.StatusPublished, "go", "sql")
	mustCreate(t, svc, "Two", model.StatusPublished, "go")

	popular, err := svc.GetPopularTags(ctx, 1)
	if err != nil || len(popular) != 1 || popular[0].Name != "go" || popular[0].PostCount != 2 {
		t.Fatalf("popular tags: %v %+v", err, popular)
	}
	all, _ := svc.GetAllTags(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(all))
	}

	color := "#ff0000"
	recolored, err := svc.UpdateTag(ctx, popular[0].ID, model.TagUpdate{Color: &color})
	if err != nil || recolored.Color != color {
		t.Fatalf("update tag: %v %+v", err, recolored)
	}
	if err := svc.DeleteTag(ctx, popular[0].ID); err != nil {
		t.Fatalf("delete tag: %v", err)
	}
	all, _ = svc.GetAllTags(ctx)
	if len(all) != 1 || all[0].Name != "sql" {
		t.Fatalf("unexpected tags after delete %+v", all)
	}
}

func TestBlogService_RenderPostHTML(t *testing.T) {
	svc, _ := newTestBlogService(t)

	post := mustCreate(t, svc, "Rendered", model.StatusDraft)
	html, err := svc.RenderPostHTML(post)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "<p>body of Rendered</p>") {
		t.Fatalf("unexpected html %q", html)
	}
}

type failingViews struct {
	PostStore
}

func (failingViews) IncrementViewCount(ctx context.Context, id string) error {
	return errors.New("store unavailable")
}

func TestBlogService_ViewCountFailureIsSwallowed(t *testing.T) {
	gdb := setupBlogServiceTestDB(t)
	tags := repository.NewTagRepository(gdb)
	posts := repository.NewPostRepository(gdb, tags)

	var logs bytes.Buffer
	log := zerolog.New(&logs)
	svc, err := NewBlogService(failingViews{posts}, tags, WithLogger(log), WithBackground(NewBackground(log, nil, time.Second)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	post := mustCreate(t, svc, "Read me", model.StatusPublished)
	got, err := svc.GetPostBySlug(context.Background(), post.Slug)
	if err != nil || got.ID != post.ID {
		t.Fatalf("read must succeed despite a failing counter: %v", err)
	}
	svc.Background().Wait()

	if !strings.Contains(logs.String(), "background task failed") || !strings.Contains(logs.String(), "store unavailable") {
		t.Fatalf("expected the failure to be logged, got %q", logs.String())
	}
}
