package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/folio/internal/content"
	"github.com/folio/internal/model"
	"github.com/folio/internal/validate"
	"github.com/rs/zerolog"
)

const (
	// DefaultPageSize is the published listing size when filters carry none.
	DefaultPageSize     = 20
	defaultRelatedLimit = 4
	defaultPopularLimit = 10
)

// PostStore is the post repository as seen by the blog service.
type PostStore interface {
	FindBySlug(ctx context.Context, slug string) (*model.Post, error)
	FindByIDWithRelations(ctx context.Context, id string) (*model.Post, error)
	FindPublished(ctx context.Context, filters model.BlogPostFilters) ([]model.Post, error)
	FindAllPublished(ctx context.Context) ([]model.Post, error)
	FindByAuthor(ctx context.Context, authorID string, includeDrafts bool) ([]model.Post, error)
	FindFeatured(ctx context.Context, limit int) ([]model.Post, error)
	CreateWithTags(ctx context.Context, in model.CreatePostInput, authorID string, tagNames []string) (*model.Post, error)
	UpdateWithTags(ctx context.Context, id string, in model.UpdatePostInput, authorID string) (*model.Post, error)
	DeletePost(ctx context.Context, id, authorID string) error
	GetStats(ctx context.Context, authorID string) (model.AuthorStats, error)
	IncrementViewCount(ctx context.Context, id string) error
}

// TagStore is the tag repository as seen by the blog service.
type TagStore interface {
	GetAllWithCounts(ctx context.Context) ([]model.TagWithCount, error)
	GetPopular(ctx context.Context, limit int) ([]model.TagWithCount, error)
	UpdateTag(ctx context.Context, id string, in model.TagUpdate) (*model.Tag, error)
	DeleteTag(ctx context.Context, id string) error
}

// BlogService is the entry point for every blog operation. It validates
// input before any store call and keeps side effects off the read path.
type BlogService struct {
	posts      PostStore
	tags       TagStore
	logger     zerolog.Logger
	background *Background
}

// Option configures a BlogService.
type Option func(*BlogService)

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *BlogService) { s.logger = logger }
}

// WithBackground sets the runner used for view-count increments.
func WithBackground(b *Background) Option {
	return func(s *BlogService) { s.background = b }
}

// NewBlogService wires the service. posts and tags are required.
func NewBlogService(posts PostStore, tags TagStore, opts ...Option) (*BlogService, error) {
	if posts == nil || tags == nil {
		return nil, fmt.Errorf("blog service: post and tag stores are required")
	}
	s := &BlogService{posts: posts, tags: tags, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.background == nil {
		s.background = NewBackground(s.logger, nil, 0)
	}
	return s, nil
}

// Background exposes the side-effect runner so callers can drain it on
// shutdown.
func (s *BlogService) Background() *Background {
	return s.background
}

// GetPublishedPosts 返回已发布文章列表
func (s *BlogService) GetPublishedPosts(ctx context.Context, filters model.BlogPostFilters) ([]model.Post, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultPageSize
	}
	return s.posts.FindPublished(ctx, filters)
}

// GetPostBySlug returns the post and schedules a view-count increment. The
// returned post carries the count from before this view.
func (s *BlogService) GetPostBySlug(ctx context.Context, slug string) (*model.Post, error) {
	post, err := s.posts.FindBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		return nil, err
	}
	id := post.ID
	s.background.Go(ctx, "increment view count", func(ctx context.Context) error {
		return s.posts.IncrementViewCount(ctx, id)
	})
	return post, nil
}

// GetPostByID reads a post without counting a view.
func (s *BlogService) GetPostByID(ctx context.Context, id string) (*model.Post, error) {
	return s.posts.FindByIDWithRelations(ctx, id)
}

func (s *BlogService) CreatePost(ctx context.Context, in model.CreatePostInput, authorID string) (*model.Post, error) {
	in, err := validate.CreatePost(in).Unwrap()
	if err != nil {
		return nil, err
	}
	post, err := s.posts.CreateWithTags(ctx, in, authorID, in.Tags)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("post_id", post.ID).Str("slug", post.Slug).Str("author_id", authorID).Msg("post created")
	return post, nil
}

func (s *BlogService) UpdatePost(ctx context.Context, id string, in model.UpdatePostInput, authorID string) (*model.Post, error) {
	in, err := validate.UpdatePost(in).Unwrap()
	if err != nil {
		return nil, err
	}
	return s.posts.UpdateWithTags(ctx, id, in, authorID)
}

func (s *BlogService) DeletePost(ctx context.Context, id, authorID string) error {
	if err := s.posts.DeletePost(ctx, id, authorID); err != nil {
		return err
	}
	s.logger.Info().Str("post_id", id).Str("author_id", authorID).Msg("post deleted")
	return nil
}

func (s *BlogService) GetAuthorStats(ctx context.Context, authorID string) (model.AuthorStats, error) {
	return s.posts.GetStats(ctx, authorID)
}

// GetAuthorPosts lists an author's posts; drafts are included on request.
func (s *BlogService) GetAuthorPosts(ctx context.Context, authorID string, includeDrafts bool) ([]model.Post, error) {
	return s.posts.FindByAuthor(ctx, authorID, includeDrafts)
}

func (s *BlogService) GetFeaturedPosts(ctx context.Context, limit int) ([]model.Post, error) {
	return s.posts.FindFeatured(ctx, limit)
}

func (s *BlogService) GetPopularTags(ctx context.Context, limit int) ([]model.TagWithCount, error) {
	if limit <= 0 {
		limit = defaultPopularLimit
	}
	return s.tags.GetPopular(ctx, limit)
}

func (s *BlogService) GetAllTags(ctx context.Context) ([]model.TagWithCount, error) {
	return s.tags.GetAllWithCounts(ctx)
}

func (s *BlogService) UpdateTag(ctx context.Context, id string, in model.TagUpdate) (*model.Tag, error) {
	return s.tags.UpdateTag(ctx, id, in)
}

func (s *BlogService) DeleteTag(ctx context.Context, id string) error {
	return s.tags.DeleteTag(ctx, id)
}

// GetRelatedPosts ranks published posts by how many tag slugs they share
// with the post. Posts sharing none are left out; equal scores keep the
// listing order.
func (s *BlogService) GetRelatedPosts(ctx context.Context, postID string, limit int) ([]model.Post, error) {
	if limit <= 0 {
		limit = defaultRelatedLimit
	}
	target, err := s.posts.FindByIDWithRelations(ctx, postID)
	if err != nil {
		return nil, err
	}
	if len(target.Tags) == 0 {
		return []model.Post{}, nil
	}
	slugs := make(map[string]struct{}, len(target.Tags))
	for _, tag := range target.Tags {
		slugs[tag.Slug] = struct{}{}
	}

	candidates, err := s.posts.FindAllPublished(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		post  model.Post
		score int
	}
	ranked := make([]scored, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == target.ID {
			continue
		}
		score := 0
		for _, tag := range candidate.Tags {
			if _, ok := slugs[tag.Slug]; ok {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{post: candidate, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]model.Post, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.post)
	}
	return out, nil
}

// SearchPosts matches published post titles case-insensitively.
func (s *BlogService) SearchPosts(ctx context.Context, term string, limit int) ([]model.Post, error) {
	return s.GetPublishedPosts(ctx, model.BlogPostFilters{Search: term, Limit: limit})
}

// RenderPostHTML renders the post body as sanitized HTML.
func (s *BlogService) RenderPostHTML(post *model.Post) (string, error) {
	doc, err := content.Parse(post.Content)
	if err != nil {
		return "", err
	}
	return content.RenderHTML(doc)
}
