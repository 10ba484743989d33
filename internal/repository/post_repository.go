package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/folio/internal/content"
	"github.com/folio/internal/db"
	"github.com/folio/internal/model"
	"github.com/folio/internal/slug"
	"github.com/folio/internal/store"
	"github.com/folio/internal/validate"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// DefaultPublishedLimit caps FindPublished when no limit is given.
	DefaultPublishedLimit = 50
	defaultFeaturedLimit  = 6
	// maxSlugAttempts bounds retries when a concurrent writer takes the
	// probed slug between the probe and the insert.
	maxSlugAttempts = 5

	anonymousAuthor = "Anonymous"
)

var (
	ErrPostNotFound   = fmt.Errorf("post %w", store.ErrNotFound)
	ErrNotPostAuthor  = fmt.Errorf("only the author may modify this post: %w", store.ErrPermissionDenied)
	ErrInvalidContent = fmt.Errorf("content must be a non-empty document: %w", validate.ErrValidation)
)

// PostRepository is the post entity store. It owns slug generation, read
// time, tag associations, author ownership and DTO assembly.
type PostRepository struct {
	posts   *store.Repository[db.Post]
	authors *store.Repository[db.Author]
	media   *store.Repository[db.Media]
	tags    *TagRepository
	now     func() time.Time
}

func NewPostRepository(gdb *gorm.DB, tags *TagRepository) *PostRepository {
	return &PostRepository{
		posts:   store.MustNew[db.Post](gdb),
		authors: store.MustNew[db.Author](gdb),
		media:   store.MustNew[db.Media](gdb),
		tags:    tags,
		now:     time.Now,
	}
}

// WithClock returns a copy using now for publish and update timestamps.
func (r *PostRepository) WithClock(now func() time.Time) *PostRepository {
	clone := *r
	clone.posts = r.posts.WithClock(now)
	clone.media = r.media.WithClock(now)
	clone.now = now
	return &clone
}

func (r *PostRepository) withTx(tx *gorm.DB) *PostRepository {
	clone := *r
	clone.posts = r.posts.WithTx(tx)
	clone.authors = r.authors.WithTx(tx)
	clone.media = r.media.WithTx(tx)
	clone.tags = r.tags.WithTx(tx)
	return &clone
}

func withTags(q *gorm.DB) *gorm.DB {
	return q.Preload("Tags", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("tags.name ASC")
	})
}

func (r *PostRepository) FindBySlug(ctx context.Context, postSlug string) (*model.Post, error) {
	row, err := r.posts.FirstScoped(ctx, "find post by slug", func(q *gorm.DB) *gorm.DB {
		return withTags(q).Where("posts.slug = ?", postSlug)
	})
	if err != nil {
		return nil, postErr(err)
	}
	return r.assembleOne(ctx, *row)
}

func (r *PostRepository) FindByIDWithRelations(ctx context.Context, id string) (*model.Post, error) {
	row, err := r.posts.FirstScoped(ctx, "find post by id", func(q *gorm.DB) *gorm.DB {
		return withTags(q).Where("posts.id = ?", id)
	})
	if err != nil {
		return nil, postErr(err)
	}
	return r.assembleOne(ctx, *row)
}

// FindPublished lists published posts, newest first. Category and title
// search run in the query; the tag filter runs on the fetched page, so a
// tag-filtered page may hold fewer than Limit posts.
func (r *PostRepository) FindPublished(ctx context.Context, filters model.BlogPostFilters) ([]model.Post, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultPublishedLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.posts.FindScoped(ctx, "find published posts", func(q *gorm.DB) *gorm.DB {
		q = withTags(q).Where("posts.status = ?", model.StatusPublished)
		if category := strings.TrimSpace(filters.Category); category != "" {
			q = q.Where("posts.category = ?", category)
		}
		if search := strings.TrimSpace(filters.Search); search != "" {
			q = q.Where(store.ContainsFold("title", search))
		}
		return q.Order("posts.published_at DESC").Order("posts.created_at DESC").
			Limit(limit).Offset(offset)
	})
	if err != nil {
		return nil, err
	}

	if tag := strings.TrimSpace(filters.Tag); tag != "" {
		rows = filterByTag(rows, tag)
	}
	return r.assemble(ctx, rows)
}

// FindAllPublished is every published post, newest first.
func (r *PostRepository) FindAllPublished(ctx context.Context) ([]model.Post, error) {
	rows, err := r.posts.FindScoped(ctx, "find all published posts", func(q *gorm.DB) *gorm.DB {
		return withTags(q).Where("posts.status = ?", model.StatusPublished).
			Order("posts.published_at DESC").Order("posts.created_at DESC")
	})
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, rows)
}

// FindByAuthor lists an author's posts newest-created first; drafts and
// archived posts are included only when includeDrafts is set.
func (r *PostRepository) FindByAuthor(ctx context.Context, authorID string, includeDrafts bool) ([]model.Post, error) {
	rows, err := r.posts.FindScoped(ctx, "find posts by author", func(q *gorm.DB) *gorm.DB {
		q = withTags(q).Where("posts.author_id = ?", authorID)
		if !includeDrafts {
			q = q.Where("posts.status = ?", model.StatusPublished)
		}
		return q.Order("posts.created_at DESC")
	})
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, rows)
}

func (r *PostRepository) FindFeatured(ctx context.Context, limit int) ([]model.Post, error) {
	if limit <= 0 {
		limit = defaultFeaturedLimit
	}
	rows, err := r.posts.FindScoped(ctx, "find featured posts", func(q *gorm.DB) *gorm.DB {
		return withTags(q).
			Where("posts.status = ? AND posts.featured = ?", model.StatusPublished, true).
			Order("posts.published_at DESC").
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, rows)
}

// CreateWithTags inserts the post and its tag associations in one
// transaction. publishedAt is set only when the post starts out published.
func (r *PostRepository) CreateWithTags(ctx context.Context, in model.CreatePostInput, authorID string, tagNames []string) (*model.Post, error) {
	doc, encoded, err := parseContent(in.Content)
	if err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = model.StatusDraft
	}
	category := in.Category
	if category == "" {
		category = model.CategoryTechnical
	}

	row := db.Post{
		Title:         in.Title,
		Excerpt:       in.Excerpt,
		Content:       encoded,
		Category:      category,
		Status:        status,
		Featured:      in.Featured,
		CoverImageURL: in.CoverImageURL,
		ReadTime:      content.ReadTime(doc),
		AuthorID:      authorID,
	}
	if status == model.StatusPublished {
		now := r.now()
		row.PublishedAt = &now
	}

	base := slug.Make(in.Title, "post")
	err = r.retrySlug(func() error {
		return r.posts.Transaction(ctx, func(tx *gorm.DB) error {
			txr := r.withTx(tx)
			postSlug, err := txr.uniqueSlug(ctx, base, "")
			if err != nil {
				return err
			}
			attempt := row
			attempt.Slug = postSlug
			if err := txr.posts.Create(ctx, &attempt); err != nil {
				return err
			}
			if _, err := txr.tags.AttachNames(ctx, attempt.ID, tagNames); err != nil {
				return err
			}
			row = attempt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return r.FindByIDWithRelations(ctx, row.ID)
}

// UpdateWithTags applies the fields present in in. Only the author may
// update; a mismatch fails before anything is written.
func (r *PostRepository) UpdateWithTags(ctx context.Context, id string, in model.UpdatePostInput, authorID string) (*model.Post, error) {
	existing, err := r.ownedPost(ctx, id, authorID)
	if err != nil {
		return nil, err
	}

	fields := store.Fields{}
	if in.Excerpt != nil {
		fields["excerpt"] = *in.Excerpt
	}
	if in.Category != nil {
		fields["category"] = *in.Category
	}
	if in.Featured != nil {
		fields["featured"] = *in.Featured
	}
	if in.CoverImageURL != nil {
		fields["cover_image_url"] = *in.CoverImageURL
	}
	if in.HasContent() {
		doc, encoded, err := parseContent(in.Content)
		if err != nil {
			return nil, err
		}
		fields["content"] = encoded
		fields["read_time"] = content.ReadTime(doc)
	}
	if in.Status != nil {
		fields["status"] = *in.Status
		if *in.Status == model.StatusPublished && existing.PublishedAt == nil {
			fields["published_at"] = r.now()
		}
	}

	var base string
	if in.Title != nil {
		fields["title"] = *in.Title
		base = slug.Make(*in.Title, "post")
	}

	err = r.retrySlug(func() error {
		return r.posts.Transaction(ctx, func(tx *gorm.DB) error {
			txr := r.withTx(tx)
			if base != "" {
				postSlug, err := txr.uniqueSlug(ctx, base, id)
				if err != nil {
					return err
				}
				fields["slug"] = postSlug
			}
			if _, err := txr.posts.Update(ctx, id, fields); err != nil {
				return err
			}
			if in.Tags != nil {
				if _, err := txr.tags.ReplaceForPost(ctx, id, *in.Tags); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, postErr(err)
	}

	return r.FindByIDWithRelations(ctx, id)
}

// DeletePost hard-deletes the post with its tag associations, detaching any
// media that pointed at it. Only the author may delete.
func (r *PostRepository) DeletePost(ctx context.Context, id, authorID string) error {
	if _, err := r.ownedPost(ctx, id, authorID); err != nil {
		return err
	}
	err := r.posts.Transaction(ctx, func(tx *gorm.DB) error {
		txr := r.withTx(tx)
		if err := txr.tags.DetachPost(ctx, id); err != nil {
			return err
		}
		if _, err := txr.media.UpdateWhere(ctx, store.Filters{"post_id": id}, store.Fields{"post_id": nil}); err != nil {
			return err
		}
		return txr.posts.Delete(ctx, id)
	})
	return postErr(err)
}

// GetStats tallies the author's posts. Featured is counted regardless of
// status.
func (r *PostRepository) GetStats(ctx context.Context, authorID string) (model.AuthorStats, error) {
	rows, err := r.posts.FindMany(ctx, store.Filters{"author_id": authorID}, store.ListOptions{})
	if err != nil {
		return model.AuthorStats{}, err
	}
	var stats model.AuthorStats
	for _, row := range rows {
		stats.Total++
		switch row.Status {
		case model.StatusPublished:
			stats.Published++
		case model.StatusDraft:
			stats.Drafts++
		}
		if row.Featured {
			stats.Featured++
		}
	}
	return stats, nil
}

// IncrementViewCount reads the counter and writes it back plus one.
// Concurrent increments of the same post may be lost. updated_at is not
// touched.
func (r *PostRepository) IncrementViewCount(ctx context.Context, id string) error {
	row, err := r.posts.FindByID(ctx, id)
	if err != nil {
		return postErr(err)
	}
	return postErr(r.posts.UpdateColumn(ctx, id, "view_count", row.ViewCount+1))
}

func (r *PostRepository) ownedPost(ctx context.Context, id, authorID string) (*db.Post, error) {
	row, err := r.posts.FindByID(ctx, id)
	if err != nil {
		return nil, postErr(err)
	}
	if row.AuthorID != authorID {
		return nil, ErrNotPostAuthor
	}
	return row, nil
}

// uniqueSlug probes base, base-1, base-2, ... until a value is free or held
// by excludeID.
func (r *PostRepository) uniqueSlug(ctx context.Context, base, excludeID string) (string, error) {
	for n := 0; ; n++ {
		candidate := slug.WithSuffix(base, n)
		rows, err := r.posts.FindMany(ctx, store.Filters{"slug": candidate}, store.ListOptions{Limit: 1})
		if err != nil {
			return "", err
		}
		if len(rows) == 0 || (excludeID != "" && rows[0].ID == excludeID) {
			return candidate, nil
		}
	}
}

// retrySlug reruns write while it fails on a duplicate key, which after a
// fresh probe can only be a slug taken by a concurrent writer.
func (r *PostRepository) retrySlug(write func() error) error {
	var err error
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		err = write()
		if !errors.Is(err, store.ErrDuplicateKey) {
			return err
		}
	}
	return err
}

func parseContent(raw []byte) (content.Node, datatypes.JSON, error) {
	doc, err := content.Parse(raw)
	if err != nil || content.IsEmpty(doc) {
		return content.Node{}, nil, ErrInvalidContent
	}
	encoded, err := content.Encode(doc)
	if err != nil {
		return content.Node{}, nil, fmt.Errorf("encode content: %w", err)
	}
	return doc, datatypes.JSON(encoded), nil
}

func filterByTag(rows []db.Post, tag string) []db.Post {
	out := rows[:0]
	for _, row := range rows {
		for _, t := range row.Tags {
			if t.Slug == tag || strings.EqualFold(t.Name, tag) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func postErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrPostNotFound
	}
	return err
}

func (r *PostRepository) assembleOne(ctx context.Context, row db.Post) (*model.Post, error) {
	posts, err := r.assemble(ctx, []db.Post{row})
	if err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// assemble builds DTOs, loading the authors of all rows in one query.
func (r *PostRepository) assemble(ctx context.Context, rows []db.Post) ([]model.Post, error) {
	if len(rows) == 0 {
		return []model.Post{}, nil
	}

	ids := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.AuthorID]; !ok {
			seen[row.AuthorID] = struct{}{}
			ids = append(ids, row.AuthorID)
		}
	}
	authors, err := r.authors.FindMany(ctx, store.Filters{"id": ids}, store.ListOptions{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]db.Author, len(authors))
	for _, a := range authors {
		byID[a.ID] = a
	}

	out := make([]model.Post, 0, len(rows))
	for _, row := range rows {
		author := model.Author{ID: row.AuthorID, Name: anonymousAuthor}
		if a, ok := byID[row.AuthorID]; ok {
			author.Name = a.Name
			author.Avatar = a.AvatarURL
		}
		tags := make([]model.Tag, 0, len(row.Tags))
		for _, t := range row.Tags {
			tags = append(tags, toTag(t))
		}
		out = append(out, model.Post{
			ID:          row.ID,
			Title:       row.Title,
			Slug:        row.Slug,
			Excerpt:     row.Excerpt,
			Content:     []byte(row.Content),
			Author:      author,
			CoverImage:  row.CoverImageURL,
			Tags:        tags,
			Category:    row.Category,
			Status:      row.Status,
			Featured:    row.Featured,
			PublishedAt: row.PublishedAt,
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
			ReadTime:    row.ReadTime,
			ViewCount:   row.ViewCount,
		})
	}
	return out, nil
}
