package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/folio/internal/db"
	"github.com/folio/internal/model"
	"github.com/folio/internal/slug"
	"github.com/folio/internal/store"
	"github.com/folio/internal/validate"
	"gorm.io/gorm"
)

const defaultPopularTags = 10

var (
	ErrTagNotFound = fmt.Errorf("tag %w", store.ErrNotFound)
	ErrTagName     = fmt.Errorf("tag name is required: %w", validate.ErrValidation)
)

// TagRepository manages the tag vocabulary and the post/tag associations.
type TagRepository struct {
	tags  *store.Repository[db.Tag]
	links *store.Repository[db.PostTag]
}

func NewTagRepository(gdb *gorm.DB) *TagRepository {
	return &TagRepository{
		tags:  store.MustNew[db.Tag](gdb),
		links: store.MustNew[db.PostTag](gdb),
	}
}

// WithTx returns a copy whose calls run inside tx.
func (r *TagRepository) WithTx(tx *gorm.DB) *TagRepository {
	return &TagRepository{tags: r.tags.WithTx(tx), links: r.links.WithTx(tx)}
}

func (r *TagRepository) FindBySlug(ctx context.Context, tagSlug string) (*model.Tag, error) {
	return r.findBy(ctx, "slug", tagSlug)
}

func (r *TagRepository) FindByName(ctx context.Context, name string) (*model.Tag, error) {
	return r.findBy(ctx, "name", strings.TrimSpace(name))
}

func (r *TagRepository) FindByID(ctx context.Context, id string) (*model.Tag, error) {
	row, err := r.tags.FindByID(ctx, id)
	if err != nil {
		return nil, tagErr(err)
	}
	tag := toTag(*row)
	return &tag, nil
}

func (r *TagRepository) findBy(ctx context.Context, column, value string) (*model.Tag, error) {
	rows, err := r.tags.FindMany(ctx, store.Filters{column: value}, store.ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrTagNotFound
	}
	tag := toTag(rows[0])
	return &tag, nil
}

// FindOrCreate returns the tag named name, creating it with color (or the
// default color) when absent. Concurrent callers racing on the same name
// all get the row that won the insert.
func (r *TagRepository) FindOrCreate(ctx context.Context, name, color string) (model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Tag{}, ErrTagName
	}

	existing, err := r.FindByName(ctx, name)
	if err == nil {
		return *existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Tag{}, err
	}

	if strings.TrimSpace(color) == "" {
		color = model.DefaultTagColor
	}
	row := db.Tag{Name: name, Slug: slug.Make(name, "tag"), Color: color}

	// The insert runs in its own savepoint so a conflict does not abort an
	// enclosing postgres transaction before the re-fetch below.
	err = r.tags.Transaction(ctx, func(tx *gorm.DB) error {
		return r.tags.WithTx(tx).Create(ctx, &row)
	})
	if err == nil {
		return toTag(row), nil
	}
	if !errors.Is(err, store.ErrDuplicateKey) {
		return model.Tag{}, err
	}

	if existing, findErr := r.FindByName(ctx, name); findErr == nil {
		return *existing, nil
	}
	if existing, findErr := r.FindBySlug(ctx, row.Slug); findErr == nil {
		return *existing, nil
	}
	return model.Tag{}, err
}

type tagCountRow struct {
	db.Tag
	PostCount int64
}

func (r *TagRepository) countQuery(q *gorm.DB) *gorm.DB {
	return q.Model(&db.Tag{}).
		Select("tags.*, COUNT(post_tags.post_id) AS post_count").
		Joins("LEFT JOIN post_tags ON post_tags.tag_id = tags.id").
		Group("tags.id")
}

// GetAllWithCounts lists every tag with its post count, by name.
func (r *TagRepository) GetAllWithCounts(ctx context.Context) ([]model.TagWithCount, error) {
	rows, err := store.ScanInto[tagCountRow](ctx, r.tags.DB(), "tags with counts", func(q *gorm.DB) *gorm.DB {
		return r.countQuery(q).Order("tags.name ASC")
	})
	if err != nil {
		return nil, err
	}
	return toTagCounts(rows), nil
}

// GetPopular lists the most used tags, ties broken by name.
func (r *TagRepository) GetPopular(ctx context.Context, limit int) ([]model.TagWithCount, error) {
	if limit <= 0 {
		limit = defaultPopularTags
	}
	rows, err := store.ScanInto[tagCountRow](ctx, r.tags.DB(), "popular tags", func(q *gorm.DB) *gorm.DB {
		return r.countQuery(q).Order("post_count DESC").Order("tags.name ASC").Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	return toTagCounts(rows), nil
}

func (r *TagRepository) GetByPost(ctx context.Context, postID string) ([]model.Tag, error) {
	rows, err := r.tags.FindScoped(ctx, "tags by post", func(q *gorm.DB) *gorm.DB {
		return q.Joins("JOIN post_tags ON post_tags.tag_id = tags.id").
			Where("post_tags.post_id = ?", postID).
			Order("tags.name ASC")
	})
	if err != nil {
		return nil, err
	}
	tags := make([]model.Tag, 0, len(rows))
	for _, row := range rows {
		tags = append(tags, toTag(row))
	}
	return tags, nil
}

// UpdateTag renames and/or recolors a tag. A rename regenerates the slug;
// a clash with another tag surfaces as store.ErrDuplicateKey.
func (r *TagRepository) UpdateTag(ctx context.Context, id string, in model.TagUpdate) (*model.Tag, error) {
	in, err := validate.Tag(in).Unwrap()
	if err != nil {
		return nil, err
	}

	fields := store.Fields{}
	if in.Name != nil {
		fields["name"] = *in.Name
		fields["slug"] = slug.Make(*in.Name, "tag")
	}
	if in.Color != nil {
		fields["color"] = *in.Color
	}

	row, err := r.tags.Update(ctx, id, fields)
	if err != nil {
		return nil, tagErr(err)
	}
	tag := toTag(*row)
	return &tag, nil
}

// DeleteTag removes the tag and its associations. Posts are kept.
func (r *TagRepository) DeleteTag(ctx context.Context, id string) error {
	err := r.tags.Transaction(ctx, func(tx *gorm.DB) error {
		txr := r.WithTx(tx)
		if _, err := txr.links.DeleteWhere(ctx, store.Filters{"tag_id": id}); err != nil {
			return err
		}
		return txr.tags.Delete(ctx, id)
	})
	return tagErr(err)
}

// Associate links a post and a tag. Linking an already linked pair is a
// no-op.
func (r *TagRepository) Associate(ctx context.Context, postID, tagID string) error {
	return r.links.CreateOrIgnore(ctx, &db.PostTag{PostID: postID, TagID: tagID})
}

// AttachNames finds or creates each named tag and links it to the post.
func (r *TagRepository) AttachNames(ctx context.Context, postID string, names []string) ([]model.Tag, error) {
	tags := make([]model.Tag, 0, len(names))
	for _, name := range names {
		tag, err := r.FindOrCreate(ctx, name, "")
		if err != nil {
			return nil, err
		}
		if err := r.Associate(ctx, postID, tag.ID); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// ReplaceForPost drops every association of the post and links names
// instead. An empty list leaves the post untagged.
func (r *TagRepository) ReplaceForPost(ctx context.Context, postID string, names []string) ([]model.Tag, error) {
	if _, err := r.links.DeleteWhere(ctx, store.Filters{"post_id": postID}); err != nil {
		return nil, err
	}
	return r.AttachNames(ctx, postID, names)
}

// DetachPost removes every association of the post.
func (r *TagRepository) DetachPost(ctx context.Context, postID string) error {
	_, err := r.links.DeleteWhere(ctx, store.Filters{"post_id": postID})
	return err
}

func tagErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrTagNotFound
	}
	return err
}

func toTag(row db.Tag) model.Tag {
	return model.Tag{ID: row.ID, Name: row.Name, Slug: row.Slug, Color: row.Color}
}

func toTagCounts(rows []tagCountRow) []model.TagWithCount {
	out := make([]model.TagWithCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.TagWithCount{Tag: toTag(row.Tag), PostCount: row.PostCount})
	}
	return out
}
