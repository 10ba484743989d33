package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/folio/internal/content"
	"github.com/folio/internal/model"
	"github.com/go-playground/validator/v10"
)

const (
	MaxTitleLength   = 200
	MaxExcerptLength = 500
	MaxTagLength     = 50
	MinFormTags      = 1
	MaxFormTags      = 10
)

var engine = validator.New(validator.WithRequiredStructEnabled())

var (
	titleRule    = fmt.Sprintf("required,max=%d", MaxTitleLength)
	excerptRule  = fmt.Sprintf("max=%d", MaxExcerptLength)
	categoryRule = "oneof=" + strings.Join(model.Categories, " ")
	statusRule   = "oneof=" + strings.Join(model.Statuses, " ")
	tagRule      = fmt.Sprintf("required,max=%d", MaxTagLength)
	formTagsRule = fmt.Sprintf("min=%d,max=%d", MinFormTags, MaxFormTags)
)

// CreatePost applies the service-level rules to a new post and returns the
// input with its title trimmed and defaults filled in.
func CreatePost(in model.CreatePostInput) Result[model.CreatePostInput] {
	var c collector
	in = normalizeCreate(in)
	checkCreate(&c, in)
	return finish(&c, in)
}

// CreatePostForm is CreatePost plus the stricter editor form rules: one to
// ten tags.
func CreatePostForm(in model.CreatePostInput) Result[model.CreatePostInput] {
	var c collector
	in = normalizeCreate(in)
	checkCreate(&c, in)
	check(&c, "tags", in.Tags, formTagsRule)
	return finish(&c, in)
}

// UpdatePost applies the same rules as CreatePost to the fields present.
func UpdatePost(in model.UpdatePostInput) Result[model.UpdatePostInput] {
	var c collector
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		in.Title = &title
		check(&c, "title", title, titleRule)
	}
	if in.Excerpt != nil {
		check(&c, "excerpt", *in.Excerpt, excerptRule)
	}
	if in.HasContent() {
		checkContent(&c, in.Content)
	}
	if in.Category != nil {
		check(&c, "category", *in.Category, categoryRule)
	}
	if in.Status != nil {
		check(&c, "status", *in.Status, statusRule)
	}
	if in.CoverImageURL != nil && *in.CoverImageURL != "" {
		check(&c, "coverImageUrl", *in.CoverImageURL, "url")
	}
	if in.Tags != nil {
		tags := cleanTags(*in.Tags)
		in.Tags = &tags
		checkTags(&c, tags)
	}
	return finish(&c, in)
}

// Tag checks a rename or recolor.
func Tag(in model.TagUpdate) Result[model.TagUpdate] {
	var c collector
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
		check(&c, "name", name, tagRule)
	}
	if in.Color != nil {
		check(&c, "color", *in.Color, "required,hexcolor")
	}
	return finish(&c, in)
}

func normalizeCreate(in model.CreatePostInput) model.CreatePostInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Excerpt = strings.TrimSpace(in.Excerpt)
	in.Tags = cleanTags(in.Tags)
	if in.Status == "" {
		in.Status = model.StatusDraft
	}
	if in.Category == "" {
		in.Category = model.CategoryTechnical
	}
	return in
}

func checkCreate(c *collector, in model.CreatePostInput) {
	check(c, "title", in.Title, titleRule)
	check(c, "excerpt", in.Excerpt, excerptRule)
	checkContent(c, in.Content)
	check(c, "category", in.Category, categoryRule)
	check(c, "status", in.Status, statusRule)
	if in.CoverImageURL != "" {
		check(c, "coverImageUrl", in.CoverImageURL, "url")
	}
	checkTags(c, in.Tags)
}

func checkContent(c *collector, raw []byte) {
	doc, err := content.Parse(raw)
	switch {
	case errors.Is(err, content.ErrEmpty):
		c.add("content", "required", "content is required")
	case err != nil:
		c.add("content", "document", "content must be a rich-text document")
	case content.IsEmpty(doc):
		c.add("content", "required", "content is required")
	}
}

func checkTags(c *collector, tags []string) {
	for i, tag := range tags {
		check(c, fmt.Sprintf("tags[%d]", i), tag, tagRule)
	}
}

// cleanTags trims names and drops blanks and case-insensitive duplicates,
// keeping first-seen order.
func cleanTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		name := strings.TrimSpace(tag)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

func check(c *collector, field string, value any, rule string) {
	err := engine.Var(value, rule)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		c.add(field, "invalid", fmt.Sprintf("%s is invalid", field))
		return
	}
	for _, fe := range fieldErrs {
		c.add(field, fe.Tag(), message(field, fe))
	}
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		if field == "tags" {
			return fmt.Sprintf("at most %s tags are allowed", fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("at least %s tag is required", fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return field + " must be a valid URL"
	case "hexcolor":
		return field + " must be a hex color"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
