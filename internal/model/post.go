// Package model holds the call-level contract of the content layer: the
// read-model DTOs returned to callers and the inputs they send.
package model

import (
	"encoding/json"
	"time"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

const (
	CategoryTechnical = "technical"
	CategoryCareer    = "career"
	CategoryTutorial  = "tutorial"
	CategoryThoughts  = "thoughts"
)

// Categories lists the accepted post categories.
var Categories = []string{CategoryTechnical, CategoryCareer, CategoryTutorial, CategoryThoughts}

// Statuses lists the accepted post statuses.
var Statuses = []string{StatusDraft, StatusPublished, StatusArchived}

// Post is the assembled read model of a post.
type Post struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Excerpt     string          `json:"excerpt"`
	Content     json.RawMessage `json:"content"`
	Author      Author          `json:"author"`
	CoverImage  string          `json:"coverImage"`
	Tags        []Tag           `json:"tags"`
	Category    string          `json:"category"`
	Status      string          `json:"status"`
	Featured    bool            `json:"featured"`
	PublishedAt *time.Time      `json:"publishedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	ReadTime    int             `json:"readTime"`
	ViewCount   int64           `json:"viewCount"`
}

type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// AuthorStats is computed on demand, never stored.
type AuthorStats struct {
	Total     int `json:"total"`
	Published int `json:"published"`
	Drafts    int `json:"drafts"`
	Featured  int `json:"featured"`
}

// CreatePostInput is the body of a new post. Status and Category default to
// draft and technical when empty.
type CreatePostInput struct {
	Title         string          `json:"title"`
	Excerpt       string          `json:"excerpt,omitempty"`
	Content       json.RawMessage `json:"content"`
	Tags          []string        `json:"tags"`
	Status        string          `json:"status"`
	Category      string          `json:"category"`
	Featured      bool            `json:"featured"`
	CoverImageURL string          `json:"coverImageUrl,omitempty"`
}

// UpdatePostInput carries only the fields to change. A nil pointer, or nil
// Content, means "leave as is". A non-nil Tags replaces the whole set, so
// &[]string{} clears it.
type UpdatePostInput struct {
	Title         *string         `json:"title,omitempty"`
	Excerpt       *string         `json:"excerpt,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
	Tags          *[]string       `json:"tags,omitempty"`
	Status        *string         `json:"status,omitempty"`
	Category      *string         `json:"category,omitempty"`
	Featured      *bool           `json:"featured,omitempty"`
	CoverImageURL *string         `json:"coverImageUrl,omitempty"`
}

// HasContent reports whether the update carries a content document.
func (in UpdatePostInput) HasContent() bool {
	return in.Content != nil
}

// BlogPostFilters narrows a published listing. Limit <= 0 takes the
// caller's default.
type BlogPostFilters struct {
	Tag      string `form:"tag" json:"tag,omitempty"`
	Category string `form:"category" json:"category,omitempty"`
	Search   string `form:"search" json:"search,omitempty"`
	Limit    int    `form:"limit" json:"limit,omitempty"`
	Offset   int    `form:"offset" json:"offset,omitempty"`
}
