package model

// DefaultTagColor is used when a tag is created without a color.
const DefaultTagColor = "#6366f1"

type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color"`
}

// TagWithCount annotates a tag with the number of posts using it.
type TagWithCount struct {
	Tag
	PostCount int64 `json:"postCount"`
}

// TagUpdate renames or recolors a tag; nil fields are left untouched.
type TagUpdate struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}
