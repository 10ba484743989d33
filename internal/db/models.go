package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Post 定义了文章模型
type Post struct {
	ID            string         `gorm:"primaryKey;size:36"`
	Title         string         `gorm:"size:200;not null"`
	Slug          string         `gorm:"size:255;uniqueIndex;not null"`
	Excerpt       string         `gorm:"size:500"`
	Content       datatypes.JSON `gorm:"not null"`
	Category      string         `gorm:"size:32;index;not null"`
	Status        string         `gorm:"size:16;index;not null"`
	Featured      bool           `gorm:"not null;default:false"`
	CoverImageURL string         `gorm:"size:2048"`
	ReadTime      int            `gorm:"not null;default:1"`
	ViewCount     int64          `gorm:"not null;default:0"`
	AuthorID      string         `gorm:"size:64;index;not null"`
	PublishedAt   *time.Time     `gorm:"index"`
	CreatedAt     time.Time      `gorm:"index"`
	UpdatedAt     time.Time
	Tags          []Tag          `gorm:"many2many:post_tags;"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Tag 定义了标签模型
type Tag struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:50;uniqueIndex;not null"`
	Slug      string `gorm:"size:64;uniqueIndex;not null"`
	Color     string `gorm:"size:16;not null;default:#6366f1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// PostTag is the post/tag association row. The composite key makes
// re-associating a pair a conflict the repositories ignore.
type PostTag struct {
	PostID    string `gorm:"primaryKey;size:36"`
	TagID     string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

// Media 记录上传到对象存储的文件元数据。
type Media struct {
	ID         string  `gorm:"primaryKey;size:36"`
	Filename   string  `gorm:"size:255;not null"`
	FilePath   string  `gorm:"size:512;uniqueIndex:idx_media_location;not null"`
	Bucket     string  `gorm:"size:128;uniqueIndex:idx_media_location;not null"`
	FileSize   int64   `gorm:"not null"`
	MimeType   string  `gorm:"size:64;not null"`
	Width      int
	Height     int
	UploaderID string  `gorm:"size:64;index;not null"`
	PostID     *string `gorm:"size:36;index"`
	AltText    string  `gorm:"size:500"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (m *Media) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Author mirrors the public profile kept by the identity service.
type Author struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:120;not null"`
	AvatarURL string `gorm:"size:2048"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
