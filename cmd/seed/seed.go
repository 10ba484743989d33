package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/folio/internal/content"
	"github.com/folio/internal/db"
	"github.com/folio/internal/model"
	"github.com/folio/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type seedReport struct {
	Authors int
	Posts   int
	Skipped bool
}

type demoPost struct {
	title    string
	excerpt  string
	body     string
	category string
	tags     []string
	status   string
	featured bool
	author   int
}

var demoAuthors = []db.Author{
	{ID: "demo-author", Name: "Demo Author", AvatarURL: "https://avatars.githubusercontent.com/u/0"},
	{ID: "guest-author", Name: "Guest Writer"},
}

var demoPosts = []demoPost{
	{
		title:    "Building fast web services in Go",
		excerpt:  "Framework choice, performance tuning and a real case study.",
		body:     "## Why Go\n\nGo's concurrency model and small runtime make it a good fit for **high-throughput** services.\n\n- goroutines are cheap\n- the standard library ships an HTTP server\n- deployment is a single binary",
		category: model.CategoryTechnical,
		tags:     []string{"Go", "Web", "Performance"},
		status:   model.StatusPublished,
		featured: true,
	},
	{
		title:    "GORM tips from production",
		excerpt:  "Preloading, transactions and the errors worth translating.",
		body:     "Turn on `TranslateError` so duplicate keys surface as `gorm.ErrDuplicatedKey`, and wrap multi-row writes in `Transaction`.",
		category: model.CategoryTutorial,
		tags:     []string{"Go", "Databases"},
		status:   model.StatusPublished,
	},
	{
		title:    "SQLite tuning notes",
		excerpt:  "Indexes, WAL mode and when a single file is enough.",
		body:     "SQLite handles far more traffic than its reputation suggests once indexes match the queries.",
		category: model.CategoryTechnical,
		tags:     []string{"Databases", "Performance"},
		status:   model.StatusPublished,
	},
	{
		title:    "Writing middleware for Gin",
		excerpt:  "Logging, auth and rate limiting as small handlers.",
		body:     "A gin middleware is a `gin.HandlerFunc` that calls `c.Next()`; anything after it runs once the handler chain returns.",
		category: model.CategoryTutorial,
		tags:     []string{"Go", "Web"},
		status:   model.StatusPublished,
	},
	{
		title:    "What a decade of side projects taught me",
		excerpt:  "Shipping small, writing things down and compounding.",
		body:     "Most of the projects never found users. All of them taught me something I still use.",
		category: model.CategoryCareer,
		tags:     []string{"Career"},
		status:   model.StatusPublished,
		author:   1,
	},
	{
		title:    "Thoughts on technical writing",
		excerpt:  "Structure first, prose second.",
		body:     "Start from the reader's question and put the answer in the first paragraph.",
		category: model.CategoryThoughts,
		tags:     []string{"Writing"},
		status:   model.StatusDraft,
	},
	{
		title:    "Go generics, one year in",
		excerpt:  "Where type parameters paid off and where they did not.",
		body:     "Generic repositories removed a lot of copy-paste; generic everything else mostly did not.",
		category: model.CategoryTechnical,
		tags:     []string{"Go"},
		status:   model.StatusDraft,
	},
}

// seed 写入演示作者与文章。已有文章时跳过，避免重复生成。
func seed(ctx context.Context, gdb *gorm.DB, blog *service.BlogService) (seedReport, error) {
	var existing int64
	if err := gdb.WithContext(ctx).Model(&db.Post{}).Count(&existing).Error; err != nil {
		return seedReport{}, fmt.Errorf("count posts: %w", err)
	}
	if existing > 0 {
		return seedReport{Skipped: true}, nil
	}

	if err := gdb.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&demoAuthors).Error; err != nil {
		return seedReport{}, fmt.Errorf("create authors: %w", err)
	}

	report := seedReport{Authors: len(demoAuthors)}
	for _, p := range demoPosts {
		body, err := markdownDoc(p.body)
		if err != nil {
			return report, err
		}
		_, err = blog.CreatePost(ctx, model.CreatePostInput{
			Title:    p.title,
			Excerpt:  p.excerpt,
			Content:  body,
			Tags:     p.tags,
			Status:   p.status,
			Category: p.category,
			Featured: p.featured,
		}, demoAuthors[p.author].ID)
		if err != nil {
			return report, fmt.Errorf("create %q: %w", p.title, err)
		}
		report.Posts++
	}
	return report, nil
}

func markdownDoc(body string) ([]byte, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("empty demo body")
	}
	return content.Encode(content.Markdown(body))
}
