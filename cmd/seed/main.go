package main

import (
	"context"
	"fmt"
	"time"

	"github.com/folio/internal/config"
	"github.com/folio/internal/db"
	"github.com/folio/internal/handler"
	"github.com/folio/internal/logging"
	"github.com/folio/internal/repository"
	"github.com/folio/internal/service"
)

// 演示数据生成器
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	gdb, err := db.Open(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		DSN:    cfg.DatabaseURL,
		Logger: logging.Component(logger, "gorm"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("数据库初始化失败")
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal().Err(err).Msg("数据库迁移失败")
	}

	tags := repository.NewTagRepository(gdb)
	blog, err := service.NewBlogService(repository.NewPostRepository(gdb, tags), tags,
		service.WithLogger(logging.Component(logger, "seed")))
	if err != nil {
		logger.Fatal().Err(err).Msg("blog service")
	}

	report, err := seed(context.Background(), gdb, blog)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
	logger.Info().
		Int("authors", report.Authors).
		Int("posts", report.Posts).
		Bool("skipped", report.Skipped).
		Msg("demo data ready")

	if cfg.JWTSecret != "" {
		token, err := handler.IssueToken(cfg.JWTSecret, demoAuthors[0].ID, 30*24*time.Hour)
		if err != nil {
			logger.Fatal().Err(err).Msg("issue token")
		}
		fmt.Printf("Bearer token for %s:\n%s\n", demoAuthors[0].Name, token)
	}
}
