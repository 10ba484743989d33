package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/folio/internal/blob"
	"github.com/folio/internal/config"
	"github.com/folio/internal/db"
	"github.com/folio/internal/handler"
	"github.com/folio/internal/logging"
	"github.com/folio/internal/repository"
	"github.com/folio/internal/router"
	"github.com/folio/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.AppConfig, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	gdb, err := db.Open(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		DSN:    cfg.DatabaseURL,
		Logger: logging.Component(logger, "gorm"),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	tags := repository.NewTagRepository(gdb)
	posts := repository.NewPostRepository(gdb, tags)
	media := repository.NewMediaRepository(gdb, blobs, logging.Component(logger, "media")).WithFolder(cfg.BlobBucket)

	serviceLogger := logging.Component(logger, "blog")
	background := service.NewBackground(serviceLogger, nil, 0)
	blog, err := service.NewBlogService(posts, tags,
		service.WithLogger(serviceLogger),
		service.WithBackground(background),
	)
	if err != nil {
		return err
	}

	api := handler.NewAPI(blog, media, logging.Component(logger, "http"), cfg.JWTSecret)
	opts := router.Options{
		SessionSecret: cfg.SessionSecret,
		UploadURLPath: cfg.UploadURLPath,
		Logger:        logging.Component(logger, "http"),
	}
	if cfg.BlobDriver == "local" {
		opts.UploadDir = cfg.UploadDir
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.SetupRouter(api, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("db", cfg.DatabaseDriver).Str("blob", cfg.BlobDriver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	background.Wait()

	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}

func openBlobStore(ctx context.Context, cfg config.AppConfig) (blob.Store, error) {
	switch cfg.BlobDriver {
	case "local":
		return blob.NewLocal(cfg.UploadDir, cfg.UploadURLPath)
	case "memory":
		return blob.NewMemory(cfg.UploadURLPath), nil
	case "s3":
		return blob.NewS3(ctx, blob.S3Options{
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	case "azure":
		store, err := blob.NewAzure(cfg.AzureConnectionString, cfg.AzurePublicBaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureContainer(ctx, cfg.BlobBucket); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}
