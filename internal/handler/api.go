package handler

import (
	"github.com/folio/internal/repository"
	"github.com/folio/internal/service"
	"github.com/rs/zerolog"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	blog      *service.BlogService
	media     *repository.MediaRepository
	logger    zerolog.Logger
	jwtSecret []byte
}

// NewAPI constructs a handler set. jwtSecret may be empty, in which case
// bearer tokens are rejected and only sessions identify authors.
func NewAPI(blog *service.BlogService, media *repository.MediaRepository, logger zerolog.Logger, jwtSecret string) *API {
	return &API{
		blog:      blog,
		media:     media,
		logger:    logger,
		jwtSecret: []byte(jwtSecret),
	}
}
