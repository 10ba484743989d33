package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/folio/internal/repository"
	"github.com/folio/internal/store"
	"github.com/folio/internal/validate"
	"github.com/gin-gonic/gin"
)

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondError maps a domain error onto a status code. Unknown errors are
// logged and reported without detail.
func (a *API) respondError(c *gin.Context, err error) {
	var verr *validate.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, validate.ErrValidation), errors.Is(err, repository.ErrEmptyFile):
		respondMessage(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondMessage(c, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrPermissionDenied):
		respondMessage(c, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrDuplicateKey):
		respondMessage(c, http.StatusConflict, "resource already exists")
	case errors.Is(err, repository.ErrFileTooLarge):
		respondMessage(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, repository.ErrUnsupportedFileType):
		respondMessage(c, http.StatusUnsupportedMediaType, err.Error())
	default:
		a.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		respondMessage(c, http.StatusInternalServerError, "internal error")
	}
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondMessage(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// queryInt reads a non-negative integer query value, falling back on
// anything unparsable.
func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func queryBool(c *gin.Context, key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && value
}
