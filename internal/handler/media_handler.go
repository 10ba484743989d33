package handler

import (
	"net/http"
	"strings"

	"github.com/folio/internal/model"
	"github.com/folio/internal/repository"
	"github.com/gin-gonic/gin"
)

type mediaUpdateRequest struct {
	PostID  *string `json:"postId"`
	AltText *string `json:"altText"`
	// DetachPost clears the post link; postId is ignored when set.
	DetachPost bool `json:"detachPost"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// UploadMedia 处理媒体上传请求，表单字段 file 为必填
func (a *API) UploadMedia(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "missing file field")
		return
	}
	f, err := header.Open()
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "unreadable upload")
		return
	}
	defer f.Close()

	opts := model.UploadOptions{
		Folder:  strings.TrimSpace(c.PostForm("folder")),
		AltText: c.PostForm("altText"),
	}
	if postID := strings.TrimSpace(c.PostForm("postId")); postID != "" {
		opts.PostID = &postID
	}

	media, err := a.media.UploadAndCreate(c.Request.Context(), model.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      f,
	}, currentAuthor(c), opts)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"media": media})
}

func (a *API) MyMedia(c *gin.Context) {
	media, err := a.media.FindByUploader(c.Request.Context(), currentAuthor(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": media})
}

func (a *API) UpdateMedia(c *gin.Context) {
	var req mediaUpdateRequest
	if !bindJSON(c, &req, "invalid media payload") {
		return
	}
	ctx, id, uploader := c.Request.Context(), c.Param("id"), currentAuthor(c)

	var (
		media *model.Media
		err   error
	)
	if req.DetachPost || req.PostID != nil {
		postID := req.PostID
		if req.DetachPost {
			postID = nil
		}
		if media, err = a.media.AttachToPost(ctx, id, uploader, postID); err != nil {
			a.respondError(c, err)
			return
		}
	}
	if req.AltText != nil {
		if media, err = a.media.SetAltText(ctx, id, uploader, *req.AltText); err != nil {
			a.respondError(c, err)
			return
		}
	}
	if media == nil {
		if media, err = a.ownedMedia(c, id); err != nil {
			a.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"media": media})
}

// DeleteMedia removes one media item owned by the caller.
func (a *API) DeleteMedia(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.ownedMedia(c, id); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.media.DeleteMedia(c.Request.Context(), id, ""); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BulkDeleteMedia deletes the caller's items and reports a per-item outcome.
// Items owned by someone else are reported as failures and left alone.
func (a *API) BulkDeleteMedia(c *gin.Context) {
	var req bulkDeleteRequest
	if !bindJSON(c, &req, "ids are required") {
		return
	}

	outcomes := make([]model.DeleteOutcome, len(req.IDs))
	owned := make([]string, 0, len(req.IDs))
	index := make(map[string]int, len(req.IDs))
	for i, id := range req.IDs {
		outcomes[i].ID = id
		if _, err := a.ownedMedia(c, id); err != nil {
			outcomes[i].Error = err.Error()
			continue
		}
		index[id] = i
		owned = append(owned, id)
	}
	for _, o := range a.media.DeleteMediaMultiple(c.Request.Context(), owned, "") {
		outcomes[index[o.ID]] = o
	}
	c.JSON(http.StatusOK, gin.H{"results": outcomes})
}

func (a *API) ownedMedia(c *gin.Context, id string) (*model.Media, error) {
	media, err := a.media.FindByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if media.UploaderID != currentAuthor(c) {
		return nil, repository.ErrNotUploader
	}
	return media, nil
}
