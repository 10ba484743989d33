package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"
	"time"

	"github.com/folio/internal/blob"
	"github.com/folio/internal/db"
	"github.com/folio/internal/model"
	"github.com/folio/internal/store"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	// MaxUploadSize is the largest accepted media file.
	MaxUploadSize = 5 << 20
	// DefaultMediaFolder is the bucket used when neither the upload nor the
	// repository names one.
	DefaultMediaFolder = "blog-images"

	bulkDeleteConcurrency = 4
)

var (
	ErrMediaNotFound       = fmt.Errorf("media %w", store.ErrNotFound)
	ErrNotUploader         = fmt.Errorf("only the uploader may modify this media: %w", store.ErrPermissionDenied)
	ErrFileTooLarge        = fmt.Errorf("file exceeds the %s upload limit", FormatFileSize(MaxUploadSize))
	ErrUnsupportedFileType = errors.New("file type is not allowed; use jpeg, png, webp, gif or svg")
	ErrEmptyFile           = errors.New("file is empty")
)

var allowedMimeTypes = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/webp":    ".webp",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
}

// MediaRepository stores uploads in the blob store and their metadata rows
// in the database.
type MediaRepository struct {
	media  *store.Repository[db.Media]
	blobs  blob.Store
	folder string
	logger zerolog.Logger
	now    func() time.Time
}

func NewMediaRepository(gdb *gorm.DB, blobs blob.Store, logger zerolog.Logger) *MediaRepository {
	return &MediaRepository{
		media:  store.MustNew[db.Media](gdb),
		blobs:  blobs,
		folder: DefaultMediaFolder,
		logger: logger,
		now:    time.Now,
	}
}

// WithFolder returns a copy that stores uploads naming no folder in folder.
func (r *MediaRepository) WithFolder(folder string) *MediaRepository {
	clone := *r
	if folder = strings.TrimSpace(folder); folder != "" {
		clone.folder = folder
	}
	return &clone
}

// UploadFile validates file and stores it under uploaderID/ in folder.
// Nothing is written when validation fails.
func (r *MediaRepository) UploadFile(ctx context.Context, file model.File, uploaderID, folder string) (model.UploadResult, error) {
	if folder == "" {
		folder = r.folder
	}
	if file.Size > MaxUploadSize {
		return model.UploadResult{}, ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file.Reader, MaxUploadSize+1))
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return model.UploadResult{}, ErrFileTooLarge
	}
	if len(data) == 0 {
		return model.UploadResult{}, ErrEmptyFile
	}

	mimeType, err := detectMimeType(file, data)
	if err != nil {
		return model.UploadResult{}, err
	}

	objectPath := path.Join(uploaderID, generateFilename(r.now(), mimeType))
	obj, err := r.blobs.Upload(ctx, folder, objectPath, bytes.NewReader(data), int64(len(data)), mimeType)
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("upload %s: %w", file.Name, err)
	}

	width, height := imageSize(data)
	return model.UploadResult{
		Path:     obj.Path,
		FullPath: obj.FullPath,
		URL:      obj.URL,
		Width:    width,
		Height:   height,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

// CreateMediaRecord persists the metadata of an upload. The file is not
// validated again.
func (r *MediaRepository) CreateMediaRecord(ctx context.Context, upload model.UploadResult, file model.File, uploaderID string, postID *string, altText string) (*model.Media, error) {
	bucket := r.folder
	if i := strings.Index(upload.FullPath, "/"); i > 0 {
		bucket = upload.FullPath[:i]
	}
	mimeType := upload.MimeType
	if mimeType == "" {
		mimeType = file.ContentType
	}
	size := upload.Size
	if size == 0 {
		size = file.Size
	}

	row := db.Media{
		Filename:   file.Name,
		FilePath:   upload.Path,
		Bucket:     bucket,
		FileSize:   size,
		MimeType:   mimeType,
		Width:      upload.Width,
		Height:     upload.Height,
		UploaderID: uploaderID,
		PostID:     postID,
		AltText:    strings.TrimSpace(altText),
	}
	if err := r.media.Create(ctx, &row); err != nil {
		return nil, err
	}
	m := r.toMedia(row)
	return &m, nil
}

// UploadAndCreate uploads then records. A failed upload leaves no row; a
// failed insert after a successful upload leaves the blob behind.
func (r *MediaRepository) UploadAndCreate(ctx context.Context, file model.File, uploaderID string, opts model.UploadOptions) (*model.Media, error) {
	upload, err := r.UploadFile(ctx, file, uploaderID, opts.Folder)
	if err != nil {
		return nil, err
	}
	m, err := r.CreateMediaRecord(ctx, upload, file, uploaderID, opts.PostID, opts.AltText)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", upload.FullPath).Msg("media row insert failed after upload; blob left in place")
		return nil, err
	}
	return m, nil
}

func (r *MediaRepository) FindByID(ctx context.Context, id string) (*model.Media, error) {
	row, err := r.media.FindByID(ctx, id)
	if err != nil {
		return nil, mediaErr(err)
	}
	m := r.toMedia(*row)
	return &m, nil
}

// DeleteMedia removes the blob and then the row. A blob that cannot be
// removed is logged and the row is deleted anyway. An empty folder uses the
// bucket recorded on the row.
func (r *MediaRepository) DeleteMedia(ctx context.Context, id, folder string) error {
	row, err := r.media.FindByID(ctx, id)
	if err != nil {
		return mediaErr(err)
	}
	if folder == "" {
		folder = row.Bucket
	}

	if err := r.blobs.Remove(ctx, folder, row.FilePath); err != nil {
		r.logger.Error().Err(err).
			Str("media_id", id).
			Str("path", folder+"/"+row.FilePath).
			Msg("failed to remove blob; deleting media row anyway")
	}

	return mediaErr(r.media.Delete(ctx, id))
}

// DeleteMediaMultiple deletes each id independently. The returned outcomes
// follow the order of ids; a failed item does not stop the others.
func (r *MediaRepository) DeleteMediaMultiple(ctx context.Context, ids []string, folder string) []model.DeleteOutcome {
	outcomes := make([]model.DeleteOutcome, len(ids))

	var g errgroup.Group
	g.SetLimit(bulkDeleteConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i].ID = id
			if err := r.DeleteMedia(ctx, id, folder); err != nil {
				outcomes[i].Error = err.Error()
				r.logger.Warn().Err(err).Str("media_id", id).Msg("bulk media delete item failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (r *MediaRepository) FindByPost(ctx context.Context, postID string) ([]model.Media, error) {
	return r.list(ctx, store.Filters{"post_id": postID})
}

func (r *MediaRepository) FindByUploader(ctx context.Context, uploaderID string) ([]model.Media, error) {
	return r.list(ctx, store.Filters{"uploader_id": uploaderID})
}

func (r *MediaRepository) list(ctx context.Context, filters store.Filters) ([]model.Media, error) {
	rows, err := r.media.FindMany(ctx, filters, store.ListOptions{OrderBy: "created_at desc"})
	if err != nil {
		return nil, err
	}
	out := make([]model.Media, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.toMedia(row))
	}
	return out, nil
}

// AttachToPost moves the media to postID, or detaches it when postID is nil.
func (r *MediaRepository) AttachToPost(ctx context.Context, id, uploaderID string, postID *string) (*model.Media, error) {
	return r.updateOwned(ctx, id, uploaderID, store.Fields{"post_id": postID})
}

func (r *MediaRepository) SetAltText(ctx context.Context, id, uploaderID, altText string) (*model.Media, error) {
	return r.updateOwned(ctx, id, uploaderID, store.Fields{"alt_text": strings.TrimSpace(altText)})
}

func (r *MediaRepository) updateOwned(ctx context.Context, id, uploaderID string, fields store.Fields) (*model.Media, error) {
	row, err := r.media.FindByID(ctx, id)
	if err != nil {
		return nil, mediaErr(err)
	}
	if row.UploaderID != uploaderID {
		return nil, ErrNotUploader
	}
	row, err = r.media.Update(ctx, id, fields)
	if err != nil {
		return nil, mediaErr(err)
	}
	m := r.toMedia(*row)
	return &m, nil
}

// DetachPost clears post_id on every media row of the post.
func (r *MediaRepository) DetachPost(ctx context.Context, postID string) error {
	_, err := r.media.UpdateWhere(ctx, store.Filters{"post_id": postID}, store.Fields{"post_id": nil})
	return err
}

func (r *MediaRepository) toMedia(row db.Media) model.Media {
	return model.Media{
		ID:         row.ID,
		Filename:   row.Filename,
		FilePath:   row.FilePath,
		Bucket:     row.Bucket,
		URL:        r.blobs.PublicURL(row.Bucket, row.FilePath),
		FileSize:   row.FileSize,
		MimeType:   row.MimeType,
		Width:      row.Width,
		Height:     row.Height,
		UploaderID: row.UploaderID,
		PostID:     row.PostID,
		AltText:    row.AltText,
		CreatedAt:  row.CreatedAt,
	}
}

func mediaErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrMediaNotFound
	}
	return err
}

// detectMimeType trusts the declared type only when it is allowed and the
// bytes agree with it. SVG is text, so it is recognised by content.
func detectMimeType(file model.File, data []byte) (string, error) {
	declared := strings.ToLower(strings.TrimSpace(strings.Split(file.ContentType, ";")[0]))
	switch declared {
	case "image/jpg":
		declared = "image/jpeg"
	case "application/octet-stream":
		declared = ""
	}
	if declared != "" {
		if _, ok := allowedMimeTypes[declared]; !ok {
			return "", ErrUnsupportedFileType
		}
	}

	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if _, ok := allowedMimeTypes[m.String()]; ok {
			if declared != "" && declared != m.String() {
				return "", ErrUnsupportedFileType
			}
			return m.String(), nil
		}
	}
	return "", ErrUnsupportedFileType
}

func imageSize(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// generateFilename returns "<unix millis>-<uuid><ext>", the extension
// following the accepted type rather than the client's file name.
func generateFilename(now time.Time, mimeType string) string {
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString(), allowedMimeTypes[mimeType])
}

// FormatFileSize renders a byte count such as "1.5 MB".
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	value := float64(size)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	formatted := fmt.Sprintf("%.2f", value)
	formatted = strings.TrimRight(strings.TrimRight(formatted, "0"), ".")
	return formatted + " " + units[i]
}

// GetFileExtension returns the extension of name including the dot, or "".
func GetFileExtension(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return base[i:]
}

func IsImage(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

func IsVideo(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "video/")
}
