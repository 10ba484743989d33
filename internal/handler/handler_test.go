package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/folio/internal/blob"
	"github.com/folio/internal/db"
	"github.com/folio/internal/repository"
	"github.com/folio/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

type testServer struct {
	engine *gin.Engine
	blobs  *blob.Memory
	blog   *service.BlogService
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	tags := repository.NewTagRepository(gdb)
	blog, err := service.NewBlogService(repository.NewPostRepository(gdb, tags), tags)
	if err != nil {
		t.Fatalf("new blog service: %v", err)
	}
	blobs := blob.NewMemory("/static/uploads")
	api := NewAPI(blog, repository.NewMediaRepository(gdb, blobs, zerolog.Nop()), zerolog.Nop(), testSecret)

	r := gin.New()
	r.Use(sessions.Sessions("folio_session", cookie.NewStore([]byte(testSecret))))
	r.POST("/api/session", api.StartSession)
	r.GET("/api/posts", api.ListPosts)
	r.GET("/api/posts/slug/:slug", api.GetPostBySlug)
	r.GET("/api/posts/id/:id/html", api.GetPostHTML)
	r.GET("/api/posts/id/:id/related", api.RelatedPosts)
	r.GET("/api/tags", api.GetTags)

	auth := r.Group("/api", api.AuthRequired())
	auth.GET("/me/stats", api.MyStats)
	auth.POST("/posts", api.CreatePost)
	auth.PUT("/posts/:id", api.UpdatePost)
	auth.DELETE("/posts/:id", api.DeletePost)
	auth.PUT("/tags/:id", api.UpdateTag)
	auth.POST("/media", api.UploadMedia)
	auth.DELETE("/media/:id", api.DeleteMedia)
	auth.POST("/media/bulk-delete", api.BulkDeleteMedia)

	return &testServer{engine: r, blobs: blobs, blog: blog}
}

func bearer(t *testing.T, authorID string) string {
	t.Helper()
	token, err := IssueToken(testSecret, authorID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func (s *testServer) do(t *testing.T, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

type postEnvelope struct {
	Post struct {
		ID          string  `json:"id"`
		Slug        string  `json:"slug"`
		Status      string  `json:"status"`
		PublishedAt *string `json:"publishedAt"`
		Tags        []struct {
			Name string `json:"name"`
		} `json:"tags"`
	} `json:"post"`
}

func createPostBody(title, status string, tags ...string) map[string]any {
	return map[string]any{
		"title":   title,
		"content": "Some **markdown** body",
		"status":  status,
		"tags":    tags,
	}
}

func TestCreatePostRequiresIdentity(t *testing.T) {
	s := setupTestServer(t)

	if w := s.do(t, http.MethodPost, "/api/posts", "", createPostBody("Hi", "draft")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/posts", "Bearer not-a-token", createPostBody("Hi", "draft")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", w.Code)
	}
	wrongKey, _ := IssueToken("other-secret", "author-a", time.Hour)
	if w := s.do(t, http.MethodPost, "/api/posts", "Bearer "+wrongKey, createPostBody("Hi", "draft")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a foreign signature, got %d", w.Code)
	}
}

func TestCreateAndPublishPost(t *testing.T) {
	s := setupTestServer(t)
	auth := bearer(t, "author-a")

	w := s.do(t, http.MethodPost, "/api/posts", auth, createPostBody("Hello World", "draft", "react", "testing"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[postEnvelope](t, w)
	if created.Post.Slug != "hello-world" || created.Post.PublishedAt != nil || len(created.Post.Tags) != 2 {
		t.Fatalf("unexpected created post %+v", created.Post)
	}

	w = s.do(t, http.MethodPut, "/api/posts/"+created.Post.ID, auth, map[string]any{"status": "published"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if updated := decode[postEnvelope](t, w); updated.Post.PublishedAt == nil {
		t.Fatalf("expected publishedAt after publish")
	}

	w = s.do(t, http.MethodGet, "/api/posts/slug/hello-world", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	s.blog.Background().Wait()

	w = s.do(t, http.MethodGet, "/api/posts/id/"+created.Post.ID+"/html", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<strong>markdown</strong>") {
		t.Fatalf("unexpected html response %d: %s", w.Code, w.Body.String())
	}
}

func TestCreatePostValidationFields(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/posts", bearer(t, "author-a"), map[string]any{"title": "", "content": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decode[struct {
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}](t, w)
	if len(body.Fields) != 2 {
		t.Fatalf("expected title and content errors, got %+v", body.Fields)
	}
}

func TestStrictCreateRequiresTags(t *testing.T) {
	s := setupTestServer(t)
	payload := map[string]any{
		"title":   "Untagged",
		"content": map[string]any{"type": "doc", "content": []any{map[string]any{"type": "paragraph", "content": []any{map[string]any{"type": "text", "text": "hi"}}}}},
	}

	w := s.do(t, http.MethodPost, "/api/posts?strict=1", bearer(t, "author-a"), payload)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tags, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/posts", bearer(t, "author-a"), payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 in lenient mode, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdatePostByOtherAuthorIsForbidden(t *testing.T) {
	s := setupTestServer(t)

	created := decode[postEnvelope](t, s.do(t, http.MethodPost, "/api/posts", bearer(t, "author-a"), createPostBody("Mine", "draft")))

	w := s.do(t, http.MethodPut, "/api/posts/"+created.Post.ID, bearer(t, "author-b"), map[string]any{"title": "Yours"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/posts/"+created.Post.ID, bearer(t, "author-b"), nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on delete, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/posts/id/"+created.Post.ID+"/html", bearer(t, "author-b"), nil); w.Code != http.StatusNotFound {
		t.Fatalf("drafts must be hidden from other authors, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/posts/id/"+created.Post.ID+"/html", bearer(t, "author-a"), nil); w.Code != http.StatusOK {
		t.Fatalf("drafts must render for their author, got %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/posts/"+created.Post.ID, bearer(t, "author-a"), nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestMissingPostIsNotFound(t *testing.T) {
	s := setupTestServer(t)

	if w := s.do(t, http.MethodGet, "/api/posts/slug/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/posts/id/nope/related", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for related, got %d", w.Code)
	}
}

func TestTagRenameConflict(t *testing.T) {
	s := setupTestServer(t)
	auth := bearer(t, "author-a")
	s.do(t, http.MethodPost, "/api/posts", auth, createPostBody("Tagged", "published", "go", "rust"))

	tags := decode[struct {
		Tags []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			PostCount int64  `json:"postCount"`
		} `json:"tags"`
	}](t, s.do(t, http.MethodGet, "/api/tags", "", nil))
	if len(tags.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %+v", tags.Tags)
	}

	w := s.do(t, http.MethodPut, "/api/tags/"+tags.Tags[1].ID, auth, map[string]any{"name": tags.Tags[0].Name})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPut, "/api/tags/"+tags.Tags[1].ID, auth, map[string]any{"color": "red"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad color, got %d", w.Code)
	}
}

func TestSessionFromToken(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
	req.Header.Set("Authorization", bearer(t, "author-a"))
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected a session cookie")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/me/stats", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected session to authenticate, got %d", w.Code)
	}
}

func TestBearerTokenTakesPrecedenceOverSession(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
	req.Header.Set("Authorization", bearer(t, "author-a"))
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	cookies := w.Result().Cookies()
	if w.Code != http.StatusOK || len(cookies) == 0 {
		t.Fatalf("expected a session for author-a, got %d", w.Code)
	}

	withSession := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
		req.Header.Set("Authorization", auth)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		return w
	}

	w = withSession(bearer(t, "author-b"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode[struct {
		AuthorID string `json:"authorId"`
	}](t, w)
	if body.AuthorID != "author-b" {
		t.Fatalf("expected the token identity author-b, got %q", body.AuthorID)
	}

	if w := withSession("Bearer not-a-token"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected a bad token to fail despite the session, got %d", w.Code)
	}
}

func multipartUpload(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(data)
	mw.WriteField("altText", "diagram")
	mw.Close()
	return &body, mw.FormDataContentType()
}

func (s *testServer) upload(t *testing.T, auth, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartUpload(t, filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/api/media", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", auth)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func tinyPNG(t *testing.T) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestUploadMediaStatusCodes(t *testing.T) {
	s := setupTestServer(t)
	auth := bearer(t, "author-a")

	w := s.upload(t, auth, "pic.png", "image/png", tinyPNG(t))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	media := decode[struct {
		Media struct {
			ID      string `json:"id"`
			URL     string `json:"url"`
			AltText string `json:"altText"`
		} `json:"media"`
	}](t, w)
	if !strings.HasPrefix(media.Media.URL, "/static/uploads/blog-images/author-a/") || media.Media.AltText != "diagram" {
		t.Fatalf("unexpected media %+v", media.Media)
	}

	if w := s.upload(t, auth, "notes.txt", "text/plain", []byte("hello")); w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
	big := append(tinyPNG(t), make([]byte, 6<<20)...)
	if w := s.upload(t, auth, "big.png", "image/png", big); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if s.blobs.Len() != 1 {
		t.Fatalf("rejected uploads must not store blobs, have %d", s.blobs.Len())
	}

	if w := s.do(t, http.MethodDelete, "/api/media/"+media.Media.ID, bearer(t, "author-b"), nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a foreign delete, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/media/bulk-delete", auth, map[string]any{"ids": []string{media.Media.ID, "missing"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	results := decode[struct {
		Results []struct {
			ID    string `json:"id"`
			Error string `json:"error"`
		} `json:"results"`
	}](t, w)
	if len(results.Results) != 2 || results.Results[0].Error != "" || results.Results[1].Error == "" {
		t.Fatalf("unexpected bulk results %+v", results.Results)
	}
	if s.blobs.Len() != 0 {
		t.Fatalf("expected blob removed")
	}
}
