package router

import (
	"net/http"
	"strings"

	"github.com/folio/internal/handler"
	"github.com/folio/internal/logging"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const sessionName = "folio_session"

// Options configures the HTTP surface.
type Options struct {
	SessionSecret string
	// UploadDir is served under UploadURLPath when set; blob stores that
	// publish their own URLs leave it empty.
	UploadDir     string
	UploadURLPath string
	Logger        zerolog.Logger
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(opts.Logger))

	// 配置会话中间件
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode, MaxAge: 30 * 24 * 3600})
	r.Use(sessions.Sessions(sessionName, store))

	if dir := strings.TrimSpace(opts.UploadDir); dir != "" {
		urlPath := strings.TrimSpace(opts.UploadURLPath)
		if urlPath == "" {
			urlPath = "/static/uploads"
		}
		r.Static(urlPath, dir)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	public := r.Group("/api")
	{
		public.POST("/session", api.StartSession)
		public.DELETE("/session", api.EndSession)

		public.GET("/posts", api.ListPosts)
		public.GET("/posts/search", api.SearchPosts)
		public.GET("/posts/featured", api.FeaturedPosts)
		public.GET("/posts/slug/:slug", api.GetPostBySlug)
		public.GET("/posts/id/:id", api.GetPost)
		public.GET("/posts/id/:id/html", api.GetPostHTML)
		public.GET("/posts/id/:id/related", api.RelatedPosts)

		public.GET("/tags", api.GetTags)
		public.GET("/tags/popular", api.PopularTags)
	}

	// 需要作者身份的路由
	auth := r.Group("/api")
	auth.Use(api.AuthRequired())
	{
		auth.GET("/me/posts", api.MyPosts)
		auth.GET("/me/stats", api.MyStats)
		auth.GET("/me/media", api.MyMedia)

		auth.POST("/posts", api.CreatePost)
		auth.PUT("/posts/:id", api.UpdatePost)
		auth.DELETE("/posts/:id", api.DeletePost)

		auth.PUT("/tags/:id", api.UpdateTag)
		auth.DELETE("/tags/:id", api.DeleteTag)

		auth.POST("/media", api.UploadMedia)
		auth.PATCH("/media/:id", api.UpdateMedia)
		auth.DELETE("/media/:id", api.DeleteMedia)
		auth.POST("/media/bulk-delete", api.BulkDeleteMedia)
	}

	return r
}
