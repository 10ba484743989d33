package handler

import (
	"net/http"

	"github.com/folio/internal/model"
	"github.com/folio/internal/validate"
	"github.com/gin-gonic/gin"
)

// ListPosts 获取已发布文章列表
func (a *API) ListPosts(c *gin.Context) {
	var filters model.BlogPostFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid filters")
		return
	}
	posts, err := a.blog.GetPublishedPosts(c.Request.Context(), filters)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (a *API) SearchPosts(c *gin.Context) {
	posts, err := a.blog.SearchPosts(c.Request.Context(), c.Query("q"), queryInt(c, "limit", 0))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (a *API) FeaturedPosts(c *gin.Context) {
	posts, err := a.blog.GetFeaturedPosts(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// GetPostBySlug counts a view.
func (a *API) GetPostBySlug(c *gin.Context) {
	post, err := a.blog.GetPostBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

func (a *API) GetPost(c *gin.Context) {
	post, err := a.blog.GetPostByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

// GetPostHTML returns the rendered body; drafts stay private to their author
// and are reported as missing to everyone else.
func (a *API) GetPostHTML(c *gin.Context) {
	post, err := a.blog.GetPostByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	if post.Status != model.StatusPublished {
		if authorID, err := a.identify(c); err != nil || authorID != post.Author.ID {
			respondMessage(c, http.StatusNotFound, "post not found")
			return
		}
	}
	html, err := a.blog.RenderPostHTML(post)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (a *API) RelatedPosts(c *gin.Context) {
	posts, err := a.blog.GetRelatedPosts(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 0))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// CreatePost 创建文章
func (a *API) CreatePost(c *gin.Context) {
	var in model.CreatePostInput
	if !bindJSON(c, &in, "invalid post payload") {
		return
	}
	// 表单提交要求至少一个标签
	if queryBool(c, "strict") {
		if err := validate.CreatePostForm(in).Err(); err != nil {
			a.respondError(c, err)
			return
		}
	}
	post, err := a.blog.CreatePost(c.Request.Context(), in, currentAuthor(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// UpdatePost 更新文章，未提供的字段保持不变
func (a *API) UpdatePost(c *gin.Context) {
	var in model.UpdatePostInput
	if !bindJSON(c, &in, "invalid post payload") {
		return
	}
	post, err := a.blog.UpdatePost(c.Request.Context(), c.Param("id"), in, currentAuthor(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

func (a *API) DeletePost(c *gin.Context) {
	if err := a.blog.DeletePost(c.Request.Context(), c.Param("id"), currentAuthor(c)); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MyPosts lists the signed-in author's posts, drafts included with
// ?drafts=true.
func (a *API) MyPosts(c *gin.Context) {
	posts, err := a.blog.GetAuthorPosts(c.Request.Context(), currentAuthor(c), queryBool(c, "drafts"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (a *API) MyStats(c *gin.Context) {
	stats, err := a.blog.GetAuthorStats(c.Request.Context(), currentAuthor(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
