package handler

import (
	"net/http"

	"github.com/folio/internal/model"
	"github.com/gin-gonic/gin"
)

// GetTags 获取标签列表及文章数
func (a *API) GetTags(c *gin.Context) {
	tags, err := a.blog.GetAllTags(c.Request.Context())
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (a *API) PopularTags(c *gin.Context) {
	tags, err := a.blog.GetPopularTags(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// UpdateTag 更新标签名称或颜色
func (a *API) UpdateTag(c *gin.Context) {
	var in model.TagUpdate
	if !bindJSON(c, &in, "invalid tag payload") {
		return
	}
	tag, err := a.blog.UpdateTag(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": tag})
}

// DeleteTag 删除标签，关联文章保留
func (a *API) DeleteTag(c *gin.Context) {
	if err := a.blog.DeleteTag(c.Request.Context(), c.Param("id")); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
