package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/locallm/internal/generation"
)

func (h *handlers) generateText(c *gin.Context) {
	var req generation.TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.generator.GenerateText(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) generateImage(c *gin.Context) {
	var req generation.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.generator.GenerateImage(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
