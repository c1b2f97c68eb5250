package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/conversation"
	"github.com/zulandar/locallm/internal/generation"
	"github.com/zulandar/locallm/internal/logger"
	"github.com/zulandar/locallm/internal/settings"
)

type handlers struct {
	settings      *settings.Service
	conversations *conversation.Manager
	generator     *generation.Service
	log           *logger.Logger
}

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.healthz)

	api := router.Group("/api/v1")

	api.POST("/generate/text", h.generateText)
	api.POST("/generate/image", h.generateImage)

	api.GET("/conversations", h.listConversations)
	api.POST("/conversations", h.createConversation)
	api.GET("/conversations/:id", h.getConversation)
	api.PATCH("/conversations/:id", h.updateConversation)
	api.DELETE("/conversations/:id", h.deleteConversation)
	api.GET("/conversations/:id/messages", h.listMessages)
	api.POST("/conversations/:id/messages", h.addMessage)

	api.POST("/settings", h.createSetting)
	api.GET("/settings/:scope", h.listSettings)
	api.PATCH("/settings/:scope", h.batchSettings)
	api.GET("/settings/:scope/:key", h.getSetting)
	api.PUT("/settings/:scope/:key", h.putSetting)
	api.DELETE("/settings/:scope/:key", h.deleteSetting)
}

func (h *handlers) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail renders err as {"error": message} with the status for its kind.
func (h *handlers) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

var errBadID = errors.New("id must be a positive integer")

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, errBadID)
		return 0, false
	}
	return uint(id), true
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, errors.New(name+" must be an integer"))
		return 0, false
	}
	return n, true
}

// scopeID reads the optional scope_id query parameter.
func scopeID(c *gin.Context) (*int64, bool) {
	raw := c.Query("scope_id")
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, errors.New("scope_id must be an integer"))
		return nil, false
	}
	return &n, true
}
