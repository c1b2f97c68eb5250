package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/locallm/internal/conversation"
	"github.com/zulandar/locallm/internal/models"
)

type createConversationBody struct {
	Title        string           `json:"title"`
	ModelType    models.ModelType `json:"model_type"`
	ModelName    string           `json:"model_name"`
	SystemPrompt string           `json:"system_prompt"`
}

type updateConversationBody struct {
	Title        *string `json:"title"`
	SystemPrompt *string `json:"system_prompt"`
}

type addMessageBody struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

func (h *handlers) listConversations(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	list, err := h.conversations.Conversations().List(c.Request.Context(), conversation.ListOpts{
		OrderBy:   c.Query("order_by"),
		Direction: c.Query("direction"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (h *handlers) createConversation(c *gin.Context) {
	var body createConversationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if body.ModelType == "" {
		body.ModelType = models.ModelTypeText
	}
	conv, welcome, err := h.conversations.StartConversation(c.Request.Context(), body.Title, body.ModelType, body.ModelName, body.SystemPrompt)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv, "welcome_message": welcome})
}

func (h *handlers) getConversation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	conv, err := h.conversations.Conversations().Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	count, err := h.conversations.Messages().Count(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "message_count": count})
}

func (h *handlers) updateConversation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body updateConversationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := h.conversations.Conversations().Update(c.Request.Context(), id, conversation.Update{
		Title:        body.Title,
		SystemPrompt: body.SystemPrompt,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

func (h *handlers) deleteConversation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.conversations.Conversations().Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listMessages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	before, ok := queryInt(c, "before_id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	if before < 0 {
		badRequest(c, errBadID)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.conversations.Conversations().Get(ctx, id); err != nil {
		h.fail(c, err)
		return
	}
	msgs, err := h.conversations.Messages().ListByConversation(ctx, id, conversation.HistoryOpts{
		BeforeID: uint(before),
		Limit:    limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *handlers) addMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body addMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.conversations.AddMessage(c.Request.Context(), id, body.Content, body.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
