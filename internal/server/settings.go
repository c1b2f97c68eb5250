package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/models"
	"github.com/zulandar/locallm/internal/settings"
)

type settingBody struct {
	Value       any              `json:"value"`
	ValueType   models.ValueType `json:"value_type"`
	Description string           `json:"description"`
	Metadata    map[string]any   `json:"metadata"`
}

func (b settingBody) data() settings.SettingData {
	return settings.SettingData{
		Value:       b.Value,
		ValueType:   b.ValueType,
		Description: b.Description,
		Metadata:    b.Metadata,
	}
}

type createSettingBody struct {
	Key     models.SettingKey `json:"key"`
	Scope   models.Scope      `json:"scope"`
	ScopeID *int64            `json:"scope_id"`
	settingBody
}

type batchEntryBody struct {
	Key models.SettingKey `json:"key"`
	settingBody
}

type batchBody struct {
	Settings []batchEntryBody `json:"settings"`
}

func scopeParam(c *gin.Context) models.Scope { return models.Scope(c.Param("scope")) }

func keyParam(c *gin.Context) models.SettingKey { return models.SettingKey(c.Param("key")) }

func (h *handlers) createSetting(c *gin.Context) {
	var body createSettingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	v, err := h.settings.CreateSetting(c.Request.Context(), settings.CreateRequest{
		Key:         body.Key,
		Scope:       body.Scope,
		ScopeID:     body.ScopeID,
		SettingData: body.data(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"setting": v})
}

func (h *handlers) listSettings(c *gin.Context) {
	sid, ok := scopeID(c)
	if !ok {
		return
	}
	list, err := h.settings.GetSettingsByScope(c.Request.Context(), scopeParam(c), sid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": list})
}

func (h *handlers) getSetting(c *gin.Context) {
	sid, ok := scopeID(c)
	if !ok {
		return
	}
	v, err := h.settings.GetSetting(c.Request.Context(), keyParam(c), scopeParam(c), sid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"setting": v})
}

func (h *handlers) putSetting(c *gin.Context) {
	sid, ok := scopeID(c)
	if !ok {
		return
	}
	var body settingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	v, err := h.settings.UpsertSetting(c.Request.Context(), keyParam(c), scopeParam(c), sid, body.data())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"setting": v})
}

func (h *handlers) deleteSetting(c *gin.Context) {
	sid, ok := scopeID(c)
	if !ok {
		return
	}
	if err := h.settings.DeleteSetting(c.Request.Context(), keyParam(c), scopeParam(c), sid); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// batchSettings applies entries in order. On failure the entries already
// applied are reported next to the error.
func (h *handlers) batchSettings(c *gin.Context) {
	sid, ok := scopeID(c)
	if !ok {
		return
	}
	var body batchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	entries := make([]settings.BatchEntry, len(body.Settings))
	for i, e := range body.Settings {
		entries[i] = settings.BatchEntry{Key: e.Key, SettingData: e.data()}
	}
	applied, err := h.settings.UpdateSettingsBatch(c.Request.Context(), entries, scopeParam(c), sid)
	if err != nil {
		c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": err.Error(), "applied": applied})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": applied})
}
