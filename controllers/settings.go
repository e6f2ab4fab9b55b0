package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSettings handles GET /admin/settings.
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.Settings.Current(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     settings,
		"criteria": h.Reviews.Criteria(),
	})
}
