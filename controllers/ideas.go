package controllers

import (
	"fmt"
	"log"
	"net/http"

	"innovation-review-api/models"
	"innovation-review-api/services"

	"github.com/gin-gonic/gin"
)

func (h *Handler) finalSummaryView(idea *models.Idea) gin.H {
	return gin.H{
		"ideaId":      idea.ID,
		"filename":    idea.FinalSummaryFilename,
		"mimeType":    idea.FinalSummaryMime,
		"size":        idea.FinalSummarySize,
		"uploadedBy":  idea.FinalSummaryUploadedBy,
		"uploadedAt":  formatPtrTime(idea.FinalSummaryUploadedAt),
		"downloadUrl": h.finalSummaryURL(idea.ID),
	}
}

func (h *Handler) finalSummaryURL(ideaID uint) string {
	return fmt.Sprintf("%s/api/v1/admin/ideas/%d/final-summary/file", h.BaseURL, ideaID)
}

// UploadFinalSummary handles POST /admin/ideas/:ideaId/final-summary.
func (h *Handler) UploadFinalSummary(c *gin.Context) {
	ideaID, err := parseIDParam(c, "ideaId")
	if err != nil {
		respondError(c, err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, services.ValidationError("file is required", map[string]string{"file": "required"}))
		return
	}

	idea, err := h.IdeaFiles.ReplaceFinalSummary(c.Request.Context(), ideaID, currentActor(c), services.UploadFromFileHeader(fh))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    h.finalSummaryView(idea),
	})
}

// GetFinalSummary handles GET /admin/ideas/:ideaId/final-summary (metadata only).
func (h *Handler) GetFinalSummary(c *gin.Context) {
	ideaID, err := parseIDParam(c, "ideaId")
	if err != nil {
		respondError(c, err)
		return
	}

	idea, err := h.IdeaFiles.FinalSummary(c.Request.Context(), ideaID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.finalSummaryView(idea),
	})
}

// DownloadFinalSummary handles GET /admin/ideas/:ideaId/final-summary/file.
func (h *Handler) DownloadFinalSummary(c *gin.Context) {
	ideaID, err := parseIDParam(c, "ideaId")
	if err != nil {
		respondError(c, err)
		return
	}

	path, name, err := h.IdeaFiles.FinalSummaryFile(c.Request.Context(), ideaID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, name)
}

// UploadIdeaTemplate handles POST /admin/ideas/:ideaId/template, the file served
// to assignments whose template source is PER_IDEA.
func (h *Handler) UploadIdeaTemplate(c *gin.Context) {
	ideaID, err := parseIDParam(c, "ideaId")
	if err != nil {
		respondError(c, err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, services.ValidationError("file is required", map[string]string{"file": "required"}))
		return
	}

	stored, err := h.IdeaFiles.UploadIdeaTemplate(c.Request.Context(), ideaID, currentActor(c), services.UploadFromFileHeader(fh))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"ideaId":   ideaID,
			"filename": stored.Filename,
			"mimeType": stored.MimeType,
			"size":     stored.Size,
		},
	})
}

// DownloadSubmissionsArchive handles GET /admin/ideas/:ideaId/submissions/archive.
// The zip is streamed; an error after the first byte can only be logged.
func (h *Handler) DownloadSubmissionsArchive(c *gin.Context) {
	ideaID, err := parseIDParam(c, "ideaId")
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.States.Idea(ctx, ideaID); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="idea_%d_submissions.zip"`, ideaID))
	c.Status(http.StatusOK)

	count, err := h.Exchange.WriteIdeaArchive(ctx, ideaID, c.Writer)
	if err != nil {
		log.Printf("[files] archive for idea %d aborted after %d files: %v", ideaID, count, err)
		c.Abort()
		return
	}
	log.Printf("[files] archive for idea %d streamed %d files", ideaID, count)
}
