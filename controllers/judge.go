package controllers

import (
	"net/http"

	"innovation-review-api/services"

	"github.com/gin-gonic/gin"
)

// ListMyAssignments handles GET /judge/assignments.
func (h *Handler) ListMyAssignments(c *gin.Context) {
	rows, err := h.States.ListForJudgeUser(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.assignmentViews(rows),
		"total":   len(rows),
	})
}

// UploadSubmission handles POST /judge/assignments/:id/submission (multipart field "file").
func (h *Handler) UploadSubmission(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, services.ValidationError("file is required", map[string]string{"file": "required"}))
		return
	}

	a, err := h.Exchange.UploadSubmission(c.Request.Context(), id, currentActor(c), services.UploadFromFileHeader(fh))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    h.assignmentView(a),
	})
}

// SubmitReview handles POST /judge/reviews. Re-submitting replaces the judge's scores.
func (h *Handler) SubmitReview(c *gin.Context) {
	var in services.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, services.InvalidRequest(err))
		return
	}

	review, idea, err := h.Reviews.Submit(c.Request.Context(), currentActor(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"id":          review.ID,
			"ideaId":      review.IdeaID,
			"judgeId":     review.JudgeID,
			"scores":      review.Scores.Data(),
			"comment":     review.Comment,
			"submittedAt": review.SubmittedAt.Format(timeLayout),
		},
		"idea": gin.H{
			"id":                idea.ID,
			"status":            idea.Status,
			"scoreAverage":      idea.ScoreAverage,
			"reviewCount":       idea.ReviewCount,
			"criterionAverages": idea.CriterionAverages.Data(),
		},
	})
}
