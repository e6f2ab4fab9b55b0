package controllers

import (
	"net/http"
	"time"

	"innovation-review-api/models"
	"innovation-review-api/services"

	"github.com/gin-gonic/gin"
)

type manualAllocationRequest struct {
	IdeaID   uint       `json:"ideaId" binding:"required"`
	JudgeIDs []uint     `json:"judgeIds" binding:"required,min=1,dive,gt=0"`
	Deadline *time.Time `json:"deadline"`
}

// AllocateJudges handles POST /admin/assignments/manual.
func (h *Handler) AllocateJudges(c *gin.Context) {
	var req manualAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.InvalidRequest(err))
		return
	}

	result, err := h.Allocator.Allocate(c.Request.Context(), currentActor(c), services.AllocationRequest{
		IdeaID:   req.IdeaID,
		JudgeIDs: req.JudgeIDs,
		Deadline: req.Deadline,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if len(result.Created) == 0 {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"success":         true,
		"data":            h.assignmentViews(result.Created),
		"alreadyAssigned": result.AlreadyAssigned,
		"ideaStatus":      result.IdeaStatus,
	})
}

// ListIdeaAssignments handles GET /admin/ideas/:ideaId/assignments.
func (h *Handler) ListIdeaAssignments(c *gin.Context) {
	ideaID, err := parseIDParam(c, "ideaId")
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()

	idea, err := h.States.Idea(ctx, ideaID)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := h.States.ListForIdea(ctx, ideaID)
	if err != nil {
		respondError(c, err)
		return
	}
	settings, err := h.Settings.Current(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	remaining := settings.MaxJudgesPerIdea - len(rows)
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"data":           h.assignmentViews(rows),
		"total":          len(rows),
		"maxJudges":      settings.MaxJudgesPerIdea,
		"remainingSlots": remaining,
		"ideaStatus":     idea.Status,
	})
}

// LockAssignment handles PATCH /admin/assignments/:id/lock.
func (h *Handler) LockAssignment(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	a, changed, err := h.States.Lock(c.Request.Context(), id, currentActor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.assignmentView(a),
		"changed": changed,
	})
}

// DeleteAssignment handles DELETE /admin/assignments/:id.
func (h *Handler) DeleteAssignment(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	deleted, err := h.Exchange.DeleteAssignment(c.Request.Context(), id, currentActor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "assignment deleted",
		"data":    gin.H{"id": deleted.ID, "ideaId": deleted.IdeaID, "judgeId": deleted.JudgeID},
	})
}

// GetAssignmentAudit handles GET /admin/assignments/:id/audit.
func (h *Handler) GetAssignmentAudit(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	a, err := h.States.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	events := []models.AuditEvent(a.AuditEvents)
	if events == nil {
		events = []models.AuditEvent{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    events,
		"status":  a.Status,
	})
}

// DownloadSubmission handles GET /admin/assignments/:id/submission[?version=N]
// for administrators and the owning judge.
func (h *Handler) DownloadSubmission(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	version := 0
	if raw := c.Query("version"); raw != "" {
		v, convErr := parsePositiveInt(raw)
		if convErr != nil {
			respondError(c, services.ValidationError("invalid version", map[string]string{"version": "must be a positive integer"}))
			return
		}
		version = v
	}

	path, name, err := h.Exchange.OpenSubmission(c.Request.Context(), id, currentActor(c), version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, name)
}

// DownloadTemplate handles GET /assignments/:id/template. The first fetch moves the
// assignment from PENDING to IN_PROGRESS.
func (h *Handler) DownloadTemplate(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	tpl, _, err := h.Exchange.FetchTemplate(c.Request.Context(), id, currentActor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(tpl.Path, tpl.DisplayName)
}
