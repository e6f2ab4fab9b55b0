package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"innovation-review-api/models"
	"innovation-review-api/services"

	"github.com/gin-gonic/gin"
)

// Handler serves the review workflow routes.
type Handler struct {
	Allocator *services.AssignmentAllocator
	States    *services.AssignmentStateMachine
	Exchange  *services.ExchangeService
	IdeaFiles *services.IdeaFileService
	Reviews   *services.ReviewService
	Settings  services.SettingsProvider
	// BaseURL prefixes the download links returned to clients. Empty means host-relative.
	BaseURL string
}

// ===== Helpers =====

func currentActor(c *gin.Context) services.Actor {
	return services.Actor{UserID: c.GetInt("userID"), RoleID: c.GetInt("roleID")}
}

func parseIDParam(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, services.ValidationError(fmt.Sprintf("invalid %s", name), map[string]string{name: "must be a positive integer"})
	}
	return uint(id), nil
}

// respondError writes err as the standard error envelope. Unknown errors are logged
// and reported as INTERNAL_ERROR without detail.
func respondError(c *gin.Context, err error) {
	var appErr *services.AppError
	if errors.As(err, &appErr) {
		body := gin.H{"code": appErr.Code, "message": appErr.Message}
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
		if appErr.Err != nil {
			log.Printf("[http] %s %s user=%d: %v", c.Request.Method, c.Request.URL.Path, c.GetInt("userID"), err)
		}
		c.AbortWithStatusJSON(appErr.Status, gin.H{"success": false, "error": body})
		return
	}

	log.Printf("[http] internal error on %s %s user=%d request_id=%s: %v",
		c.Request.Method, c.Request.URL.Path, c.GetInt("userID"), c.GetString("requestID"), err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error": gin.H{
			"code":    services.CodeInternal,
			"message": "internal server error",
		},
	})
}

// Recovery turns a handler panic into the INTERNAL_ERROR envelope.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		respondError(c, fmt.Errorf("panic: %v", recovered))
	})
}

func parsePositiveInt(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return v, nil
}

func (h *Handler) templateURL(id uint) string {
	return fmt.Sprintf("%s/api/v1/assignments/%d/template", h.BaseURL, id)
}

func (h *Handler) submissionURL(id uint) string {
	return fmt.Sprintf("%s/api/v1/admin/assignments/%d/submission", h.BaseURL, id)
}

// ===== Views =====

type judgeView struct {
	ID          uint   `json:"id"`
	UserID      int    `json:"userId"`
	DisplayName string `json:"displayName"`
}

type submissionView struct {
	Version    int    `json:"version"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	Checksum   string `json:"checksum,omitempty"`
	UploadedAt string `json:"uploadedAt,omitempty"`
}

type assignmentView struct {
	ID              uint                    `json:"id"`
	IdeaID          uint                    `json:"ideaId"`
	IdeaTitle       string                  `json:"ideaTitle,omitempty"`
	JudgeID         uint                    `json:"judgeId"`
	Judge           *judgeView              `json:"judge,omitempty"`
	Status          models.AssignmentStatus `json:"status"`
	TemplateSource  models.TemplateSource   `json:"templateSource"`
	TemplateURL     string                  `json:"templateUrl"`
	Version         int                     `json:"version"`
	Submission      *submissionView         `json:"submission"`
	DownloadURL     *string                 `json:"downloadUrl"`
	ReuploadAllowed bool                    `json:"reuploadAllowed"`
	Deadline        *string                 `json:"deadline"`
	ReviewedAt      *string                 `json:"reviewedAt"`
	LockedAt        *string                 `json:"lockedAt"`
	CreatedAt       string                  `json:"createdAt"`
}

const timeLayout = time.RFC3339

func formatPtrTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeLayout)
	return &s
}

func (h *Handler) assignmentView(a *models.Assignment) assignmentView {
	v := assignmentView{
		ID:              a.ID,
		IdeaID:          a.IdeaID,
		JudgeID:         a.JudgeID,
		Status:          a.Status,
		TemplateSource:  a.TemplateSource,
		TemplateURL:     h.templateURL(a.ID),
		Version:         a.SubmissionVersion,
		ReuploadAllowed: !a.IsLocked() && a.AllowReuploadUntilLock,
		CreatedAt:       a.CreatedAt.Format(timeLayout),
	}
	if a.Idea != nil {
		v.IdeaTitle = a.Idea.Title
	}
	if a.Judge != nil {
		v.Judge = &judgeView{ID: a.Judge.ID, UserID: a.Judge.UserID, DisplayName: a.Judge.DisplayName}
	}
	if a.HasSubmission() {
		url := h.submissionURL(a.ID)
		v.DownloadURL = &url
		v.Submission = &submissionView{
			Version:  a.SubmissionVersion,
			Filename: a.SubmissionFilename,
			MimeType: a.SubmissionMime,
			Size:     a.SubmissionSize,
			Checksum: a.SubmissionChecksum,
		}
		if a.SubmissionUploadedAt != nil {
			v.Submission.UploadedAt = a.SubmissionUploadedAt.Format(timeLayout)
		}
	}
	v.Deadline = formatPtrTime(a.Deadline)
	v.ReviewedAt = formatPtrTime(a.ReviewedAt)
	v.LockedAt = formatPtrTime(a.LockedAt)
	return v
}

func (h *Handler) assignmentViews(rows []models.Assignment) []assignmentView {
	out := make([]assignmentView, 0, len(rows))
	for i := range rows {
		out = append(out, h.assignmentView(&rows[i]))
	}
	return out
}
