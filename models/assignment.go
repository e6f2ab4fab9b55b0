package models

import (
	"time"

	"gorm.io/datatypes"
)

type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "PENDING"
	AssignmentInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentSubmitted  AssignmentStatus = "SUBMITTED"
	AssignmentReviewed   AssignmentStatus = "REVIEWED"
	AssignmentLocked     AssignmentStatus = "LOCKED"
)

// TemplateSource selects where an assignment's evaluation template comes from.
type TemplateSource string

const (
	TemplateStatic    TemplateSource = "STATIC"
	TemplatePerIdea   TemplateSource = "PER_IDEA"
	TemplateGenerated TemplateSource = "GENERATED"
)

func (s TemplateSource) Valid() bool {
	switch s {
	case TemplateStatic, TemplatePerIdea, TemplateGenerated:
		return true
	}
	return false
}

// Audit event types.
const (
	AuditAssigned         = "ASSIGNED"
	AuditTemplateFetched  = "TEMPLATE_FETCHED"
	AuditSubmissionUpload = "SUBMISSION_UPLOADED"
	AuditReviewed         = "REVIEWED"
	AuditLocked           = "LOCKED"
)

// AuditEvent is one entry of an assignment's append-only history.
type AuditEvent struct {
	At        time.Time      `json:"at"`
	Type      string         `json:"type"`
	ActorID   int            `json:"actor_id"`
	ActorRole string         `json:"actor_role"`
	FromState string         `json:"from_state,omitempty"`
	ToState   string         `json:"to_state,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Assignment pairs one idea with one judge. The (idea_id, judge_id) unique index is
// the storage-level guard against duplicate pairings.
type Assignment struct {
	ID         uint             `json:"id" gorm:"primaryKey;autoIncrement"`
	IdeaID     uint             `json:"idea_id" gorm:"not null;uniqueIndex:uq_assignment_idea_judge,priority:1"`
	JudgeID    uint             `json:"judge_id" gorm:"not null;uniqueIndex:uq_assignment_idea_judge,priority:2;index"`
	AssignedBy int              `json:"assigned_by" gorm:"not null"`
	Status     AssignmentStatus `json:"status" gorm:"type:varchar(20);not null;default:PENDING;index"`

	TemplateSource   TemplateSource `json:"template_source" gorm:"type:varchar(20);not null"`
	TemplatePath     string         `json:"-" gorm:"type:varchar(1024)"`
	TemplateFilename string         `json:"template_filename" gorm:"type:varchar(255)"`

	SubmissionPath       string     `json:"-" gorm:"type:varchar(1024)"`
	SubmissionFilename   string     `json:"submission_filename,omitempty" gorm:"type:varchar(255)"`
	SubmissionMime       string     `json:"submission_mime,omitempty" gorm:"type:varchar(255)"`
	SubmissionSize       int64      `json:"submission_size,omitempty"`
	SubmissionChecksum   string     `json:"submission_checksum,omitempty" gorm:"type:varchar(128)"`
	SubmissionUploadedAt *time.Time `json:"submission_uploaded_at,omitempty"`
	SubmissionVersion    int        `json:"submission_version" gorm:"not null;default:0"`

	AllowReuploadUntilLock bool       `json:"allow_reupload_until_lock" gorm:"not null;default:true"`
	Deadline               *time.Time `json:"deadline,omitempty"`
	ReviewedAt             *time.Time `json:"reviewed_at,omitempty"`
	LockedAt               *time.Time `json:"locked_at,omitempty"`

	AuditEvents datatypes.JSONSlice[AuditEvent] `json:"audit_events"`
	// RowVersion guards the single-row compare-and-swap used for every mutation.
	RowVersion int `json:"-" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	Idea  *Idea  `json:"idea,omitempty" gorm:"foreignKey:IdeaID"`
	Judge *Judge `json:"judge,omitempty" gorm:"foreignKey:JudgeID"`
}

func (Assignment) TableName() string { return "assignments" }

func (a Assignment) IsLocked() bool { return a.Status == AssignmentLocked }

func (a Assignment) HasSubmission() bool { return a.SubmissionVersion > 0 && a.SubmissionPath != "" }

// CountsAsReviewed reports whether the assignment contributes to idea completion.
// A locked assignment still counts when it was reviewed before the lock.
func (a Assignment) CountsAsReviewed() bool {
	return a.Status == AssignmentReviewed || (a.Status == AssignmentLocked && a.ReviewedAt != nil)
}
