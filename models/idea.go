package models

import (
	"time"

	"gorm.io/datatypes"
)

type IdeaStatus string

const (
	IdeaSubmitted   IdeaStatus = "SUBMITTED"
	IdeaUnderReview IdeaStatus = "UNDER_REVIEW"
	IdeaDone        IdeaStatus = "DONE"
	IdeaRejected    IdeaStatus = "REJECTED"
)

// Idea is a proposal under review. Intake creates it; this service only mutates
// Status, the final summary columns and the score summary.
type Idea struct {
	ID            uint                                `json:"id" gorm:"primaryKey;autoIncrement"`
	SubmitterID   int                                 `json:"submitter_id" gorm:"not null;index"`
	Title         string                              `json:"title" gorm:"type:varchar(500);not null"`
	Summary       *string                             `json:"summary,omitempty" gorm:"type:text"`
	Category      *string                             `json:"category,omitempty" gorm:"type:varchar(255)"`
	OriginalFiles datatypes.JSONSlice[FileDescriptor] `json:"original_files"`
	Status        IdeaStatus                          `json:"status" gorm:"type:varchar(20);not null;default:SUBMITTED;index"`

	FinalSummaryPath       string     `json:"-" gorm:"type:varchar(1024)"`
	FinalSummaryFilename   string     `json:"final_summary_filename,omitempty" gorm:"type:varchar(255)"`
	FinalSummaryMime       string     `json:"final_summary_mime,omitempty" gorm:"type:varchar(255)"`
	FinalSummarySize       int64      `json:"final_summary_size,omitempty"`
	FinalSummaryUploadedBy *int       `json:"final_summary_uploaded_by,omitempty"`
	FinalSummaryUploadedAt *time.Time `json:"final_summary_uploaded_at,omitempty"`

	ScoreAverage      *float64                               `json:"score_average"`
	ReviewCount       int                                    `json:"review_count" gorm:"not null;default:0"`
	CriterionAverages datatypes.JSONType[map[string]float64] `json:"criterion_averages"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Idea) TableName() string { return "ideas" }

// HasFinalSummary reports whether an idea-level summary file is attached.
func (i Idea) HasFinalSummary() bool { return i.FinalSummaryPath != "" }

// FinalSummary returns the attached summary descriptor, or nil.
func (i Idea) FinalSummary() *FileDescriptor {
	if !i.HasFinalSummary() {
		return nil
	}
	fd := &FileDescriptor{
		StoredPath:   i.FinalSummaryPath,
		OriginalName: i.FinalSummaryFilename,
		MimeType:     i.FinalSummaryMime,
		FileSize:     i.FinalSummarySize,
	}
	if i.FinalSummaryUploadedBy != nil {
		fd.UploadedBy = *i.FinalSummaryUploadedBy
	}
	if i.FinalSummaryUploadedAt != nil {
		fd.UploadedAt = *i.FinalSummaryUploadedAt
	}
	return fd
}
