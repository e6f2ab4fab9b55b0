package models

import (
	"time"

	"gorm.io/datatypes"
)

// Review holds one judge's criterion scores for an idea. Unique per (idea, judge).
type Review struct {
	ID          uint                                   `json:"id" gorm:"primaryKey;autoIncrement"`
	IdeaID      uint                                   `json:"idea_id" gorm:"not null;uniqueIndex:uq_review_idea_judge,priority:1"`
	JudgeID     uint                                   `json:"judge_id" gorm:"not null;uniqueIndex:uq_review_idea_judge,priority:2"`
	Scores      datatypes.JSONType[map[string]float64] `json:"scores"`
	Comment     *string                                `json:"comment,omitempty" gorm:"type:text"`
	SubmittedAt time.Time                              `json:"submitted_at"`
	CreatedAt   time.Time                              `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                              `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Review) TableName() string { return "reviews" }
