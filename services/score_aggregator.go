package services

import (
	"context"
	"fmt"
	"sort"

	"innovation-review-api/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScoreSummary is the idea-level consensus derived from all reviews.
type ScoreSummary struct {
	Average      *float64           `json:"average"`
	Count        int                `json:"count"`
	PerCriterion map[string]float64 `json:"per_criterion"`
}

// Summarize averages each criterion over the reviews that scored it, then averages those
// means so that every criterion weighs the same in the overall score.
func Summarize(reviews []models.Review) ScoreSummary {
	summary := ScoreSummary{Count: len(reviews), PerCriterion: map[string]float64{}}
	if len(reviews) == 0 {
		return summary
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, r := range reviews {
		for criterion, score := range r.Scores.Data() {
			sums[criterion] += score
			counts[criterion]++
		}
	}
	if len(sums) == 0 {
		return summary
	}

	criteria := make([]string, 0, len(sums))
	for c := range sums {
		criteria = append(criteria, c)
	}
	sort.Strings(criteria)

	var total float64
	for _, c := range criteria {
		mean := sums[c] / float64(counts[c])
		summary.PerCriterion[c] = mean
		total += mean
	}
	overall := total / float64(len(criteria))
	summary.Average = &overall
	return summary
}

// CompletionStatus decides the idea status from its assignments.
// REJECTED ideas keep their status.
func CompletionStatus(current models.IdeaStatus, assignments []models.Assignment) models.IdeaStatus {
	if current == models.IdeaRejected {
		return current
	}
	reviewed := 0
	for _, a := range assignments {
		if a.CountsAsReviewed() {
			reviewed++
		}
	}
	if len(assignments) > 0 && reviewed == len(assignments) {
		return models.IdeaDone
	}
	return models.IdeaUnderReview
}

// ScoreAggregator recomputes an idea's score summary and completion status.
type ScoreAggregator struct{}

// Recompute must run inside the transaction that changed the reviews or assignments.
func (ScoreAggregator) Recompute(ctx context.Context, tx *gorm.DB, ideaID uint) (*models.Idea, error) {
	var idea models.Idea
	if err := tx.WithContext(ctx).First(&idea, ideaID).Error; err != nil {
		return nil, notFoundOr(err, "idea not found")
	}

	var reviews []models.Review
	if err := tx.WithContext(ctx).Where("idea_id = ?", ideaID).Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}

	var assignments []models.Assignment
	if err := tx.WithContext(ctx).
		Select("id", "status", "reviewed_at").
		Where("idea_id = ?", ideaID).
		Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	summary := Summarize(reviews)
	status := CompletionStatus(idea.Status, assignments)

	idea.ScoreAverage = summary.Average
	idea.ReviewCount = summary.Count
	idea.CriterionAverages = datatypes.NewJSONType(summary.PerCriterion)
	idea.Status = status

	if err := tx.WithContext(ctx).Model(&models.Idea{}).Where("id = ?", ideaID).Updates(map[string]any{
		"score_average":      summary.Average,
		"review_count":       summary.Count,
		"criterion_averages": idea.CriterionAverages,
		"status":             status,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update idea summary: %w", err)
	}
	return &idea, nil
}
