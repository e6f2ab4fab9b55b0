package services

import (
	"context"
	"fmt"

	"innovation-review-api/models"

	"gorm.io/gorm"
)

// CapacityBreach describes a judge that cannot take another assignment.
type CapacityBreach struct {
	JudgeID     uint  `json:"judge_id"`
	Capacity    int   `json:"capacity"`
	CurrentLoad int64 `json:"current_load"`
}

// CapacityGuard checks judge workload and the per-idea judge ceiling. It never writes.
type CapacityGuard struct{}

type judgeLoadRow struct {
	JudgeID     uint  `gorm:"column:judge_id"`
	ActiveCount int64 `gorm:"column:active_count"`
}

// CurrentLoads counts each judge's non-locked assignments across all ideas.
func (CapacityGuard) CurrentLoads(ctx context.Context, db *gorm.DB, judgeIDs []uint) (map[uint]int64, error) {
	loads := make(map[uint]int64, len(judgeIDs))
	if len(judgeIDs) == 0 {
		return loads, nil
	}

	var rows []judgeLoadRow
	if err := db.WithContext(ctx).
		Model(&models.Assignment{}).
		Select("judge_id, COUNT(*) AS active_count").
		Where("judge_id IN ? AND status <> ?", judgeIDs, models.AssignmentLocked).
		Group("judge_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count judge workload: %w", err)
	}

	for _, row := range rows {
		loads[row.JudgeID] = row.ActiveCount
	}
	return loads, nil
}

// Check returns every candidate whose load already meets its capacity.
func (g CapacityGuard) Check(ctx context.Context, db *gorm.DB, judges []models.Judge) ([]CapacityBreach, error) {
	ids := make([]uint, 0, len(judges))
	for _, j := range judges {
		if j.Capacity != nil {
			ids = append(ids, j.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	loads, err := g.CurrentLoads(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	return evaluateBreaches(judges, loads), nil
}

func evaluateBreaches(judges []models.Judge, loads map[uint]int64) []CapacityBreach {
	var breaches []CapacityBreach
	for _, j := range judges {
		if j.Capacity == nil {
			continue
		}
		load := loads[j.ID]
		if load >= int64(*j.Capacity) {
			breaches = append(breaches, CapacityBreach{
				JudgeID:     j.ID,
				Capacity:    *j.Capacity,
				CurrentLoad: load,
			})
		}
	}
	return breaches
}

// CheckIdeaCeiling rejects a request that would push an idea past maxJudges.
// The request is never truncated.
func (CapacityGuard) CheckIdeaCeiling(maxJudges, alreadyAssigned, requested int) error {
	available := maxJudges - alreadyAssigned
	if available <= 0 || requested > available {
		return MaxJudgesPerIdea(maxJudges, alreadyAssigned, requested)
	}
	return nil
}
