package services

import (
	"context"
	"log"
	"time"

	"innovation-review-api/config"
	"innovation-review-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllocationRequest asks for judgeIDs to be paired with an idea.
type AllocationRequest struct {
	IdeaID   uint
	JudgeIDs []uint
	Deadline *time.Time
}

// AllocationResult lists what the allocator did. AlreadyAssigned judges were no-ops.
type AllocationResult struct {
	Created         []models.Assignment `json:"created"`
	AlreadyAssigned []uint              `json:"already_assigned"`
	IdeaStatus      models.IdeaStatus   `json:"idea_status"`
}

// AssignmentAllocator creates idea/judge pairings all-or-nothing.
type AssignmentAllocator struct {
	db       *gorm.DB
	settings SettingsProvider
	guard    CapacityGuard
	notifier Notifier
	now      func() time.Time
}

func NewAssignmentAllocator(db *gorm.DB, settings SettingsProvider, notifier Notifier) *AssignmentAllocator {
	if db == nil {
		db = config.DB
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AssignmentAllocator{db: db, settings: settings, notifier: notifier, now: time.Now}
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Allocate pairs the requested judges with the idea.
//
// The idea row and the candidate judge rows are locked FOR UPDATE so concurrent requests for
// the same idea or judge are serialized; the (idea_id, judge_id) unique index remains the final
// guard and a violation is reported as ASSIGNMENT_CONFLICT. Any error rolls back every insert.
func (s *AssignmentAllocator) Allocate(ctx context.Context, actor Actor, req AllocationRequest) (*AllocationResult, error) {
	result, err := s.allocate(ctx, actor, req)
	allocationsTotal.WithLabelValues(resultLabel(err)).Inc()
	return result, err
}

func (s *AssignmentAllocator) allocate(ctx context.Context, actor Actor, req AllocationRequest) (*AllocationResult, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("only administrators can allocate judges")
	}

	judgeIDs := dedupeIDs(req.JudgeIDs)
	if req.IdeaID == 0 || len(judgeIDs) == 0 {
		return nil, ValidationError("ideaId and at least one judgeId are required", map[string]string{
			"ideaId":   "required",
			"judgeIds": "must contain at least one id",
		})
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	var (
		idea      models.Idea
		created   []models.Assignment
		newJudges []models.Judge
		already   []uint
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&idea, req.IdeaID).Error; err != nil {
			return notFoundOr(err, "idea not found")
		}

		var judges []models.Judge
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", judgeIDs).
			Order("id").
			Find(&judges).Error; err != nil {
			return err
		}
		if err := checkJudges(judgeIDs, judges); err != nil {
			return err
		}

		var assignedIDs []uint
		if err := tx.Model(&models.Assignment{}).
			Where("idea_id = ?", idea.ID).
			Pluck("judge_id", &assignedIDs).Error; err != nil {
			return err
		}
		assigned := make(map[uint]bool, len(assignedIDs))
		for _, id := range assignedIDs {
			assigned[id] = true
		}

		byID := make(map[uint]models.Judge, len(judges))
		for _, j := range judges {
			byID[j.ID] = j
		}
		for _, id := range judgeIDs {
			if assigned[id] {
				already = append(already, id)
				continue
			}
			newJudges = append(newJudges, byID[id])
		}

		if len(newJudges) == 0 {
			return nil
		}

		if err := s.guard.CheckIdeaCeiling(settings.MaxJudgesPerIdea, len(assignedIDs), len(newJudges)); err != nil {
			return err
		}

		breaches, err := s.guard.Check(ctx, tx, newJudges)
		if err != nil {
			return err
		}
		if len(breaches) > 0 {
			return JudgeCapacityReached(breaches)
		}

		now := s.now()
		created = make([]models.Assignment, 0, len(newJudges))
		for _, j := range newJudges {
			a := models.Assignment{
				IdeaID:                 idea.ID,
				JudgeID:                j.ID,
				AssignedBy:             actor.UserID,
				Status:                 models.AssignmentPending,
				TemplateSource:         settings.DefaultTemplateSource,
				AllowReuploadUntilLock: true,
				Deadline:               req.Deadline,
				RowVersion:             1,
				CreatedAt:              now,
				UpdatedAt:              now,
			}
			appendAudit(&a, models.AuditAssigned, actor, "", models.AssignmentPending, now, map[string]any{
				"template_source": string(settings.DefaultTemplateSource),
			})
			created = append(created, a)
		}

		if err := tx.Create(&created).Error; err != nil {
			if isDuplicateKey(err) {
				return AssignmentConflict("one of the requested judges was assigned to this idea by a concurrent request", err)
			}
			return err
		}

		// A new PENDING judge reopens a finished idea as well as starting a submitted one.
		if idea.Status == models.IdeaSubmitted || idea.Status == models.IdeaDone {
			if err := tx.Model(&models.Idea{}).
				Where("id = ? AND status = ?", idea.ID, idea.Status).
				Update("status", models.IdeaUnderReview).Error; err != nil {
				return err
			}
			idea.Status = models.IdeaUnderReview
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(created) > 0 {
		assignmentsCreatedTotal.Add(float64(len(created)))
		log.Printf("[allocator] idea=%d admin=%d created=%d already=%d", idea.ID, actor.UserID, len(created), len(already))
		s.notifier.AssignmentsCreated(persistentContext(ctx), idea, newJudges)
	}

	if created == nil {
		created = []models.Assignment{}
	}
	if already == nil {
		already = []uint{}
	}
	return &AllocationResult{Created: created, AlreadyAssigned: already, IdeaStatus: idea.Status}, nil
}

// checkJudges fails closed: every requested id must exist and be active.
func checkJudges(requested []uint, found []models.Judge) error {
	byID := make(map[uint]models.Judge, len(found))
	for _, j := range found {
		byID[j.ID] = j
	}
	var missing, inactive []uint
	for _, id := range requested {
		j, ok := byID[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case !j.Active:
			inactive = append(inactive, id)
		}
	}
	if len(missing) > 0 {
		e := NotFound("judge not found")
		e.Details = map[string][]uint{"missing_judge_ids": missing}
		return e
	}
	if len(inactive) > 0 {
		return ValidationError("inactive judges cannot be assigned", map[string][]uint{"inactive_judge_ids": inactive})
	}
	return nil
}
