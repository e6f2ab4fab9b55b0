package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"innovation-review-api/config"
	"innovation-review-api/models"
	"innovation-review-api/utils"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReviewInput is a judge's score submission.
type ReviewInput struct {
	IdeaID  uint               `json:"ideaId" validate:"required"`
	Scores  map[string]float64 `json:"scores" validate:"required"`
	Comment *string            `json:"comment" validate:"omitempty,max=5000"`
}

// ReviewService upserts reviews and drives REVIEWED transitions and aggregation.
type ReviewService struct {
	db         *gorm.DB
	criteria   models.CriteriaCatalog
	states     *AssignmentStateMachine
	aggregator *ScoreAggregator
	validate   *validator.Validate
	now        func() time.Time
}

func NewReviewService(db *gorm.DB, criteria models.CriteriaCatalog, states *AssignmentStateMachine, aggregator *ScoreAggregator) *ReviewService {
	if db == nil {
		db = config.DB
	}
	if criteria == nil {
		criteria = models.DefaultCriteria()
	}
	if aggregator == nil {
		aggregator = &ScoreAggregator{}
	}
	return &ReviewService{
		db:         db,
		criteria:   criteria,
		states:     states,
		aggregator: aggregator,
		validate:   validator.New(),
		now:        time.Now,
	}
}

func (s *ReviewService) Criteria() models.CriteriaCatalog { return s.criteria }

// Submit stores the calling judge's scores for an idea (insert or replace), moves the
// assignment to REVIEWED and recomputes the idea summary, all in one transaction.
func (s *ReviewService) Submit(ctx context.Context, actor Actor, in ReviewInput) (*models.Review, *models.Idea, error) {
	review, idea, err := s.submit(ctx, actor, in)
	reviewsSubmittedTotal.WithLabelValues(resultLabel(err)).Inc()
	return review, idea, err
}

func (s *ReviewService) submit(ctx context.Context, actor Actor, in ReviewInput) (*models.Review, *models.Idea, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, nil, ValidationError("invalid review", fieldErrors(err))
	}
	if problems := s.criteria.ValidateScores(in.Scores); problems != nil {
		return nil, nil, ValidationError("invalid scores", problems)
	}

	var comment *string
	if in.Comment != nil {
		if c := utils.SanitizeInput(*in.Comment); c != "" {
			comment = &c
		}
	}

	var (
		review models.Review
		idea   *models.Idea
	)

	// The write completes even if the client goes away after the request was accepted.
	ctx = persistentContext(ctx)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var judge models.Judge
		if err := tx.Where("user_id = ?", actor.UserID).First(&judge).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Forbidden("caller is not a judge")
			}
			return err
		}

		var assignment models.Assignment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("idea_id = ? AND judge_id = ?", in.IdeaID, judge.ID).
			First(&assignment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Forbidden("judge is not assigned to this idea")
			}
			return err
		}
		if assignment.IsLocked() {
			return AssignmentLocked()
		}
		if assignment.Status != models.AssignmentSubmitted && assignment.Status != models.AssignmentReviewed {
			return ValidationError("an evaluation file must be uploaded before scores are submitted",
				map[string]string{"status": string(assignment.Status)})
		}

		now := s.now()
		review = models.Review{
			IdeaID:      in.IdeaID,
			JudgeID:     judge.ID,
			Scores:      datatypes.NewJSONType(in.Scores),
			Comment:     comment,
			SubmittedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idea_id"}, {Name: "judge_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"scores", "comment", "submitted_at", "updated_at"}),
		}).Create(&review).Error; err != nil {
			return err
		}
		// Reload: after an update the driver's insert id does not identify the row.
		var saved models.Review
		if err := tx.Where("idea_id = ? AND judge_id = ?", in.IdeaID, judge.ID).First(&saved).Error; err != nil {
			return err
		}
		review = saved

		if err := s.states.MarkReviewed(ctx, tx, &assignment, actor, review.ID); err != nil {
			return err
		}

		updated, err := s.aggregator.Recompute(ctx, tx, in.IdeaID)
		if err != nil {
			return err
		}
		idea = updated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[reviews] idea=%d judge_user=%d status=%s reviews=%d", in.IdeaID, actor.UserID, idea.Status, idea.ReviewCount)
	return &review, idea, nil
}

func fieldErrors(err error) any {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[lowerFirst(fe.Field())] = fe.Tag()
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
