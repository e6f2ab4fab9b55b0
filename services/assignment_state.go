package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"innovation-review-api/config"
	"innovation-review-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actor is the authenticated caller behind a mutation.
type Actor struct {
	UserID int
	RoleID int
}

func (a Actor) IsAdmin() bool { return a.RoleID == models.RoleAdmin }

func (a Actor) Role() string { return models.RoleName(a.RoleID) }

// AssignmentEvent drives the assignment lifecycle.
type AssignmentEvent string

const (
	EventTemplateFetched    AssignmentEvent = "TEMPLATE_FETCHED"
	EventSubmissionUploaded AssignmentEvent = "SUBMISSION_UPLOADED"
	EventReviewed           AssignmentEvent = "REVIEWED"
	EventLock               AssignmentEvent = "LOCK"
)

var auditTypes = map[AssignmentEvent]string{
	EventTemplateFetched:    models.AuditTemplateFetched,
	EventSubmissionUploaded: models.AuditSubmissionUpload,
	EventReviewed:           models.AuditReviewed,
	EventLock:               models.AuditLocked,
}

// Transition applies ev to a in memory and appends the audit entry.
// It returns false when the event is an idempotent no-op (locking a locked assignment).
func Transition(a *models.Assignment, ev AssignmentEvent, actor Actor, at time.Time, meta map[string]any) (bool, error) {
	from := a.Status
	to := from

	switch ev {
	case EventTemplateFetched:
		// Only the judge's own download starts the work; admin previews are audited only.
		if from == models.AssignmentPending && actor.RoleID == models.RoleJudge {
			to = models.AssignmentInProgress
		}
	case EventSubmissionUploaded:
		if from == models.AssignmentLocked {
			return false, AssignmentLocked()
		}
		switch from {
		case models.AssignmentPending, models.AssignmentInProgress, models.AssignmentSubmitted:
			to = models.AssignmentSubmitted
		case models.AssignmentReviewed:
			// a corrected file after scoring keeps the review standing
		}
	case EventReviewed:
		switch from {
		case models.AssignmentLocked:
			return false, AssignmentLocked()
		case models.AssignmentSubmitted, models.AssignmentReviewed:
			to = models.AssignmentReviewed
			t := at
			a.ReviewedAt = &t
		default:
			return false, ValidationError("an evaluation file must be uploaded before scores are submitted",
				map[string]string{"status": string(from)})
		}
	case EventLock:
		if from == models.AssignmentLocked {
			return false, nil
		}
		to = models.AssignmentLocked
		a.AllowReuploadUntilLock = false
		t := at
		a.LockedAt = &t
	default:
		return false, fmt.Errorf("unknown assignment event %q", ev)
	}

	a.Status = to
	appendAudit(a, auditTypes[ev], actor, from, to, at, meta)
	return true, nil
}

func appendAudit(a *models.Assignment, eventType string, actor Actor, from, to models.AssignmentStatus, at time.Time, meta map[string]any) {
	entry := models.AuditEvent{
		At:        at,
		Type:      eventType,
		ActorID:   actor.UserID,
		ActorRole: actor.Role(),
		Metadata:  meta,
	}
	if from != "" {
		entry.FromState = string(from)
	}
	if to != "" {
		entry.ToState = string(to)
	}
	a.AuditEvents = append(a.AuditEvents, entry)
}

var errStaleAssignment = errors.New("assignment was modified concurrently")

const maxMutationAttempts = 3

// AssignmentStateMachine persists lifecycle changes. Status, submission metadata and the
// audit append are written in one compare-and-swap UPDATE keyed on row_version.
type AssignmentStateMachine struct {
	db         *gorm.DB
	aggregator *ScoreAggregator
	notifier   Notifier
	now        func() time.Time
}

func NewAssignmentStateMachine(db *gorm.DB, aggregator *ScoreAggregator, notifier Notifier) *AssignmentStateMachine {
	if db == nil {
		db = config.DB
	}
	if aggregator == nil {
		aggregator = &ScoreAggregator{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AssignmentStateMachine{db: db, aggregator: aggregator, notifier: notifier, now: time.Now}
}

// Get loads an assignment with its idea and judge.
func (m *AssignmentStateMachine) Get(ctx context.Context, id uint) (*models.Assignment, error) {
	var a models.Assignment
	if err := m.db.WithContext(ctx).Preload("Idea").Preload("Judge").First(&a, id).Error; err != nil {
		return nil, notFoundOr(err, "assignment not found")
	}
	return &a, nil
}

// Authorize allows admins and the judge who owns the assignment.
func (m *AssignmentStateMachine) Authorize(a *models.Assignment, actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.RoleID == models.RoleJudge && a.Judge != nil && a.Judge.UserID == actor.UserID {
		return nil
	}
	return Forbidden("assignment belongs to another judge")
}

// Idea loads an idea or returns NOT_FOUND.
func (m *AssignmentStateMachine) Idea(ctx context.Context, ideaID uint) (*models.Idea, error) {
	var idea models.Idea
	if err := m.db.WithContext(ctx).First(&idea, ideaID).Error; err != nil {
		return nil, notFoundOr(err, "idea not found")
	}
	return &idea, nil
}

// ListForIdea returns every assignment of an idea ordered by creation.
func (m *AssignmentStateMachine) ListForIdea(ctx context.Context, ideaID uint) ([]models.Assignment, error) {
	var rows []models.Assignment
	if err := m.db.WithContext(ctx).
		Preload("Judge").
		Where("idea_id = ?", ideaID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListForJudgeUser returns the assignments of the judge linked to userID.
func (m *AssignmentStateMachine) ListForJudgeUser(ctx context.Context, userID int) ([]models.Assignment, error) {
	var judge models.Judge
	if err := m.db.WithContext(ctx).Where("user_id = ?", userID).First(&judge).Error; err != nil {
		return nil, notFoundOr(err, "judge profile not found")
	}
	var rows []models.Assignment
	if err := m.db.WithContext(ctx).
		Preload("Idea").
		Where("judge_id = ?", judge.ID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Judge = &judge
	}
	return rows, nil
}

// save writes the mutable columns when row_version still matches what was read.
func (m *AssignmentStateMachine) save(ctx context.Context, db *gorm.DB, a *models.Assignment) error {
	now := m.now()
	res := db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND row_version = ?", a.ID, a.RowVersion).
		Updates(map[string]any{
			"status":                    a.Status,
			"template_path":             a.TemplatePath,
			"template_filename":         a.TemplateFilename,
			"submission_path":           a.SubmissionPath,
			"submission_filename":       a.SubmissionFilename,
			"submission_mime":           a.SubmissionMime,
			"submission_size":           a.SubmissionSize,
			"submission_checksum":       a.SubmissionChecksum,
			"submission_uploaded_at":    a.SubmissionUploadedAt,
			"submission_version":        a.SubmissionVersion,
			"allow_reupload_until_lock": a.AllowReuploadUntilLock,
			"reviewed_at":               a.ReviewedAt,
			"locked_at":                 a.LockedAt,
			"audit_events":              a.AuditEvents,
			"row_version":               gorm.Expr("row_version + 1"),
			"updated_at":                now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStaleAssignment
	}
	a.RowVersion++
	a.UpdatedAt = now
	return nil
}

// mutate reloads, applies fn and saves, retrying when another writer got there first.
// fn returning false skips the write.
func (m *AssignmentStateMachine) mutate(ctx context.Context, id uint, fn func(a *models.Assignment) (bool, error)) (*models.Assignment, error) {
	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		a, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(a)
		if err != nil {
			return nil, err
		}
		if !changed {
			return a, nil
		}
		err = m.save(ctx, m.db, a)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, errStaleAssignment) {
			return nil, err
		}
	}
	return nil, AssignmentConflict("assignment is being modified by another request, retry", errStaleAssignment)
}

// RecordTemplateFetch marks the judge's first template download (PENDING -> IN_PROGRESS) and audits every fetch.
// It also persists the resolved template location on the assignment.
func (m *AssignmentStateMachine) RecordTemplateFetch(ctx context.Context, id uint, actor Actor, tpl TemplateFile) (*models.Assignment, error) {
	return m.mutate(ctx, id, func(a *models.Assignment) (bool, error) {
		a.TemplatePath = tpl.Path
		a.TemplateFilename = tpl.DisplayName
		return Transition(a, EventTemplateFetched, actor, m.now(), map[string]any{
			"source":   string(a.TemplateSource),
			"filename": tpl.DisplayName,
		})
	})
}

// RecordSubmission attaches a durably written file as submission version `stored.Version`.
// The write only succeeds if no other upload claimed that version in the meantime.
func (m *AssignmentStateMachine) RecordSubmission(ctx context.Context, id uint, actor Actor, stored StoredFile) (*models.Assignment, error) {
	return m.mutate(ctx, id, func(a *models.Assignment) (bool, error) {
		if err := m.CheckUploadAllowed(a); err != nil {
			return false, err
		}
		if a.SubmissionVersion+1 != stored.Version {
			return false, AssignmentConflict("a newer submission was uploaded concurrently", nil)
		}
		now := m.now()
		a.SubmissionVersion = stored.Version
		a.SubmissionPath = stored.Path
		a.SubmissionFilename = stored.Filename
		a.SubmissionMime = stored.MimeType
		a.SubmissionSize = stored.Size
		a.SubmissionChecksum = stored.Checksum
		a.SubmissionUploadedAt = &now

		meta := map[string]any{
			"version":  stored.Version,
			"filename": stored.Filename,
			"size":     stored.Size,
			"checksum": stored.Checksum,
		}
		if a.Deadline != nil && now.After(*a.Deadline) {
			meta["late"] = true
		}
		return Transition(a, EventSubmissionUploaded, actor, now, meta)
	})
}

// CheckUploadAllowed rejects uploads before any bytes are written.
func (m *AssignmentStateMachine) CheckUploadAllowed(a *models.Assignment) error {
	if a.IsLocked() || (a.SubmissionVersion > 0 && !a.AllowReuploadUntilLock) {
		return AssignmentLocked()
	}
	return nil
}

// Lock freezes an assignment. Locking a locked assignment is a no-op.
func (m *AssignmentStateMachine) Lock(ctx context.Context, id uint, actor Actor) (*models.Assignment, bool, error) {
	if !actor.IsAdmin() {
		return nil, false, Forbidden("only administrators can lock assignments")
	}
	changed := false
	a, err := m.mutate(ctx, id, func(a *models.Assignment) (bool, error) {
		ok, err := Transition(a, EventLock, actor, m.now(), nil)
		changed = ok
		return ok, err
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		m.notifier.AssignmentLocked(persistentContext(ctx), *a)
	}
	return a, changed, nil
}

// MarkReviewed moves the assignment to REVIEWED inside the caller's transaction.
// The row must have been read FOR UPDATE in that transaction.
func (m *AssignmentStateMachine) MarkReviewed(ctx context.Context, tx *gorm.DB, a *models.Assignment, actor Actor, reviewID uint) error {
	if _, err := Transition(a, EventReviewed, actor, m.now(), map[string]any{"review_id": reviewID}); err != nil {
		return err
	}
	return m.save(ctx, tx, a)
}

// Delete removes a non-locked assignment together with the judge's review for the idea,
// then recomputes the idea summary. Returns the deleted row so callers can clean up files.
func (m *AssignmentStateMachine) Delete(ctx context.Context, id uint, actor Actor) (*models.Assignment, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("only administrators can delete assignments")
	}

	var deleted models.Assignment
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&deleted, id).Error; err != nil {
			return notFoundOr(err, "assignment not found")
		}
		if deleted.IsLocked() {
			return AssignmentLocked()
		}
		if err := tx.Where("idea_id = ? AND judge_id = ?", deleted.IdeaID, deleted.JudgeID).
			Delete(&models.Review{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Assignment{}, deleted.ID).Error; err != nil {
			return err
		}
		_, err := m.aggregator.Recompute(ctx, tx, deleted.IdeaID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}
