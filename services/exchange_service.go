package services

import (
	"context"
	"io"
	"log"

	"innovation-review-api/models"
)

// ExchangeService moves evaluation files between judges and the platform:
// template downloads, submission uploads and downloads, and per-idea archives.
type ExchangeService struct {
	states   *AssignmentStateMachine
	files    *FileExchangeManager
	settings SettingsProvider
}

func NewExchangeService(states *AssignmentStateMachine, files *FileExchangeManager, settings SettingsProvider) *ExchangeService {
	return &ExchangeService{states: states, files: files, settings: settings}
}

// FetchTemplate resolves (or generates) the template and records the fetch.
func (s *ExchangeService) FetchTemplate(ctx context.Context, id uint, actor Actor) (TemplateFile, *models.Assignment, error) {
	a, err := s.states.Get(ctx, id)
	if err != nil {
		return TemplateFile{}, nil, err
	}
	if err := s.states.Authorize(a, actor); err != nil {
		return TemplateFile{}, nil, err
	}

	tpl, err := s.files.ResolveTemplate(ctx, a)
	if err != nil {
		return TemplateFile{}, nil, err
	}

	updated, err := s.states.RecordTemplateFetch(ctx, id, actor, tpl)
	if err != nil {
		return TemplateFile{}, nil, err
	}
	return tpl, updated, nil
}

// UploadSubmission stores a new submission version for the calling judge.
// The file is flushed to disk before the assignment row points at it; if the row
// cannot be updated the file is removed again.
func (s *ExchangeService) UploadSubmission(ctx context.Context, id uint, actor Actor, up Upload) (*models.Assignment, error) {
	a, err := s.uploadSubmission(ctx, id, actor, up)
	submissionsUploadedTotal.WithLabelValues(resultLabel(err)).Inc()
	return a, err
}

func (s *ExchangeService) uploadSubmission(ctx context.Context, id uint, actor Actor, up Upload) (*models.Assignment, error) {
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.files.LockAssignment(id)
	defer unlock()

	a, err := s.states.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.RoleID != models.RoleJudge || a.Judge == nil || a.Judge.UserID != actor.UserID {
		return nil, Forbidden("only the assigned judge can upload an evaluation")
	}
	if err := s.states.CheckUploadAllowed(a); err != nil {
		return nil, err
	}

	stored, err := s.files.StoreSubmission(ctx, a, up, settings)
	if err != nil {
		return nil, err
	}

	updated, err := s.states.RecordSubmission(ctx, id, actor, stored)
	if err != nil {
		s.files.DiscardSubmission(a, stored)
		return nil, err
	}
	log.Printf("[files] assignment=%d version=%d size=%d", id, stored.Version, stored.Size)
	return updated, nil
}

// OpenSubmission returns the path and name of a submission version (0 = latest)
// for an administrator or the owning judge.
func (s *ExchangeService) OpenSubmission(ctx context.Context, id uint, actor Actor, version int) (string, string, error) {
	a, err := s.states.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	if err := s.states.Authorize(a, actor); err != nil {
		return "", "", err
	}
	return s.files.SubmissionFile(a, version)
}

// WriteIdeaArchive streams every latest submission of an idea as a zip.
func (s *ExchangeService) WriteIdeaArchive(ctx context.Context, ideaID uint, w io.Writer) (int, error) {
	assignments, err := s.states.ListForIdea(ctx, ideaID)
	if err != nil {
		return 0, err
	}
	return s.files.WriteSubmissionsArchive(ctx, w, assignments)
}

// DeleteAssignment removes a non-locked assignment and its stored files.
func (s *ExchangeService) DeleteAssignment(ctx context.Context, id uint, actor Actor) (*models.Assignment, error) {
	deleted, err := s.states.Delete(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := s.files.RemoveSubmissions(deleted.IdeaID, deleted.JudgeID); err != nil {
		log.Printf("[files] failed to remove submissions of deleted assignment %d: %v", id, err)
	}
	return deleted, nil
}
