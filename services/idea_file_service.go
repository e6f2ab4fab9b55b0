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

// IdeaFileService manages the administrator-owned files of an idea:
// the final summary and the PER_IDEA evaluation template.
type IdeaFileService struct {
	db       *gorm.DB
	files    *FileExchangeManager
	settings SettingsProvider
	now      func() time.Time
}

func NewIdeaFileService(db *gorm.DB, files *FileExchangeManager, settings SettingsProvider) *IdeaFileService {
	if db == nil {
		db = config.DB
	}
	return &IdeaFileService{db: db, files: files, settings: settings, now: time.Now}
}

func (s *IdeaFileService) getIdea(ctx context.Context, ideaID uint) (*models.Idea, error) {
	var idea models.Idea
	if err := s.db.WithContext(ctx).First(&idea, ideaID).Error; err != nil {
		return nil, notFoundOr(err, "idea not found")
	}
	return &idea, nil
}

// ReplaceFinalSummary stores a new summary, points the idea at it, then deletes the old file.
// The idea row is locked for the swap so concurrent replacements each see the path they supersede.
func (s *IdeaFileService) ReplaceFinalSummary(ctx context.Context, ideaID uint, actor Actor, up Upload) (*models.Idea, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("only administrators can upload a final summary")
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.getIdea(ctx, ideaID); err != nil {
		return nil, err
	}

	stored, err := s.files.StoreFinalSummary(ctx, ideaID, up, settings)
	if err != nil {
		return nil, err
	}

	now := s.now()
	uploader := actor.UserID
	var idea models.Idea
	var previous string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&idea, ideaID).Error; err != nil {
			return notFoundOr(err, "idea not found")
		}
		previous = idea.FinalSummaryPath
		return tx.Model(&models.Idea{}).Where("id = ?", ideaID).Updates(map[string]any{
			"final_summary_path":        stored.Path,
			"final_summary_filename":    stored.Filename,
			"final_summary_mime":        stored.MimeType,
			"final_summary_size":        stored.Size,
			"final_summary_uploaded_by": uploader,
			"final_summary_uploaded_at": now,
		}).Error
	})
	if err != nil {
		if rmErr := s.files.RemoveFinalSummary(stored.Path); rmErr != nil {
			log.Printf("[files] failed to remove unused final summary of idea %d: %v", ideaID, rmErr)
		}
		return nil, err
	}

	if previous != "" && previous != stored.Path {
		if err := s.files.RemoveFinalSummary(previous); err != nil {
			log.Printf("[files] failed to remove superseded final summary of idea %d: %v", ideaID, err)
		}
	}

	idea.FinalSummaryPath = stored.Path
	idea.FinalSummaryFilename = stored.Filename
	idea.FinalSummaryMime = stored.MimeType
	idea.FinalSummarySize = stored.Size
	idea.FinalSummaryUploadedBy = &uploader
	idea.FinalSummaryUploadedAt = &now
	return &idea, nil
}

// FinalSummary returns the idea with its summary metadata.
func (s *IdeaFileService) FinalSummary(ctx context.Context, ideaID uint) (*models.Idea, error) {
	idea, err := s.getIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if !idea.HasFinalSummary() {
		return nil, NotFound("final summary not uploaded")
	}
	return idea, nil
}

// FinalSummaryFile returns the path and display name of the summary.
func (s *IdeaFileService) FinalSummaryFile(ctx context.Context, ideaID uint) (string, string, error) {
	idea, err := s.FinalSummary(ctx, ideaID)
	if err != nil {
		return "", "", err
	}
	path, err := s.files.FinalSummaryFile(idea)
	if err != nil {
		return "", "", err
	}
	return path, idea.FinalSummaryFilename, nil
}

// UploadIdeaTemplate installs the PER_IDEA template for an idea.
func (s *IdeaFileService) UploadIdeaTemplate(ctx context.Context, ideaID uint, actor Actor, up Upload) (StoredFile, error) {
	if !actor.IsAdmin() {
		return StoredFile{}, Forbidden("only administrators can upload templates")
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return StoredFile{}, err
	}
	if _, err := s.getIdea(ctx, ideaID); err != nil {
		return StoredFile{}, err
	}
	return s.files.StorePerIdeaTemplate(ctx, ideaID, up, settings)
}
