package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"innovation-review-api/config"
	"innovation-review-api/models"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// SettingsProvider hands the current review settings to the services that need them.
type SettingsProvider interface {
	Current(ctx context.Context) (models.Settings, error)
}

// StaticSettings serves a fixed settings value.
type StaticSettings models.Settings

func (s StaticSettings) Current(context.Context) (models.Settings, error) {
	return models.Settings(s), nil
}

var settingKeys = []string{
	models.SettingMaxJudgesPerIdea,
	models.SettingDefaultJudgeCapacity,
	models.SettingMaxEvaluationFileSize,
	models.SettingAllowPDFSubmission,
	models.SettingDefaultTemplateSource,
}

// SettingsService reads the system_config bag with a short-lived cache.
type SettingsService struct {
	db       *gorm.DB
	validate *validator.Validate
	ttl      time.Duration

	mu        sync.RWMutex
	cached    *models.Settings
	fetchedAt time.Time
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	if db == nil {
		db = config.DB
	}
	return &SettingsService{
		db:       db,
		validate: validator.New(),
		ttl:      30 * time.Second,
	}
}

func (s *SettingsService) Current(ctx context.Context) (models.Settings, error) {
	s.mu.RLock()
	cached := s.cached
	fresh := cached != nil && time.Since(s.fetchedAt) < s.ttl
	s.mu.RUnlock()
	if fresh {
		return *cached, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Since(s.fetchedAt) < s.ttl {
		return *s.cached, nil
	}

	var rows []models.SystemConfig
	if err := s.db.WithContext(ctx).Where("`key` IN ?", settingKeys).Find(&rows).Error; err != nil {
		return models.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	settings, err := models.SettingsFromRows(rows)
	if err != nil {
		return models.Settings{}, err
	}
	if err := s.validate.Struct(settings); err != nil {
		return models.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}

	s.cached = &settings
	s.fetchedAt = time.Now()
	return settings, nil
}

// Invalidate drops the cached settings.
func (s *SettingsService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}
