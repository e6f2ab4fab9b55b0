package services

import (
	"context"
	"errors"
	"strings"

	"innovation-review-api/config"
	"innovation-review-api/models"

	"gorm.io/gorm"
)

// JudgeOptions overrides the defaults applied to a provisioned judge.
type JudgeOptions struct {
	Capacity      *int
	ExpertiseTags []string
}

// JudgeProvisioner creates Judge profiles for existing user accounts.
type JudgeProvisioner struct {
	db       *gorm.DB
	settings SettingsProvider
}

func NewJudgeProvisioner(db *gorm.DB, settings SettingsProvider) *JudgeProvisioner {
	if db == nil {
		db = config.DB
	}
	return &JudgeProvisioner{db: db, settings: settings}
}

// Provision makes userID an active judge. A user that already has a profile is
// reactivated and otherwise left unchanged. A new profile without an explicit capacity
// receives default_judge_capacity, where 0 means unlimited.
func (p *JudgeProvisioner) Provision(ctx context.Context, userID int, opts JudgeOptions) (*models.Judge, bool, error) {
	var user models.User
	if err := p.db.WithContext(ctx).
		Where("user_id = ? AND delete_at IS NULL", userID).
		First(&user).Error; err != nil {
		return nil, false, notFoundOr(err, "user not found")
	}

	var existing models.Judge
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	switch {
	case err == nil:
		if !existing.Active {
			if err := p.db.WithContext(ctx).Model(&existing).Update("active", true).Error; err != nil {
				return nil, false, err
			}
			existing.Active = true
		}
		return &existing, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	settings, err := p.settings.Current(ctx)
	if err != nil {
		return nil, false, err
	}
	capacity := opts.Capacity
	if capacity == nil && settings.DefaultJudgeCapacity > 0 {
		c := settings.DefaultJudgeCapacity
		capacity = &c
	}
	if capacity != nil && *capacity < 1 {
		return nil, false, ValidationError("capacity must be at least 1", map[string]int{"capacity": *capacity})
	}

	tags := make([]string, 0, len(opts.ExpertiseTags))
	for _, t := range opts.ExpertiseTags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, strings.ToLower(t))
		}
	}

	judge := models.Judge{
		UserID:        user.UserID,
		DisplayName:   user.FullName(),
		ExpertiseTags: tags,
		Active:        true,
		Capacity:      capacity,
	}
	if err := p.db.WithContext(ctx).Create(&judge).Error; err != nil {
		if !isDuplicateKey(err) {
			return nil, false, err
		}
		// Created by a concurrent run.
		if err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}
	return &judge, true, nil
}
