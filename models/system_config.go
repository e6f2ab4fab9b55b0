package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SystemConfig represents key-value configuration settings.
type SystemConfig struct {
	Key   string `gorm:"primaryKey;column:key;type:varchar(100)" json:"key"`
	Value string `gorm:"column:value;type:varchar(1024)" json:"value"`
}

// TableName specifies the table name for GORM
func (SystemConfig) TableName() string {
	return "system_config"
}

// system_config keys read by the review workflow.
const (
	SettingMaxJudgesPerIdea      = "max_judges_per_idea"
	SettingDefaultJudgeCapacity  = "default_judge_capacity"
	SettingMaxEvaluationFileSize = "max_evaluation_file_size"
	SettingAllowPDFSubmission    = "allow_pdf_submission"
	SettingDefaultTemplateSource = "default_template_source"
)

// Settings is the typed, immutable view of system_config handed to the services.
type Settings struct {
	MaxJudgesPerIdea      int            `json:"max_judges_per_idea" validate:"gte=1,lte=1000"`
	DefaultJudgeCapacity  int            `json:"default_judge_capacity" validate:"gte=0"`
	MaxEvaluationFileSize int64          `json:"max_evaluation_file_size" validate:"gte=1"`
	AllowPDFSubmission    bool           `json:"allow_pdf_submission"`
	DefaultTemplateSource TemplateSource `json:"default_template_source" validate:"oneof=STATIC PER_IDEA GENERATED"`
}

// DefaultSettings are used for any key missing from system_config.
func DefaultSettings() Settings {
	return Settings{
		MaxJudgesPerIdea:      10,
		DefaultJudgeCapacity:  0,
		MaxEvaluationFileSize: 10 * 1024 * 1024,
		AllowPDFSubmission:    false,
		DefaultTemplateSource: TemplateGenerated,
	}
}

// SettingsFromRows overlays stored rows on the defaults. Unknown keys are ignored.
func SettingsFromRows(rows []SystemConfig) (Settings, error) {
	s := DefaultSettings()
	for _, row := range rows {
		value := strings.TrimSpace(row.Value)
		if value == "" {
			continue
		}
		var err error
		switch row.Key {
		case SettingMaxJudgesPerIdea:
			s.MaxJudgesPerIdea, err = strconv.Atoi(value)
		case SettingDefaultJudgeCapacity:
			s.DefaultJudgeCapacity, err = strconv.Atoi(value)
		case SettingMaxEvaluationFileSize:
			s.MaxEvaluationFileSize, err = strconv.ParseInt(value, 10, 64)
		case SettingAllowPDFSubmission:
			s.AllowPDFSubmission, err = strconv.ParseBool(value)
		case SettingDefaultTemplateSource:
			s.DefaultTemplateSource = TemplateSource(strings.ToUpper(value))
		}
		if err != nil {
			return s, fmt.Errorf("invalid value %q for %s: %w", row.Value, row.Key, err)
		}
	}
	return s, nil
}
