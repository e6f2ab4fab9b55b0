package models

import "gorm.io/gorm"

// Migrate creates or updates the tables owned by the review workflow,
// including the (idea_id, judge_id) unique indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&SystemConfig{},
		&Idea{},
		&Judge{},
		&Assignment{},
		&Review{},
	)
}
