package services

import (
	"testing"

	"innovation-review-api/config"
	"innovation-review-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockDB opens gorm over go-sqlmock with the production gorm configuration.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), config.NewGormConfig(logger.Silent))
	require.NoError(t, err)
	return db, mock
}

func testSettings() StaticSettings {
	return StaticSettings(models.DefaultSettings())
}
