package services

import (
	"context"
	"testing"

	"innovation-review-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	activeUser   = "SELECT \\* FROM `users` WHERE user_id = \\? AND delete_at IS NULL"
	judgeForUser = "SELECT \\* FROM `judges` WHERE user_id = \\?"
	insertJudge  = "INSERT INTO `judges`"
)

func userRow(id int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "user_fname", "user_lname", "email", "role_id"}).
		AddRow(id, "Somchai", "Dee", "somchai@example.com", models.RoleJudge)
}

func TestJudgeProvisioner_CreatesProfile(t *testing.T) {
	db, mock := newMockDB(t)
	settings := models.DefaultSettings()
	settings.DefaultJudgeCapacity = 5
	p := NewJudgeProvisioner(db, StaticSettings(settings))

	mock.ExpectQuery(activeUser).WillReturnRows(userRow(42))
	mock.ExpectQuery(judgeForUser).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec(insertJudge).WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	judge, created, err := p.Provision(context.Background(), 42, JudgeOptions{ExpertiseTags: []string{" Energy ", "", "IoT"}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint(9), judge.ID)
	assert.Equal(t, "Somchai Dee", judge.DisplayName)
	assert.Equal(t, []string{"energy", "iot"}, []string(judge.ExpertiseTags))
	require.NotNil(t, judge.Capacity)
	assert.Equal(t, 5, *judge.Capacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJudgeProvisioner_ReactivatesExisting(t *testing.T) {
	db, mock := newMockDB(t)
	p := NewJudgeProvisioner(db, testSettings())

	mock.ExpectQuery(activeUser).WillReturnRows(userRow(42))
	mock.ExpectQuery(judgeForUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "display_name", "active"}).AddRow(3, 42, "Somchai Dee", false))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `judges` SET `active`=\\?").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	judge, created, err := p.Provision(context.Background(), 42, JudgeOptions{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, judge.Active)
	assert.Equal(t, uint(3), judge.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJudgeProvisioner_ConcurrentCreate(t *testing.T) {
	db, mock := newMockDB(t)
	p := NewJudgeProvisioner(db, testSettings())

	mock.ExpectQuery(activeUser).WillReturnRows(userRow(42))
	mock.ExpectQuery(judgeForUser).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec(insertJudge).WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()
	mock.ExpectQuery(judgeForUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "display_name", "active"}).AddRow(4, 42, "Somchai Dee", true))

	judge, created, err := p.Provision(context.Background(), 42, JudgeOptions{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint(4), judge.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJudgeProvisioner_Rejections(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		db, mock := newMockDB(t)
		p := NewJudgeProvisioner(db, testSettings())
		mock.ExpectQuery(activeUser).WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

		_, _, err := p.Provision(context.Background(), 42, JudgeOptions{})
		assert.True(t, IsCode(err, CodeNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("capacity below one", func(t *testing.T) {
		db, mock := newMockDB(t)
		p := NewJudgeProvisioner(db, testSettings())
		mock.ExpectQuery(activeUser).WillReturnRows(userRow(42))
		mock.ExpectQuery(judgeForUser).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, _, err := p.Provision(context.Background(), 42, JudgeOptions{Capacity: intPtr(0)})
		assert.True(t, IsCode(err, CodeValidation))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
