package services

import (
	"context"
	"testing"
	"time"

	"innovation-review-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	judgeByUser        = "SELECT \\* FROM `judges` WHERE user_id = \\?"
	assignmentForJudge = "SELECT \\* FROM `assignments` WHERE .*idea_id = \\? AND judge_id = \\?.*FOR UPDATE"
	upsertReview       = "INSERT INTO `reviews` .* ON DUPLICATE KEY UPDATE"
	reloadReview       = "SELECT \\* FROM `reviews` WHERE idea_id = \\? AND judge_id = \\?"
	saveAssignment     = "UPDATE `assignments` SET .*row_version = \\?"
	loadIdea           = "SELECT \\* FROM `ideas` WHERE `ideas`.`id` = \\?"
	ideaReviews        = "SELECT \\* FROM `reviews` WHERE idea_id = \\?"
	ideaAssignments    = "SELECT `id`,`status`,`reviewed_at` FROM `assignments` WHERE idea_id = \\?"
	updateIdeaSummary  = "UPDATE `ideas` SET"
)

var fullScores = map[string]float64{"novelty": 8, "feasibility": 6, "impact": 7, "presentation": 9}

func newTestReviewService(t *testing.T) (*ReviewService, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	states := NewAssignmentStateMachine(db, nil, nil)
	svc := NewReviewService(db, nil, states, nil)
	return svc, mock
}

func judgeRow(id uint, userID int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "display_name", "active"}).AddRow(id, userID, "Judge", true)
}

func assignmentRow(id, ideaID, judgeID uint, status models.AssignmentStatus, version int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "idea_id", "judge_id", "status", "template_source", "submission_version",
		"submission_path", "allow_reupload_until_lock", "row_version", "audit_events"}).
		AddRow(id, ideaID, judgeID, string(status), "GENERATED", version, "/uploads/x.docx", true, 3, "[]")
}

func TestReviewService_RejectsInvalidScores(t *testing.T) {
	svc, mock := newTestReviewService(t)
	judge := Actor{UserID: 11, RoleID: models.RoleJudge}

	_, _, err := svc.Submit(context.Background(), judge, ReviewInput{IdeaID: 5, Scores: map[string]float64{"novelty": 11}})
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))
	details := err.(*AppError).Details.(map[string]string)
	assert.Contains(t, details, "novelty")
	assert.Contains(t, details, "impact")

	_, _, err = svc.Submit(context.Background(), judge, ReviewInput{Scores: fullScores})
	assert.Equal(t, CodeValidation, CodeOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewService_Preconditions(t *testing.T) {
	judge := Actor{UserID: 11, RoleID: models.RoleJudge}

	t.Run("caller is not a judge", func(t *testing.T) {
		svc, mock := newTestReviewService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(judgeByUser).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, _, err := svc.Submit(context.Background(), judge, ReviewInput{IdeaID: 5, Scores: fullScores})
		assert.Equal(t, CodeForbidden, CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not assigned", func(t *testing.T) {
		svc, mock := newTestReviewService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(judgeByUser).WillReturnRows(judgeRow(2, 11))
		mock.ExpectQuery(assignmentForJudge).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, _, err := svc.Submit(context.Background(), judge, ReviewInput{IdeaID: 5, Scores: fullScores})
		assert.Equal(t, CodeForbidden, CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no submission yet", func(t *testing.T) {
		svc, mock := newTestReviewService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(judgeByUser).WillReturnRows(judgeRow(2, 11))
		mock.ExpectQuery(assignmentForJudge).WillReturnRows(assignmentRow(20, 5, 2, models.AssignmentInProgress, 0))
		mock.ExpectRollback()

		_, _, err := svc.Submit(context.Background(), judge, ReviewInput{IdeaID: 5, Scores: fullScores})
		assert.Equal(t, CodeValidation, CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locked", func(t *testing.T) {
		svc, mock := newTestReviewService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(judgeByUser).WillReturnRows(judgeRow(2, 11))
		mock.ExpectQuery(assignmentForJudge).WillReturnRows(assignmentRow(20, 5, 2, models.AssignmentLocked, 1))
		mock.ExpectRollback()

		_, _, err := svc.Submit(context.Background(), judge, ReviewInput{IdeaID: 5, Scores: fullScores})
		assert.Equal(t, CodeAssignmentLocked, CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// The second of two judges submits; the idea becomes DONE in the same transaction.
func TestReviewService_LastReviewCompletesIdea(t *testing.T) {
	svc, mock := newTestReviewService(t)
	judge := Actor{UserID: 11, RoleID: models.RoleJudge}
	reviewedAt := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(judgeByUser).WillReturnRows(judgeRow(2, 11))
	mock.ExpectQuery(assignmentForJudge).WillReturnRows(assignmentRow(20, 5, 2, models.AssignmentSubmitted, 1))
	mock.ExpectExec(upsertReview).WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectQuery(reloadReview).WillReturnRows(sqlmock.NewRows([]string{"id", "idea_id", "judge_id", "scores"}).
		AddRow(31, 5, 2, `{"novelty":8,"feasibility":6,"impact":7,"presentation":9}`))
	mock.ExpectExec(saveAssignment).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(loadIdea).WillReturnRows(ideaRows(5, models.IdeaUnderReview))
	mock.ExpectQuery(ideaReviews).WillReturnRows(sqlmock.NewRows([]string{"id", "idea_id", "judge_id", "scores"}).
		AddRow(30, 5, 1, `{"novelty":6,"feasibility":4,"impact":5,"presentation":7}`).
		AddRow(31, 5, 2, `{"novelty":8,"feasibility":6,"impact":7,"presentation":9}`))
	mock.ExpectQuery(ideaAssignments).WillReturnRows(sqlmock.NewRows([]string{"id", "status", "reviewed_at"}).
		AddRow(10, "REVIEWED", reviewedAt).
		AddRow(20, "REVIEWED", reviewedAt))
	mock.ExpectExec(updateIdeaSummary).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	review, idea, err := svc.Submit(context.Background(), judge, ReviewInput{IdeaID: 5, Scores: fullScores})
	require.NoError(t, err)
	assert.Equal(t, uint(31), review.ID)
	assert.Equal(t, models.IdeaDone, idea.Status)
	assert.Equal(t, 2, idea.ReviewCount)
	require.NotNil(t, idea.ScoreAverage)
	assert.InDelta(t, 6.5, *idea.ScoreAverage, 1e-9)
	assert.InDelta(t, 7.0, idea.CriterionAverages.Data()["novelty"], 1e-9)

	require.NoError(t, mock.ExpectationsWereMet())
}
