package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"innovation-review-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	assignmentByID     = "SELECT \\* FROM `assignments` WHERE `assignments`.`id` = \\?"
	preloadIdea        = "SELECT \\* FROM `ideas` WHERE `ideas`.`id` = \\?"
	preloadJudge       = "SELECT \\* FROM `judges` WHERE `judges`.`id` = \\?"
	casAssignment      = "UPDATE `assignments` SET .*row_version = \\?"
	deleteReview       = "DELETE FROM `reviews` WHERE idea_id = \\? AND judge_id = \\?"
	deleteAssignment   = "DELETE FROM `assignments` WHERE `assignments`.`id` = \\?"
	assignmentLockedID = "SELECT \\* FROM `assignments` WHERE `assignments`.`id` = \\?.*FOR UPDATE"
)

type storedRow struct {
	status     models.AssignmentStatus
	version    int
	path       string
	reupload   bool
	rowVersion int
}

func lifecycleRow(r storedRow) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "idea_id", "judge_id", "status", "template_source", "submission_version",
		"submission_path", "submission_filename", "allow_reupload_until_lock", "row_version", "audit_events"}).
		AddRow(9, 2, 3, string(r.status), "STATIC", r.version, r.path, filepath.Base(r.path), r.reupload, r.rowVersion, "[]")
}

// expectGet scripts AssignmentStateMachine.Get: the row, then the Idea and Judge preloads.
func expectGet(mock sqlmock.Sqlmock, r storedRow) {
	mock.ExpectQuery(assignmentByID).WillReturnRows(lifecycleRow(r))
	mock.ExpectQuery(preloadIdea).WillReturnRows(ideaRows(2, models.IdeaUnderReview))
	mock.ExpectQuery(preloadJudge).WillReturnRows(judgeRow(3, testJudge.UserID))
}

func expectSave(mock sqlmock.Sqlmock, rowsAffected int64) {
	mock.ExpectBegin()
	mock.ExpectExec(casAssignment).WillReturnResult(sqlmock.NewResult(0, rowsAffected))
	mock.ExpectCommit()
}

func newTestStateMachine(t *testing.T) (*AssignmentStateMachine, sqlmock.Sqlmock, *recordingNotifier) {
	db, mock := newMockDB(t)
	notifier := &recordingNotifier{}
	m := NewAssignmentStateMachine(db, nil, notifier)
	m.now = func() time.Time { return time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC) }
	return m, mock, notifier
}

func TestLock_PersistsOnceThenNoop(t *testing.T) {
	m, mock, notifier := newTestStateMachine(t)
	ctx := context.Background()

	expectGet(mock, storedRow{status: models.AssignmentSubmitted, version: 1, reupload: true, rowVersion: 4})
	expectSave(mock, 1)

	a, changed, err := m.Lock(ctx, 9, testAdmin)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.AssignmentLocked, a.Status)
	assert.Equal(t, 5, a.RowVersion)
	assert.False(t, a.AllowReuploadUntilLock)
	assert.Equal(t, []uint{9}, notifier.locked)

	// A repeat lock reads the row and writes nothing.
	expectGet(mock, storedRow{status: models.AssignmentLocked, version: 1, rowVersion: 5})

	a, changed, err = m.Lock(ctx, 9, testAdmin)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.AssignmentLocked, a.Status)
	assert.Equal(t, []uint{9}, notifier.locked)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLock_RequiresAdmin(t *testing.T) {
	m, mock, _ := newTestStateMachine(t)

	_, _, err := m.Lock(context.Background(), 9, testJudge)
	assert.Equal(t, CodeForbidden, CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_LockedAssignmentIsRefused(t *testing.T) {
	m, mock, _ := newTestStateMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(assignmentLockedID).
		WillReturnRows(lifecycleRow(storedRow{status: models.AssignmentLocked, version: 2, rowVersion: 6}))
	mock.ExpectRollback()

	_, err := m.Delete(context.Background(), 9, testAdmin)
	require.Error(t, err)
	assert.Equal(t, CodeAssignmentLocked, CodeOf(err))
	assert.Equal(t, 423, err.(*AppError).Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_RemovesReviewAndRecomputesInOneTransaction(t *testing.T) {
	m, mock, _ := newTestStateMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(assignmentLockedID).
		WillReturnRows(lifecycleRow(storedRow{status: models.AssignmentReviewed, version: 1, rowVersion: 3}))
	mock.ExpectExec(deleteReview).WithArgs(2, 3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteAssignment).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(loadIdea).WillReturnRows(ideaRows(2, models.IdeaDone))
	mock.ExpectQuery(ideaReviews).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(ideaAssignments).WillReturnRows(sqlmock.NewRows([]string{"id", "status", "reviewed_at"}))
	mock.ExpectExec(updateIdeaSummary).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := m.Delete(context.Background(), 9, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, uint(9), deleted.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSubmission_RetriesStaleWrite(t *testing.T) {
	m, mock, _ := newTestStateMachine(t)
	stored := StoredFile{Path: "/uploads/v1/report.docx", Filename: "report.docx", MimeType: models.MimeDocx, Size: 10, Checksum: "ab", Version: 1}

	expectGet(mock, storedRow{status: models.AssignmentInProgress, reupload: true, rowVersion: 1})
	expectSave(mock, 0)
	expectGet(mock, storedRow{status: models.AssignmentInProgress, reupload: true, rowVersion: 2})
	expectSave(mock, 1)

	a, err := m.RecordSubmission(context.Background(), 9, testJudge, stored)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentSubmitted, a.Status)
	assert.Equal(t, 1, a.SubmissionVersion)
	assert.Equal(t, 3, a.RowVersion)
	require.Len(t, a.AuditEvents, 1)
	assert.Equal(t, models.AuditSubmissionUpload, a.AuditEvents[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSubmission_Conflicts(t *testing.T) {
	t.Run("version already taken", func(t *testing.T) {
		m, mock, _ := newTestStateMachine(t)
		expectGet(mock, storedRow{status: models.AssignmentSubmitted, version: 2, reupload: true, rowVersion: 4})

		_, err := m.RecordSubmission(context.Background(), 9, testJudge, StoredFile{Version: 2})
		assert.Equal(t, CodeAssignmentConflict, CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries exhausted", func(t *testing.T) {
		m, mock, _ := newTestStateMachine(t)
		for i := 0; i < maxMutationAttempts; i++ {
			expectGet(mock, storedRow{status: models.AssignmentPending, reupload: true, rowVersion: i + 1})
			expectSave(mock, 0)
		}

		_, err := m.RecordSubmission(context.Background(), 9, testJudge, StoredFile{Version: 1})
		assert.Equal(t, CodeAssignmentConflict, CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// v1 and v2 are accepted, the admin locks, and a third upload is refused before any write.
func TestExchangeService_UploadUntilLock(t *testing.T) {
	m, mock, _ := newTestStateMachine(t)
	files, root := newTestFileManager(t, nil)
	svc := NewExchangeService(m, files, testSettings())
	ctx := context.Background()

	expectGet(mock, storedRow{status: models.AssignmentInProgress, reupload: true, rowVersion: 1})
	expectGet(mock, storedRow{status: models.AssignmentInProgress, reupload: true, rowVersion: 1})
	expectSave(mock, 1)

	a, err := svc.UploadSubmission(ctx, 9, testJudge, memUpload("eval.docx", docxBytes(t, "first")))
	require.NoError(t, err)
	assert.Equal(t, 1, a.SubmissionVersion)
	assert.Equal(t, models.AssignmentSubmitted, a.Status)
	v1Path := a.SubmissionPath

	expectGet(mock, storedRow{status: models.AssignmentSubmitted, version: 1, path: v1Path, reupload: true, rowVersion: 2})
	expectGet(mock, storedRow{status: models.AssignmentSubmitted, version: 1, path: v1Path, reupload: true, rowVersion: 2})
	expectSave(mock, 1)

	a, err = svc.UploadSubmission(ctx, 9, testJudge, memUpload("eval.docx", docxBytes(t, "second")))
	require.NoError(t, err)
	assert.Equal(t, 2, a.SubmissionVersion)
	v2Path := a.SubmissionPath
	assert.NotEqual(t, v1Path, v2Path)

	expectGet(mock, storedRow{status: models.AssignmentSubmitted, version: 2, path: v2Path, reupload: true, rowVersion: 3})
	expectSave(mock, 1)
	_, changed, err := m.Lock(ctx, 9, testAdmin)
	require.NoError(t, err)
	assert.True(t, changed)

	expectGet(mock, storedRow{status: models.AssignmentLocked, version: 2, path: v2Path, rowVersion: 4})

	_, err = svc.UploadSubmission(ctx, 9, testJudge, memUpload("eval.docx", docxBytes(t, "third")))
	require.Error(t, err)
	assert.Equal(t, CodeAssignmentLocked, CodeOf(err))
	assert.Equal(t, 423, err.(*AppError).Status)

	_, err = os.Stat(filepath.Join(root, "submissions", "idea_2", "judge_3", "v3"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 2, countFiles(t, filepath.Join(root, "submissions")))
	for _, p := range []string{v1Path, v2Path} {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}
