package services

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"innovation-review-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ideaForUpdate   = "SELECT \\* FROM `ideas` WHERE `ideas`.`id` = \\?.*FOR UPDATE"
	judgesForUpdate = "SELECT \\* FROM `judges` WHERE id IN \\(.*\\).*FOR UPDATE"
	assignedJudges  = "SELECT `judge_id` FROM `assignments` WHERE idea_id = \\?"
	judgeLoads      = "SELECT judge_id, COUNT\\(\\*\\) AS active_count FROM `assignments`"
	insertAssign    = "INSERT INTO `assignments`"
	promoteIdea     = "UPDATE `ideas` SET `status`=\\?"
)

type recordingNotifier struct {
	created []uint
	locked  []uint
}

func (n *recordingNotifier) AssignmentsCreated(_ context.Context, _ models.Idea, judges []models.Judge) {
	for _, j := range judges {
		n.created = append(n.created, j.ID)
	}
}

func (n *recordingNotifier) AssignmentLocked(_ context.Context, a models.Assignment) {
	n.locked = append(n.locked, a.ID)
}

func ideaRows(id uint, status models.IdeaStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "submitter_id", "title", "status"}).
		AddRow(id, 99, "Solar water purifier", string(status))
}

func judgeRows(ids []uint, capacity *int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "user_id", "display_name", "active", "capacity"})
	for _, id := range ids {
		var c driver.Value
		if capacity != nil {
			c = int64(*capacity)
		}
		rows.AddRow(id, int(id)+100, "Judge", true, c)
	}
	return rows
}

func assignedRows(ids []uint) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"judge_id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	return rows
}

func idRange(from, to uint) []uint {
	var ids []uint
	for i := from; i <= to; i++ {
		ids = append(ids, i)
	}
	return ids
}

func newTestAllocator(t *testing.T) (*AssignmentAllocator, sqlmock.Sqlmock, *recordingNotifier) {
	db, mock := newMockDB(t)
	notifier := &recordingNotifier{}
	alloc := NewAssignmentAllocator(db, testSettings(), notifier)
	alloc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return alloc, mock, notifier
}

// Ten judges fill the idea; an eleventh is refused.
func TestAllocate_MaxJudgesPerIdea(t *testing.T) {
	alloc, mock, notifier := newTestAllocator(t)
	ctx := context.Background()

	ten := idRange(1, 10)
	mock.ExpectBegin()
	mock.ExpectQuery(ideaForUpdate).WillReturnRows(ideaRows(5, models.IdeaSubmitted))
	mock.ExpectQuery(judgesForUpdate).WillReturnRows(judgeRows(ten, nil))
	mock.ExpectQuery(assignedJudges).WillReturnRows(assignedRows(nil))
	mock.ExpectExec(insertAssign).WillReturnResult(sqlmock.NewResult(1, 10))
	mock.ExpectExec(promoteIdea).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := alloc.Allocate(ctx, testAdmin, AllocationRequest{IdeaID: 5, JudgeIDs: ten})
	require.NoError(t, err)
	assert.Len(t, res.Created, 10)
	assert.Empty(t, res.AlreadyAssigned)
	assert.Equal(t, models.IdeaUnderReview, res.IdeaStatus)
	for _, a := range res.Created {
		assert.Equal(t, models.AssignmentPending, a.Status)
		assert.Equal(t, models.TemplateGenerated, a.TemplateSource)
		assert.True(t, a.AllowReuploadUntilLock)
		require.Len(t, a.AuditEvents, 1)
		assert.Equal(t, models.AuditAssigned, a.AuditEvents[0].Type)
	}
	assert.Equal(t, ten, notifier.created)

	mock.ExpectBegin()
	mock.ExpectQuery(ideaForUpdate).WillReturnRows(ideaRows(5, models.IdeaUnderReview))
	mock.ExpectQuery(judgesForUpdate).WillReturnRows(judgeRows([]uint{11}, nil))
	mock.ExpectQuery(assignedJudges).WillReturnRows(assignedRows(ten))
	mock.ExpectRollback()

	_, err = alloc.Allocate(ctx, testAdmin, AllocationRequest{IdeaID: 5, JudgeIDs: []uint{11}})
	require.Error(t, err)
	assert.Equal(t, CodeMaxJudgesPerIdea, CodeOf(err))
	assert.Equal(t, ten, notifier.created)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocate_ReopensDoneIdea(t *testing.T) {
	alloc, mock, notifier := newTestAllocator(t)

	mock.ExpectBegin()
	mock.ExpectQuery(ideaForUpdate).WillReturnRows(ideaRows(5, models.IdeaDone))
	mock.ExpectQuery(judgesForUpdate).WillReturnRows(judgeRows([]uint{8}, nil))
	mock.ExpectQuery(assignedJudges).WillReturnRows(assignedRows([]uint{3, 4}))
	mock.ExpectExec(insertAssign).WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectExec(promoteIdea).
		WithArgs(models.IdeaUnderReview, sqlmock.AnyArg(), uint(5), models.IdeaDone).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := alloc.Allocate(context.Background(), testAdmin, AllocationRequest{IdeaID: 5, JudgeIDs: []uint{8}})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, models.IdeaUnderReview, res.IdeaStatus)
	assert.Equal(t, []uint{8}, notifier.created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocate_AlreadyAssignedIsNoop(t *testing.T) {
	alloc, mock, notifier := newTestAllocator(t)

	mock.ExpectBegin()
	mock.ExpectQuery(ideaForUpdate).WillReturnRows(ideaRows(5, models.IdeaUnderReview))
	mock.ExpectQuery(judgesForUpdate).WillReturnRows(judgeRows([]uint{3, 4}, nil))
	mock.ExpectQuery(assignedJudges).WillReturnRows(assignedRows([]uint{3, 4}))
	mock.ExpectCommit()

	res, err := alloc.Allocate(context.Background(), testAdmin, AllocationRequest{IdeaID: 5, JudgeIDs: []uint{4, 3, 4}})
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, []uint{4, 3}, res.AlreadyAssigned)
	assert.Empty(t, notifier.created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocate_CapacityReachedFailsWholeBatch(t *testing.T) {
	alloc, mock, _ := newTestAllocator(t)

	mock.ExpectBegin()
	mock.ExpectQuery(ideaForUpdate).WillReturnRows(ideaRows(5, models.IdeaSubmitted))
	mock.ExpectQuery(judgesForUpdate).WillReturnRows(judgeRows([]uint{3, 4}, intPtr(2)))
	mock.ExpectQuery(assignedJudges).WillReturnRows(assignedRows(nil))
	mock.ExpectQuery(judgeLoads).WillReturnRows(
		sqlmock.NewRows([]string{"judge_id", "active_count"}).AddRow(3, 1).AddRow(4, 2))
	mock.ExpectRollback()

	_, err := alloc.Allocate(context.Background(), testAdmin, AllocationRequest{IdeaID: 5, JudgeIDs: []uint{3, 4}})
	require.Error(t, err)
	assert.Equal(t, CodeJudgeCapacityReached, CodeOf(err))

	appErr := err.(*AppError)
	breaches, ok := appErr.Details.([]CapacityBreach)
	require.True(t, ok)
	assert.Equal(t, []CapacityBreach{{JudgeID: 4, Capacity: 2, CurrentLoad: 2}}, breaches)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocate_DuplicateKeyIsConflict(t *testing.T) {
	alloc, mock, notifier := newTestAllocator(t)

	mock.ExpectBegin()
	mock.ExpectQuery(ideaForUpdate).WillReturnRows(ideaRows(5, models.IdeaUnderReview))
	mock.ExpectQuery(judgesForUpdate).WillReturnRows(judgeRows([]uint{3}, nil))
	mock.ExpectQuery(assignedJudges).WillReturnRows(assignedRows(nil))
	mock.ExpectExec(insertAssign).WillReturnError(&mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry '5-3' for key 'uq_assignment_idea_judge'",
	})
	mock.ExpectRollback()

	_, err := alloc.Allocate(context.Background(), testAdmin, AllocationRequest{IdeaID: 5, JudgeIDs: []uint{3}})
	require.Error(t, err)
	assert.Equal(t, CodeAssignmentConflict, CodeOf(err))
	assert.Equal(t, 409, err.(*AppError).Status)
	assert.Empty(t, notifier.created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocate_RejectsBeforeTouchingStorage(t *testing.T) {
	alloc, mock, _ := newTestAllocator(t)

	_, err := alloc.Allocate(context.Background(), testJudge, AllocationRequest{IdeaID: 5, JudgeIDs: []uint{3}})
	assert.Equal(t, CodeForbidden, CodeOf(err))

	_, err = alloc.Allocate(context.Background(), testAdmin, AllocationRequest{IdeaID: 5})
	assert.Equal(t, CodeValidation, CodeOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocate_UnknownJudge(t *testing.T) {
	alloc, mock, _ := newTestAllocator(t)

	mock.ExpectBegin()
	mock.ExpectQuery(ideaForUpdate).WillReturnRows(ideaRows(5, models.IdeaSubmitted))
	mock.ExpectQuery(judgesForUpdate).WillReturnRows(judgeRows([]uint{3}, nil))
	mock.ExpectRollback()

	_, err := alloc.Allocate(context.Background(), testAdmin, AllocationRequest{IdeaID: 5, JudgeIDs: []uint{3, 8}})
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, map[string][]uint{"missing_judge_ids": {8}}, err.(*AppError).Details)
	require.NoError(t, mock.ExpectationsWereMet())
}
