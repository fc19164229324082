package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campuschain/feedback-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestFeedbackRepositoryCreateStagedFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeedbackRepository(db)

	mock.ExpectExec("INSERT INTO staged_feedback").
		WillReturnResult(sqlmock.NewResult(0, 1))

	staged := &models.StagedFeedback{
		WalletAddress: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		CourseID:      42,
		TeacherID:     "T-101",
		Ratings:       models.RatingSet{5, 4, 3, 5},
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, repo.CreateStaged(context.Background(), staged))
	require.NotEmpty(t, staged.ID)
	require.Equal(t, models.StagingPending, staged.Status)
	require.False(t, staged.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepositoryHasSubmission(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeedbackRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM feedback_submissions")).
		WithArgs("0xabc", int64(42), "T-101").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.HasSubmission(context.Background(), "0xabc", 42, "T-101")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepositoryHasSubmissionNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeedbackRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM feedback_submissions")).
		WithArgs("0xabc", int64(42), "T-101").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.HasSubmission(context.Background(), "0xabc", 42, "T-101")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepositoryFindStagedScansRatings(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeedbackRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "wallet_address", "course_id", "teacher_id", "ratings", "comments", "status", "tx_hash", "failure_reason", "created_at", "expires_at"}).
		AddRow("stg-1", "0xabc", int64(42), "T-101", "5,4,3,5", "solid", models.StagingConfirmed, "0xhash", nil, now, now.Add(time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, wallet_address, course_id, teacher_id, ratings, comments, status, tx_hash, failure_reason, created_at, expires_at")).
		WithArgs("stg-1").
		WillReturnRows(rows)

	staged, err := repo.FindStaged(context.Background(), "stg-1")
	require.NoError(t, err)
	require.Equal(t, models.RatingSet{5, 4, 3, 5}, staged.Ratings)
	require.Equal(t, models.StagingConfirmed, staged.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepositoryPurgeExpired(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeedbackRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM staged_feedback WHERE expires_at < $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	purged, err := repo.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(3), purged)
	require.NoError(t, mock.ExpectationsWereMet())
}
