package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuschain/feedback-api/internal/models"
)

// FeedbackRepository persists staged feedback records and the confirmed
// submission index. The ledger holds the feedback itself; these tables exist
// for in-flight visibility and duplicate gating.
type FeedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository constructs the repository.
func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// CreateStaged records a submission entering the ledger write pipeline.
func (r *FeedbackRepository) CreateStaged(ctx context.Context, staged *models.StagedFeedback) error {
	if staged.ID == "" {
		staged.ID = uuid.NewString()
	}
	if staged.CreatedAt.IsZero() {
		staged.CreatedAt = time.Now().UTC()
	}
	if staged.Status == "" {
		staged.Status = models.StagingPending
	}
	const query = `INSERT INTO staged_feedback (id, wallet_address, course_id, teacher_id, ratings, comments, status, tx_hash, failure_reason, created_at, expires_at)
        VALUES (:id, :wallet_address, :course_id, :teacher_id, :ratings, :comments, :status, :tx_hash, :failure_reason, :created_at, :expires_at)`
	if _, err := r.db.NamedExecContext(ctx, query, staged); err != nil {
		return fmt.Errorf("create staged feedback: %w", err)
	}
	return nil
}

// UpdateStagedStatus advances a staged record's lifecycle state.
func (r *FeedbackRepository) UpdateStagedStatus(ctx context.Context, id string, status models.StagingStatus, txHash, failureReason *string) error {
	const query = `UPDATE staged_feedback SET status = $2, tx_hash = $3, failure_reason = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, txHash, failureReason); err != nil {
		return fmt.Errorf("update staged feedback: %w", err)
	}
	return nil
}

// FindStaged returns a staged record by id.
func (r *FeedbackRepository) FindStaged(ctx context.Context, id string) (*models.StagedFeedback, error) {
	const query = `SELECT id, wallet_address, course_id, teacher_id, ratings, comments, status, tx_hash, failure_reason, created_at, expires_at
        FROM staged_feedback WHERE id = $1`
	var staged models.StagedFeedback
	if err := r.db.GetContext(ctx, &staged, query, id); err != nil {
		return nil, err
	}
	return &staged, nil
}

// ListStagedByWallet returns a wallet's staged records, newest first.
func (r *FeedbackRepository) ListStagedByWallet(ctx context.Context, wallet string) ([]models.StagedFeedback, error) {
	const query = `SELECT id, wallet_address, course_id, teacher_id, ratings, comments, status, tx_hash, failure_reason, created_at, expires_at
        FROM staged_feedback WHERE LOWER(wallet_address) = LOWER($1) ORDER BY created_at DESC`
	var staged []models.StagedFeedback
	if err := r.db.SelectContext(ctx, &staged, query, wallet); err != nil {
		return nil, fmt.Errorf("list staged feedback: %w", err)
	}
	return staged, nil
}

// PurgeExpired removes staged records past their TTL.
func (r *FeedbackRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM staged_feedback WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("purge staged feedback: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return purged, nil
}

// CreateSubmission records a ledger-confirmed submission. Written only after
// the transaction receipt reports success.
func (r *FeedbackRepository) CreateSubmission(ctx context.Context, submission *models.FeedbackSubmission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO feedback_submissions (id, user_id, wallet_address, course_id, course_name, teacher_id, tx_hash, submitted_at)
        VALUES (:id, :user_id, :wallet_address, :course_id, :course_name, :teacher_id, :tx_hash, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create feedback submission: %w", err)
	}
	return nil
}

// HasSubmission reports whether the wallet already has a confirmed submission
// for the (course, teacher) pair.
func (r *FeedbackRepository) HasSubmission(ctx context.Context, wallet string, courseID int64, teacherID string) (bool, error) {
	const query = `SELECT 1 FROM feedback_submissions
        WHERE LOWER(wallet_address) = LOWER($1) AND course_id = $2 AND teacher_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, wallet, courseID, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check feedback submission: %w", err)
	}
	return true, nil
}

// ListSubmissionsByUser returns a user's confirmed submissions, newest first.
func (r *FeedbackRepository) ListSubmissionsByUser(ctx context.Context, userID string) ([]models.FeedbackSubmission, error) {
	const query = `SELECT id, user_id, wallet_address, course_id, course_name, teacher_id, tx_hash, submitted_at
        FROM feedback_submissions WHERE user_id = $1 ORDER BY submitted_at DESC`
	var submissions []models.FeedbackSubmission
	if err := r.db.SelectContext(ctx, &submissions, query, userID); err != nil {
		return nil, fmt.Errorf("list feedback submissions: %w", err)
	}
	return submissions, nil
}

// CountSubmissions returns the total number of confirmed submissions.
func (r *FeedbackRepository) CountSubmissions(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM feedback_submissions`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count feedback submissions: %w", err)
	}
	return total, nil
}
