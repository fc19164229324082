package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rating dimension order as fixed by the contract.
var RatingLabels = [4]string{"Teaching", "Communication", "Fairness", "Engagement"}

// StagingStatus is the lifecycle state of a staged feedback record.
type StagingStatus string

const (
	StagingPending   StagingStatus = "PENDING"
	StagingConfirmed StagingStatus = "CONFIRMED"
	StagingFailed    StagingStatus = "FAILED"
)

// StagedFeedback is an off-chain, not-yet-confirmed copy of a submission held
// while the ledger write is in flight. Records are keyed by a generated
// staging ID, carry a TTL and are purged by a background worker; they exist
// for admin tooling and post-mortems, not as a system of record.
type StagedFeedback struct {
	ID            string        `db:"id" json:"id"`
	WalletAddress string        `db:"wallet_address" json:"wallet_address"`
	CourseID      int64         `db:"course_id" json:"course_id"`
	TeacherID     string        `db:"teacher_id" json:"teacher_id"`
	Ratings       RatingSet     `db:"ratings" json:"ratings"`
	Comments      string        `db:"comments" json:"comments"`
	Status        StagingStatus `db:"status" json:"status"`
	TxHash        *string       `db:"tx_hash" json:"tx_hash,omitempty"`
	FailureReason *string       `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time     `db:"expires_at" json:"expires_at"`
}

// RatingSet holds the four rating dimensions in contract order. It persists
// as a comma-joined string column.
type RatingSet [4]uint8

func (r RatingSet) Value() (driver.Value, error) {
	return fmt.Sprintf("%d,%d,%d,%d", r[0], r[1], r[2], r[3]), nil
}

func (r *RatingSet) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		*r = RatingSet{}
		return nil
	default:
		return fmt.Errorf("scan ratings: unsupported type %T", src)
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return fmt.Errorf("scan ratings: expected 4 values, got %d", len(parts))
	}
	var parsed RatingSet
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return fmt.Errorf("scan ratings: %w", err)
		}
		parsed[i] = uint8(n)
	}
	*r = parsed
	return nil
}

// FeedbackSubmission tracks a confirmed submission per (student, course,
// teacher). It gates duplicate submissions and is only written after the
// ledger confirms the transaction.
type FeedbackSubmission struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	WalletAddress string    `db:"wallet_address" json:"wallet_address"`
	CourseID      int64     `db:"course_id" json:"course_id"`
	CourseName    string    `db:"course_name" json:"course_name"`
	TeacherID     string    `db:"teacher_id" json:"teacher_id"`
	TxHash        string    `db:"tx_hash" json:"tx_hash"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submitted_at"`
}

// FeedbackRecord is a decoded on-chain feedback entry.
type FeedbackRecord struct {
	ID            int64     `json:"id"`
	StudentWallet string    `json:"student_wallet"`
	TeacherID     string    `json:"teacher_id"`
	CourseID      int64     `json:"course_id"`
	Ratings       RatingSet `json:"ratings"`
	TotalScore    int64     `json:"total_score"`
	Comments      string    `json:"comments"`
	Timestamp     time.Time `json:"timestamp"`
}

// RatingAverages holds per-dimension arithmetic means for a (teacher, course)
// pair. Count is the number of submissions backing the averages; a zero count
// never reaches callers (it is surfaced as a distinct no-feedback outcome).
type RatingAverages struct {
	TeacherID string     `json:"teacher_id"`
	CourseID  int64      `json:"course_id"`
	Averages  [4]float64 `json:"averages"`
	Overall   float64    `json:"overall"`
	Count     int        `json:"count"`
}

// DashboardStats aggregates counts for the admin dashboard.
type DashboardStats struct {
	TotalStudents  int              `json:"total_students"`
	TotalTeachers  int              `json:"total_teachers"`
	TotalFeedbacks int              `json:"total_feedbacks"`
	RecentFeedback []FeedbackRecord `json:"recent_feedback"`
}
