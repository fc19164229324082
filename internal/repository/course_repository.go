package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campuschain/feedback-api/internal/models"
)

// CourseRepository persists the off-chain course mirror. The ledger is
// authoritative; rows here add metadata and transaction coordinates.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Upsert records a course mirror row. Re-running course creation against an
// existing id refreshes the metadata without duplicating the row.
func (r *CourseRepository) Upsert(ctx context.Context, course *models.Course) error {
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO courses (course_id, course_name, branch, course_time, tx_hash, block_number, created_at)
        VALUES (:course_id, :course_name, :branch, :course_time, :tx_hash, :block_number, :created_at)
        ON CONFLICT (course_id) DO UPDATE SET
            course_name = EXCLUDED.course_name,
            branch = EXCLUDED.branch,
            course_time = EXCLUDED.course_time,
            tx_hash = EXCLUDED.tx_hash,
            block_number = EXCLUDED.block_number`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("upsert course: %w", err)
	}
	return nil
}

// FindByID returns the mirror row for a course id.
func (r *CourseRepository) FindByID(ctx context.Context, courseID int64) (*models.Course, error) {
	const query = `SELECT course_id, course_name, branch, course_time, tx_hash, block_number, created_at
        FROM courses WHERE course_id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, courseID); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByIDs returns mirror rows keyed by course id. Missing ids are simply
// absent from the map.
func (r *CourseRepository) FindByIDs(ctx context.Context, courseIDs []int64) (map[int64]models.Course, error) {
	result := make(map[int64]models.Course, len(courseIDs))
	if len(courseIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(courseIDs))
	args := make([]interface{}, len(courseIDs))
	for i, id := range courseIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT course_id, course_name, branch, course_time, tx_hash, block_number, created_at
        FROM courses WHERE course_id IN (%s)`, strings.Join(placeholders, ","))

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("find courses: %w", err)
	}
	for _, course := range courses {
		result[course.CourseID] = course
	}
	return result, nil
}
