package models

import "time"

// Course is the off-chain mirror of an on-chain course. The ledger is
// authoritative for the (id, name) pairing and the teacher set; the mirror
// adds metadata the contract does not store (branch, schedule) plus the
// creation transaction coordinates.
type Course struct {
	CourseID    int64     `db:"course_id" json:"course_id"`
	CourseName  string    `db:"course_name" json:"course_name"`
	Branch      *string   `db:"branch" json:"branch,omitempty"`
	CourseTime  *string   `db:"course_time" json:"course_time,omitempty"`
	TxHash      string    `db:"tx_hash" json:"tx_hash"`
	BlockNumber uint64    `db:"block_number" json:"block_number"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CourseTeacher is a teacher reference as carried by course payloads.
type CourseTeacher struct {
	TeacherID   string `json:"teacher_id"`
	TeacherName string `json:"teacher_name"`
}

// CourseView is the aggregated read model: on-chain course data joined with
// its resolved teacher set and any off-chain metadata.
type CourseView struct {
	CourseID   int64           `json:"course_id"`
	CourseName string          `json:"course_name"`
	Branch     *string         `json:"branch,omitempty"`
	CourseTime *string         `json:"course_time,omitempty"`
	Teachers   []CourseTeacher `json:"teachers"`
}

// TeacherWarning reports a tolerated per-teacher failure during course
// creation.
type TeacherWarning struct {
	TeacherID string `json:"teacher_id"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
}

// CourseCreation is the outcome of the course creation workflow.
type CourseCreation struct {
	Course   CourseView       `json:"course"`
	TxHash   string           `json:"tx_hash"`
	Warnings []TeacherWarning `json:"warnings,omitempty"`
}
