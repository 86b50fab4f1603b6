package models

import "time"

// Assignment is course work with a due date students submit against.
type Assignment struct {
	ID             string    `db:"id" json:"id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	Title          string    `db:"title" json:"title"`
	Description    string    `db:"description" json:"description"`
	DueAt          time.Time `db:"due_at" json:"due_at"`
	AssignmentType string    `db:"assignment_type" json:"assignment_type"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// AssignmentFilter captures list filtering criteria.
type AssignmentFilter struct {
	CourseID string
	Page     int
	PageSize int
}
