package models

import "time"

// Submission is a student's uploaded answer to an assignment. SubmittedAt
// is assigned by the server on create and never updated.
type Submission struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	FilePath     string    `db:"file_path" json:"file_path"`
	SubmittedAt  time.Time `db:"submitted_at" json:"submitted_at"`
}

// SubmissionFilter captures list filtering criteria.
type SubmissionFilter struct {
	StudentID    string
	AssignmentID string
	Page         int
	PageSize     int
}
