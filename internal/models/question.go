package models

import "time"

// Question is free-text posted by a student about a session.
type Question struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// QuestionFilter captures list filtering criteria.
type QuestionFilter struct {
	StudentID string
	SessionID string
	Page      int
	PageSize  int
}
