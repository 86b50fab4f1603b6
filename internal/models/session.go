package models

import "time"

// Session is a scheduled occurrence of a course in a room.
type Session struct {
	ID              string    `db:"id" json:"id"`
	CourseID        string    `db:"course_id" json:"course_id"`
	Date            time.Time `db:"date" json:"date"`
	StartTime       string    `db:"start_time" json:"start_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Room            string    `db:"room" json:"room"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// SessionFilter captures list filtering criteria.
type SessionFilter struct {
	CourseID string
	Room     string
	Page     int
	PageSize int
}
