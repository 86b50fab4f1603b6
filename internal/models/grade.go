package models

import "time"

// Grade records an exam score for a student on a course. Scores live in
// [0, 20] with at most two fractional digits.
type Grade struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	ExamType  string    `db:"exam_type" json:"exam_type"`
	Score     float64   `db:"score" json:"score"`
	Comment   string    `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GradeDetail joins student and course context onto the grade.
type GradeDetail struct {
	Grade
	StudentFirstName string `db:"student_first_name" json:"student_first_name"`
	StudentLastName  string `db:"student_last_name" json:"student_last_name"`
	CourseTitle      string `db:"course_title" json:"course_title"`
}

// GradeFilter captures list filtering criteria.
type GradeFilter struct {
	StudentID string
	CourseID  string
	ExamType  string
	Page      int
	PageSize  int
}
