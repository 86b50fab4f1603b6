package models

import "time"

// Enrollment associates one student account with one course. The
// (student, course) pair is unique, backed by a database constraint.
type Enrollment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentDetail joins contextual names onto the enrollment.
type EnrollmentDetail struct {
	Enrollment
	StudentFirstName string `db:"student_first_name" json:"student_first_name"`
	StudentLastName  string `db:"student_last_name" json:"student_last_name"`
	CourseTitle      string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter captures list filtering criteria.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Page      int
	PageSize  int
}
