package models

import "time"

// CourseType distinguishes lectures, tutorials and lab work.
type CourseType string

const (
	CourseTypeLecture  CourseType = "CM"
	CourseTypeTutorial CourseType = "TD"
	CourseTypeLab      CourseType = "TP"
)

// Course represents a taught course owned by a teacher account.
type Course struct {
	ID           string     `db:"id" json:"id"`
	Title        string     `db:"title" json:"title"`
	Description  string     `db:"description" json:"description"`
	HourlyVolume float64    `db:"hourly_volume" json:"hourly_volume"`
	CourseType   CourseType `db:"course_type" json:"course_type"`
	Semester     string     `db:"semester" json:"semester"`
	StudyYear    string     `db:"study_year" json:"study_year"`
	TeacherID    string     `db:"teacher_id" json:"teacher_id"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// CourseDetail joins the owning teacher's name onto the course.
type CourseDetail struct {
	Course
	TeacherFirstName string `db:"teacher_first_name" json:"teacher_first_name"`
	TeacherLastName  string `db:"teacher_last_name" json:"teacher_last_name"`
}

// CourseFilter captures list filtering criteria.
type CourseFilter struct {
	TeacherID  string
	Semester   string
	StudyYear  string
	CourseType string
	Page       int
	PageSize   int
}
