package models

import "time"

// Role identifies the account kind. The wire values are the legacy ones
// existing clients send.
type Role string

const (
	RoleStudent   Role = "etudiant"
	RoleTeacher   Role = "enseignant"
	RoleRegistrar Role = "secretaire"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleRegistrar:
		return true
	}
	return false
}

// Flags are the permission flags derived from an account's role.
type Flags struct {
	IsActive    bool
	IsStaff     bool
	IsSuperuser bool
}

// DeriveFlags computes permission flags for a role. Registrars are always
// staff, superuser and active; any other role loses staff status while the
// remaining flags carry over. Applied before every persist so a later role
// change re-derives the flags.
func DeriveFlags(role Role, current Flags) Flags {
	if role == RoleRegistrar {
		return Flags{IsActive: true, IsStaff: true, IsSuperuser: true}
	}
	current.IsStaff = false
	return current
}

// User represents an account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Phone        string     `db:"phone" json:"phone,omitempty"`
	Role         Role       `db:"role" json:"role"`

	// Role-conditional profile attributes.
	EnrollmentYear *string    `db:"enrollment_year" json:"enrollment_year,omitempty"`
	Function       *string    `db:"function" json:"function,omitempty"`
	Track          *string    `db:"track" json:"track,omitempty"`
	StudyYear      *string    `db:"study_year" json:"study_year,omitempty"`
	BirthDate      *time.Time `db:"birth_date" json:"birth_date,omitempty"`

	IsActive    bool      `db:"is_active" json:"is_active"`
	IsStaff     bool      `db:"is_staff" json:"is_staff"`
	IsSuperuser bool      `db:"is_superuser" json:"is_superuser"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ApplyRoleFlags re-derives the permission flags from the current role.
func (u *User) ApplyRoleFlags() {
	flags := DeriveFlags(u.Role, Flags{IsActive: u.IsActive, IsStaff: u.IsStaff, IsSuperuser: u.IsSuperuser})
	u.IsActive = flags.IsActive
	u.IsStaff = flags.IsStaff
	u.IsSuperuser = flags.IsSuperuser
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *Role
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
