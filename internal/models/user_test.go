package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveFlagsRegistrar(t *testing.T) {
	starts := []Flags{
		{},
		{IsActive: true},
		{IsActive: false, IsStaff: true, IsSuperuser: false},
		{IsActive: true, IsStaff: true, IsSuperuser: true},
	}
	for _, current := range starts {
		flags := DeriveFlags(RoleRegistrar, current)
		assert.True(t, flags.IsActive)
		assert.True(t, flags.IsStaff)
		assert.True(t, flags.IsSuperuser)
	}
}

func TestDeriveFlagsNonRegistrar(t *testing.T) {
	for _, role := range []Role{RoleStudent, RoleTeacher} {
		flags := DeriveFlags(role, Flags{IsActive: true, IsStaff: true, IsSuperuser: true})
		assert.True(t, flags.IsActive, "active carries over")
		assert.False(t, flags.IsStaff, "staff is always dropped for %s", role)
		assert.True(t, flags.IsSuperuser, "superuser carries over")

		flags = DeriveFlags(role, Flags{})
		assert.False(t, flags.IsActive)
		assert.False(t, flags.IsStaff)
		assert.False(t, flags.IsSuperuser)
	}
}

func TestApplyRoleFlagsAfterRoleChange(t *testing.T) {
	u := &User{Role: RoleRegistrar}
	u.ApplyRoleFlags()
	assert.True(t, u.IsStaff)
	assert.True(t, u.IsSuperuser)

	// Demotion drops staff but keeps the remaining flags.
	u.Role = RoleTeacher
	u.ApplyRoleFlags()
	assert.True(t, u.IsActive)
	assert.False(t, u.IsStaff)
	assert.True(t, u.IsSuperuser)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleStudent.Valid())
	assert.True(t, RoleTeacher.Valid())
	assert.True(t, RoleRegistrar.Valid())
	assert.False(t, Role("admin").Valid())
	assert.False(t, Role("").Valid())
}
