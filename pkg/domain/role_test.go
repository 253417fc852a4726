package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"user", "admin", "superAdmin"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, s, r.String())
	}

	_, err := ParseRole("root")
	assert.Error(t, err)

	// Case matters: the backend bearer scheme is case-sensitive.
	_, err = ParseRole("superadmin")
	assert.Error(t, err)
}

func TestRoleSatisfies(t *testing.T) {
	assert.True(t, RoleUser.Satisfies(RoleUser))
	assert.False(t, RoleUser.Satisfies(RoleAdmin))

	assert.True(t, RoleAdmin.Satisfies(RoleUser))
	assert.True(t, RoleAdmin.Satisfies(RoleAdmin))
	assert.False(t, RoleAdmin.Satisfies(RoleSuperAdmin))

	assert.True(t, RoleSuperAdmin.Satisfies(RoleUser))
	assert.True(t, RoleSuperAdmin.Satisfies(RoleAdmin))
	assert.True(t, RoleSuperAdmin.Satisfies(RoleSuperAdmin))

	assert.False(t, Role("root").Satisfies(RoleUser))
	assert.False(t, RoleUser.Satisfies(Role("root")))
}

func TestIsAdmin(t *testing.T) {
	assert.False(t, RoleUser.IsAdmin())
	assert.True(t, RoleAdmin.IsAdmin())
	assert.True(t, RoleSuperAdmin.IsAdmin())
}
