package users_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/users"
)

func TestValidatePasswordStrength(t *testing.T) {
	require.NoError(t, users.ValidatePasswordStrength("Passw0rd"))

	cases := map[string]string{
		"too short":    "Pw1",
		"no uppercase": "password1",
		"no lowercase": "PASSWORD1",
		"no number":    "Password!",
	}
	for name, password := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, users.ValidatePasswordStrength(password))
		})
	}
}

func TestRoleTypeIsValid(t *testing.T) {
	for _, role := range []users.RoleType{users.RoleAnalyst, users.RoleSeniorAnalyst, users.RoleManager, users.RoleAdmin} {
		require.True(t, role.IsValid())
	}
	require.False(t, users.RoleType("intern").IsValid())
}
