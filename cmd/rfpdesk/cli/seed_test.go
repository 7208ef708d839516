package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/authz"
)

func TestDemoAccountsCoverEveryRole(t *testing.T) {
	seen := map[authz.Role]bool{}
	for _, acct := range DemoAccounts() {
		require.False(t, seen[acct.Role], "duplicate role %s", acct.Role)
		seen[acct.Role] = true
	}
	for _, role := range authz.AllRoles() {
		require.True(t, seen[role], "no demo account for %s", role)
	}
}

func TestDefaultSeedPasswordPassesPolicy(t *testing.T) {
	require.NoError(t, auth.CheckPasswordPolicy(DefaultSeedPassword))
	require.Equal(t, auth.StrengthStrong, auth.PasswordStrength(DefaultSeedPassword))
}
