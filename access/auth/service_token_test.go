package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	domainaccess "github.com/r3e-network/warehouse-core/domain/access"
)

// TestBearerTokenRoundTripsToTheSameSession spans issuance, JWT parsing,
// and session-store resolution, so it uses testify the way the few
// integration-flavored tests elsewhere in this codebase do.
func TestBearerTokenRoundTripsToTheSameSession(t *testing.T) {
	ctx := context.Background()
	secret := []byte("shared-secret-between-services")

	a := New()
	require.NoError(t, a.CreateUser("u1", "alice", "correct-horse", domainaccess.RolePowerUser, []string{"ingest"}))
	session, err := a.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	token, err := IssueBearerToken(secret, session)
	require.NoError(t, err)

	got, err := a.ValidateBearerToken(ctx, secret, token)
	require.NoError(t, err)
	require.Equal(t, session.ID, got.ID)
	require.Equal(t, domainaccess.RolePowerUser, got.RoleID)
}

func TestBearerTokenRejectsWrongSecret(t *testing.T) {
	ctx := context.Background()
	a := New()
	require.NoError(t, a.CreateUser("u1", "alice", "correct-horse", domainaccess.RoleUser, nil))
	session, err := a.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	token, err := IssueBearerToken([]byte("secret-a"), session)
	require.NoError(t, err)

	_, err = a.ValidateBearerToken(ctx, []byte("secret-b"), token)
	require.Error(t, err, "ValidateBearerToken accepted a token signed with a different secret")
}

func TestBearerTokenRevokedWhenSessionIsLoggedOut(t *testing.T) {
	ctx := context.Background()
	secret := []byte("shared-secret")
	a := New()
	require.NoError(t, a.CreateUser("u1", "alice", "correct-horse", domainaccess.RoleUser, nil))
	session, err := a.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	token, err := IssueBearerToken(secret, session)
	require.NoError(t, err)

	a.Logout(session.ID)

	_, err = a.ValidateBearerToken(ctx, secret, token)
	require.Error(t, err, "ValidateBearerToken accepted a token whose backing session was logged out")
}

func TestIssueBearerTokenRejectsEmptySecret(t *testing.T) {
	session := &domainaccess.Session{ID: "s1", UserID: "u1"}
	_, err := IssueBearerToken(nil, session)
	require.Error(t, err, "IssueBearerToken accepted an empty secret")
}
