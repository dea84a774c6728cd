package auth

import (
	"context"
	"testing"

	"github.com/r3e-network/warehouse-core/access/acl"
	domainaccess "github.com/r3e-network/warehouse-core/domain/access"
	domainstorage "github.com/r3e-network/warehouse-core/domain/storage"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

func TestAuthenticateSucceedsAndIssuesSession(t *testing.T) {
	ctx := context.Background()
	a := New()
	if err := a.CreateUser("u1", "alice", "correct-horse", domainaccess.RoleUser, nil); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	session, err := a.Authenticate(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if session.Username != "alice" || session.UserID != "u1" {
		t.Fatalf("session = %+v, want alice/u1", session)
	}

	got, err := a.ValidateSession(ctx, session.ID)
	if err != nil || got.ID != session.ID {
		t.Fatalf("ValidateSession = %v, %v", got, err)
	}
}

func TestAuthenticateLocksAfterFiveFailures(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.CreateUser("u1", "alice", "correct-horse", domainaccess.RoleUser, nil)

	for i := 0; i < maxFailedLogins; i++ {
		if _, err := a.Authenticate(ctx, "alice", "wrong"); err == nil {
			t.Fatal("Authenticate with wrong password succeeded")
		}
	}
	if _, err := a.Authenticate(ctx, "alice", "correct-horse"); err == nil {
		t.Fatal("Authenticate after lockout succeeded, want locked account error")
	}
}

func TestAuthenticateThrottlesAfterBurstExceeded(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.CreateUser("u1", "alice", "correct-horse", domainaccess.RoleUser, nil)

	// Exhaust the per-username login burst with wrong-password attempts
	// under a different account state: use Unlock between failures so
	// maxFailedLogins lockout never triggers first, isolating the
	// rate-limit path.
	var lastErr error
	for i := 0; i < int(loginAttemptsPerMinute)+1; i++ {
		_, lastErr = a.Authenticate(ctx, "alice", "wrong")
		if i < maxFailedLogins-1 {
			continue
		}
		_ = a.Unlock("alice")
	}
	if lastErr == nil || !errors.Is(lastErr, errors.KindThrottled) {
		t.Fatalf("Authenticate after exceeding burst = %v, want a Throttled error", lastErr)
	}
}

func TestAuthenticateRateLimitIsPerUsername(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.CreateUser("u1", "alice", "correct-horse", domainaccess.RoleUser, nil)
	_ = a.CreateUser("u2", "bob", "correct-horse", domainaccess.RoleUser, nil)

	for i := 0; i < int(loginAttemptsPerMinute)+1; i++ {
		_, _ = a.Authenticate(ctx, "alice", "wrong")
	}

	if _, err := a.Authenticate(ctx, "bob", "correct-horse"); err != nil {
		t.Fatalf("Authenticate for a distinct username was throttled by alice's attempts: %v", err)
	}
}

func TestValidateSessionRejectsUnknownToken(t *testing.T) {
	a := New()
	if _, err := a.ValidateSession(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("ValidateSession for unknown token succeeded, want error")
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := New()
	key, err := a.CreateAPIKey("owner1", domainaccess.RolePowerUser, nil)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	session, err := a.AuthenticateAPIKey(ctx, key.Secret)
	if err != nil {
		t.Fatalf("AuthenticateAPIKey: %v", err)
	}
	if session.Username != domainaccess.APIKeySessionUsername(key.ID) {
		t.Fatalf("Username = %q, want api:%s", session.Username, key.ID)
	}

	if err := a.RevokeAPIKey(key.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := a.AuthenticateAPIKey(ctx, key.Secret); err == nil {
		t.Fatal("AuthenticateAPIKey after revoke succeeded, want error")
	}
}

func TestAuthorizeDeniesRoleTierBeforeConsultingACL(t *testing.T) {
	session := &domainaccess.Session{UserID: "u1", RoleID: domainaccess.RoleReadOnly}
	e := acl.New()
	e.Put(&domainstorage.Container{ID: "c1", ACL: map[string]domainstorage.Permission{"u1": domainstorage.PermissionFullControl}})

	err := Authorize(context.Background(), session, "c1", domainstorage.PermissionWrite, e)
	if err == nil {
		t.Fatal("Authorize allowed Write for ReadOnly tier despite a permissive ACL entry")
	}
}

func TestAuthorizeConsultsACLWhenTierAllows(t *testing.T) {
	session := &domainaccess.Session{UserID: "u1", RoleID: domainaccess.RoleUser}
	e := acl.New()
	e.Put(&domainstorage.Container{ID: "c1", ACL: map[string]domainstorage.Permission{}})

	err := Authorize(context.Background(), session, "c1", domainstorage.PermissionWrite, e)
	if err == nil {
		t.Fatal("Authorize allowed Write with no ACL grant at all")
	}

	e.Put(&domainstorage.Container{ID: "c1", ACL: map[string]domainstorage.Permission{"u1": domainstorage.PermissionWrite}})
	if err := Authorize(context.Background(), session, "c1", domainstorage.PermissionWrite, e); err != nil {
		t.Fatalf("Authorize = %v, want nil once ACL grants Write", err)
	}
}

func TestAuthorizeWithoutACLEngineOnlyChecksRoleTier(t *testing.T) {
	session := &domainaccess.Session{UserID: "u1", RoleID: domainaccess.RolePowerUser}
	if err := Authorize(context.Background(), session, "", domainstorage.PermissionDelete, nil); err != nil {
		t.Fatalf("Authorize = %v, want nil (no ACL engine supplied)", err)
	}
}
