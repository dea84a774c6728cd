package acl

import (
	"context"
	"testing"

	domainstorage "github.com/r3e-network/warehouse-core/domain/storage"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

func TestSystemAdminBypasses(t *testing.T) {
	e := New()
	e.Put(&domainstorage.Container{ID: "secret", ACL: map[string]domainstorage.Permission{}})

	err := e.Authorize(context.Background(), Caller{UserID: "u1", SystemAdmin: true}, "secret", domainstorage.PermissionFullControl)
	if err != nil {
		t.Fatalf("Authorize for SystemAdmin = %v, want nil", err)
	}
}

func TestMissingContainerIsNotFoundNotDenied(t *testing.T) {
	e := New()
	err := e.Authorize(context.Background(), Caller{UserID: "u1"}, "does-not-exist", domainstorage.PermissionRead)
	if err == nil {
		t.Fatal("Authorize on missing container succeeded, want error")
	}
	if !errors.Is(err, errors.KindNotFound) {
		t.Fatalf("Authorize on missing container = %v, want NotFound", err)
	}
}

func TestExplicitUserBanDeniesRegardlessOfRole(t *testing.T) {
	e := New()
	e.Put(&domainstorage.Container{
		ID: "c1",
		ACL: map[string]domainstorage.Permission{
			"u1":            domainstorage.PermissionNone,
			"Role:admin":    domainstorage.PermissionFullControl,
			"Role:Everyone": domainstorage.PermissionRead,
		},
	})

	err := e.Authorize(context.Background(), Caller{UserID: "u1", Roles: []string{"admin"}}, "c1", domainstorage.PermissionRead)
	if err == nil {
		t.Fatal("Authorize for explicitly-banned user succeeded, want deny")
	}
}

func TestUserEntryOverridesInsufficientRole(t *testing.T) {
	e := New()
	e.Put(&domainstorage.Container{
		ID: "c1",
		ACL: map[string]domainstorage.Permission{
			"u1": domainstorage.PermissionFullControl,
		},
	})
	err := e.Authorize(context.Background(), Caller{UserID: "u1"}, "c1", domainstorage.PermissionFullControl)
	if err != nil {
		t.Fatalf("Authorize = %v, want nil", err)
	}
}

func TestRoleUnionTakesMaxAcrossRoles(t *testing.T) {
	e := New()
	e.Put(&domainstorage.Container{
		ID: "c1",
		ACL: map[string]domainstorage.Permission{
			"Role:viewer": domainstorage.PermissionRead,
			"Role:editor": domainstorage.PermissionWrite,
		},
	})
	caller := Caller{UserID: "u2", Roles: []string{"viewer", "editor"}}
	if err := e.Authorize(context.Background(), caller, "c1", domainstorage.PermissionWrite); err != nil {
		t.Fatalf("Authorize = %v, want nil (role union should reach Write)", err)
	}
	if err := e.Authorize(context.Background(), caller, "c1", domainstorage.PermissionDelete); err == nil {
		t.Fatal("Authorize for Delete succeeded, want deny (role union tops out at Write)")
	}
}

func TestRoleEveryoneFallsBackWhenNoOtherEntryGrantsEnough(t *testing.T) {
	e := New()
	e.Put(&domainstorage.Container{
		ID:  "c1",
		ACL: map[string]domainstorage.Permission{domainstorage.RoleEveryoneSubject: domainstorage.PermissionRead},
	})
	err := e.Authorize(context.Background(), Caller{UserID: "anyone"}, "c1", domainstorage.PermissionRead)
	if err != nil {
		t.Fatalf("Authorize = %v, want nil via Role:Everyone", err)
	}
}

func TestBootstrapPublicContainerGrantsEveryoneRead(t *testing.T) {
	e := New()
	err := e.Authorize(context.Background(), Caller{UserID: "anyone"}, domainstorage.PublicContainerID, domainstorage.PermissionRead)
	if err != nil {
		t.Fatalf("Authorize on public container = %v, want nil", err)
	}
	err = e.Authorize(context.Background(), Caller{UserID: "anyone"}, domainstorage.PublicContainerID, domainstorage.PermissionWrite)
	if err == nil {
		t.Fatal("Authorize for Write on public container succeeded, want deny")
	}
}
