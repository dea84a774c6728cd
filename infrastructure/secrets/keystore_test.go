package secrets

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/storage/device"
)

func testMasterKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
}

func TestNewRejectsMalformedMasterKey(t *testing.T) {
	root := device.NewMemoryDevice()
	if _, err := New(root, ""); err == nil {
		t.Fatal("expected error for empty master key")
	}
	if _, err := New(root, "not-base64!!"); err == nil {
		t.Fatal("expected error for non-base64 master key")
	}
	if _, err := New(root, base64.StdEncoding.EncodeToString([]byte("too-short"))); err == nil {
		t.Fatal("expected error for a key that isn't 32 bytes")
	}
}

func TestSecretReturnsFalseWhenKeystoreFileAbsent(t *testing.T) {
	root := device.NewMemoryDevice()
	ks, err := New(root, testMasterKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := ks.Secret("anything"); ok {
		t.Fatal("expected ok=false when no keystore file exists yet")
	}
}

func TestPutThenSecretRoundTrips(t *testing.T) {
	root := device.NewMemoryDevice()
	ks, err := New(root, testMasterKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := ks.Put(context.Background(), "db-key", []byte("super-secret")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	value, ok := ks.Secret("db-key")
	if !ok {
		t.Fatal("expected Secret to find the stored value")
	}
	if string(value) != "super-secret" {
		t.Fatalf("value = %q, want %q", value, "super-secret")
	}
}

func TestPersistedKeystoreSurvivesAFreshKeystoreInstance(t *testing.T) {
	root := device.NewMemoryDevice()
	key := testMasterKey()

	ks1, err := New(root, key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ks1.Put(context.Background(), "api-key", []byte("abc123")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ks2, err := New(root, key)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	value, ok := ks2.Secret("api-key")
	if !ok || string(value) != "abc123" {
		t.Fatalf("Secret after reload = (%q, %v), want (abc123, true)", value, ok)
	}
}

func TestWrongMasterKeyFailsToDecrypt(t *testing.T) {
	root := device.NewMemoryDevice()
	ks1, err := New(root, testMasterKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ks1.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	otherKey := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x99}, 32))
	ks2, err := New(root, otherKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := ks2.Secret("k"); ok {
		t.Fatal("expected decryption under the wrong master key to fail closed")
	}
}

func TestDeleteRemovesSecret(t *testing.T) {
	root := device.NewMemoryDevice()
	ks, err := New(root, testMasterKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ks.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := ks.Delete(context.Background(), "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := ks.Secret("k"); ok {
		t.Fatal("expected secret to be gone after Delete")
	}
}

func TestDeleteUnknownIDReturnsNotFound(t *testing.T) {
	root := device.NewMemoryDevice()
	ks, err := New(root, testMasterKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ks.Delete(context.Background(), "missing"); !errors.Is(err, errors.KindNotFound) {
		t.Fatalf("Delete unknown id = %v, want NotFound", err)
	}
}

func TestListReturnsAllStoredIDs(t *testing.T) {
	root := device.NewMemoryDevice()
	ks, err := New(root, testMasterKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = ks.Put(context.Background(), "a", []byte("1"))
	_ = ks.Put(context.Background(), "b", []byte("2"))

	ids, err := ks.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("List = %v, want 2 ids", ids)
	}
}
