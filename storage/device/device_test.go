package device

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

func TestMemoryDeviceSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDevice()

	if err := d.Save(ctx, "a/b", []byte("hello")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := d.Load(ctx, "a/b")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Load = %q, want %q", got, "hello")
	}

	if ok, err := d.Exists(ctx, "a/b"); err != nil || !ok {
		t.Fatalf("Exists = %v, %v, want true, nil", ok, err)
	}
	if err := d.Delete(ctx, "a/b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := d.Exists(ctx, "a/b"); ok {
		t.Fatal("Exists after Delete = true, want false")
	}
}

func TestMemoryDeviceLoadClonesStoredBytes(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDevice()
	original := []byte("hello")
	if err := d.Save(ctx, "k", original); err != nil {
		t.Fatalf("Save: %v", err)
	}
	original[0] = 'X'

	got, err := d.Load(ctx, "k")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Load returned mutated bytes: %q, want %q", got, "hello")
	}

	got[0] = 'Y'
	second, _ := d.Load(ctx, "k")
	if string(second) != "hello" {
		t.Fatalf("mutating a returned Load buffer affected stored data: %q", second)
	}
}

func TestMemoryDeviceLoadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDevice()
	_, err := d.Load(ctx, "missing")
	if err == nil {
		t.Fatal("Load of missing key succeeded, want error")
	}
	if !errors.Is(err, errors.KindNotFound) {
		t.Fatalf("Load of missing key = %v, want NotFound", err)
	}
}

func TestFileDeviceSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	d, err := NewFileDevice(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileDevice: %v", err)
	}

	if err := d.Save(ctx, "dir/file.bin", []byte("payload")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := d.Load(ctx, "dir/file.bin")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("Load = %q, want %q", got, "payload")
	}
	if err := d.Delete(ctx, "dir/file.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := d.Exists(ctx, "dir/file.bin"); ok {
		t.Fatal("Exists after Delete = true, want false")
	}
}

func TestFileDeviceConfinesPathEscapeToRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	d, err := NewFileDevice(root)
	if err != nil {
		t.Fatalf("NewFileDevice: %v", err)
	}

	if err := d.Save(ctx, "../../etc/passwd", []byte("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	resolved, err := d.resolve("../../etc/passwd")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		t.Fatalf("resolved path %q escaped root %q", resolved, root)
	}
}

func TestPoolDeviceOutOfRange(t *testing.T) {
	pool, err := NewPool([]StorageDevice{NewMemoryDevice()}, []Descriptor{{ID: "a", Scheme: "mem"}})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if _, err := pool.Device(5); err == nil {
		t.Fatal("Device(5) succeeded, want error")
	}
}

func TestValidateBackupTargetRejectsVolatileAndSameScheme(t *testing.T) {
	if err := ValidateBackupTarget("mem", Descriptor{Scheme: "mem", Volatile: true}); err == nil {
		t.Fatal("volatile target accepted, want error")
	}
	if err := ValidateBackupTarget("mem", Descriptor{Scheme: "mem"}); err == nil {
		t.Fatal("same-scheme target accepted, want error")
	}
	if err := ValidateBackupTarget("mem", Descriptor{Scheme: "file"}); err != nil {
		t.Fatalf("valid target rejected: %v", err)
	}
}
