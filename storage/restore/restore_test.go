package restore

import (
	"context"
	"testing"

	domainsnapshot "github.com/r3e-network/warehouse-core/domain/snapshot"
	domainstorage "github.com/r3e-network/warehouse-core/domain/storage"
	"github.com/r3e-network/warehouse-core/storage/device"
)

type fakeIndex struct {
	puts []*domainstorage.Manifest
}

func (f *fakeIndex) Put(ctx context.Context, m *domainstorage.Manifest) error {
	f.puts = append(f.puts, m)
	return nil
}

type alwaysVerified struct{}

func (alwaysVerified) Verify(id string) (bool, error) { return true, nil }

type alwaysFailsVerify struct{}

func (alwaysFailsVerify) Verify(id string) (bool, error) { return false, nil }

func seedRoot(t *testing.T, root device.StorageDevice, snapshotID, relPath string, data []byte) {
	t.Helper()
	if err := root.Save(context.Background(), "snapshots/"+snapshotID+"/data/"+relPath, data); err != nil {
		t.Fatalf("seedRoot: %v", err)
	}
}

func TestRestoreCopiesAllCapturedFiles(t *testing.T) {
	ctx := context.Background()
	root := device.NewMemoryDevice()
	dest := device.NewMemoryDevice()
	idx := &fakeIndex{}
	e := New(root, idx, nil)

	seedRoot(t, root, "s1", "a.txt", []byte("A"))
	seedRoot(t, root, "s1", "b.txt", []byte("B"))
	snap := &domainsnapshot.Snapshot{
		ID: "s1", Granularity: domainsnapshot.Compartment,
		Manifests: []domainsnapshot.ManifestRecord{
			{ManifestID: "m1", RelativePath: "a.txt", ContentHash: "ha"},
			{ManifestID: "m2", RelativePath: "b.txt", ContentHash: "hb"},
		},
	}

	result, err := e.Restore(ctx, alwaysVerified{}, snap, dest, nil, nil, Options{UpdateIndex: true})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.Restored != 2 || result.Failed != 0 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want 2/0/0", result)
	}
	if len(idx.puts) != 2 {
		t.Fatalf("index puts = %d, want 2", len(idx.puts))
	}

	got, err := dest.Load(ctx, "a.txt")
	if err != nil || string(got) != "A" {
		t.Fatalf("dest a.txt = %q, %v", got, err)
	}
}

func TestRestoreFailsFastOnIntegrityMismatch(t *testing.T) {
	ctx := context.Background()
	root := device.NewMemoryDevice()
	dest := device.NewMemoryDevice()
	e := New(root, &fakeIndex{}, nil)

	snap := &domainsnapshot.Snapshot{ID: "s1", Granularity: domainsnapshot.Compartment}
	_, err := e.Restore(ctx, alwaysFailsVerify{}, snap, dest, nil, nil, Options{VerifyIntegrity: true})
	if err == nil {
		t.Fatal("Restore with failing integrity check succeeded, want error")
	}
}

func TestConflictSkipLeavesExistingFileUntouched(t *testing.T) {
	ctx := context.Background()
	root := device.NewMemoryDevice()
	dest := device.NewMemoryDevice()
	e := New(root, &fakeIndex{}, nil)

	seedRoot(t, root, "s1", "a.txt", []byte("NEW"))
	_ = dest.Save(ctx, "a.txt", []byte("OLD"))

	snap := &domainsnapshot.Snapshot{
		ID: "s1",
		Manifests: []domainsnapshot.ManifestRecord{
			{ManifestID: "m1", RelativePath: "a.txt", ContentHash: "h"},
		},
	}
	result, err := e.Restore(ctx, alwaysVerified{}, snap, dest, nil, nil, Options{ConflictResolution: Skip})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.Skipped != 1 || result.Restored != 0 {
		t.Fatalf("result = %+v, want skipped=1", result)
	}
	got, _ := dest.Load(ctx, "a.txt")
	if string(got) != "OLD" {
		t.Fatalf("dest a.txt = %q, want unchanged OLD", got)
	}
}

func TestConflictCreateVersionSuffixesFilename(t *testing.T) {
	ctx := context.Background()
	root := device.NewMemoryDevice()
	dest := device.NewMemoryDevice()
	e := New(root, &fakeIndex{}, nil)

	seedRoot(t, root, "s1", "a.txt", []byte("NEW"))
	_ = dest.Save(ctx, "a.txt", []byte("OLD"))

	snap := &domainsnapshot.Snapshot{
		ID: "s1",
		Manifests: []domainsnapshot.ManifestRecord{
			{ManifestID: "m1", RelativePath: "a.txt", ContentHash: "h"},
		},
	}
	result, err := e.Restore(ctx, alwaysVerified{}, snap, dest, nil, nil, Options{ConflictResolution: CreateVersion})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.Restored != 1 {
		t.Fatalf("result = %+v, want restored=1", result)
	}
	original, err := dest.Load(ctx, "a.txt")
	if err != nil || string(original) != "OLD" {
		t.Fatalf("original a.txt = %q, %v, want untouched OLD", original, err)
	}
}

func TestConflictRenamePicksSmallestUnusedSuffix(t *testing.T) {
	ctx := context.Background()
	root := device.NewMemoryDevice()
	dest := device.NewMemoryDevice()
	e := New(root, &fakeIndex{}, nil)

	seedRoot(t, root, "s1", "a.txt", []byte("NEW"))
	_ = dest.Save(ctx, "a.txt", []byte("OLD"))
	_ = dest.Save(ctx, "a (1).txt", []byte("TAKEN"))

	snap := &domainsnapshot.Snapshot{
		ID: "s1",
		Manifests: []domainsnapshot.ManifestRecord{
			{ManifestID: "m1", RelativePath: "a.txt", ContentHash: "h"},
		},
	}
	result, err := e.Restore(ctx, alwaysVerified{}, snap, dest, nil, nil, Options{ConflictResolution: Rename})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.Restored != 1 {
		t.Fatalf("result = %+v, want restored=1", result)
	}
	got, err := dest.Load(ctx, "a (2).txt")
	if err != nil || string(got) != "NEW" {
		t.Fatalf("a (2).txt = %q, %v, want NEW (n=1 was taken)", got, err)
	}
}

func TestSelectivePathsFiltersManifests(t *testing.T) {
	ctx := context.Background()
	root := device.NewMemoryDevice()
	dest := device.NewMemoryDevice()
	e := New(root, &fakeIndex{}, nil)

	seedRoot(t, root, "s1", "a.txt", []byte("A"))
	seedRoot(t, root, "s1", "b.txt", []byte("B"))
	snap := &domainsnapshot.Snapshot{
		ID: "s1",
		Manifests: []domainsnapshot.ManifestRecord{
			{ManifestID: "m1", RelativePath: "a.txt", ContentHash: "ha"},
			{ManifestID: "m2", RelativePath: "b.txt", ContentHash: "hb"},
		},
	}
	result, err := e.Restore(ctx, alwaysVerified{}, snap, dest, nil, nil, Options{SelectivePaths: []string{"a.txt"}})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.Restored != 1 {
		t.Fatalf("result = %+v, want restored=1 (only a.txt selected)", result)
	}
	if _, err := dest.Load(ctx, "b.txt"); err == nil {
		t.Fatal("b.txt was restored despite not being in selective_paths")
	}
}

func TestRequestIDRejectsRepeatedRestore(t *testing.T) {
	ctx := context.Background()
	root := device.NewMemoryDevice()
	idx := &fakeIndex{}
	e := New(root, idx, nil)

	seedRoot(t, root, "s1", "a.txt", []byte("A"))
	snap := &domainsnapshot.Snapshot{
		ID:        "s1",
		Manifests: []domainsnapshot.ManifestRecord{{ManifestID: "m1", RelativePath: "a.txt", ContentHash: "ha"}},
	}
	opts := Options{UpdateIndex: true, RequestID: "req-1"}

	if _, err := e.Restore(ctx, alwaysVerified{}, snap, device.NewMemoryDevice(), nil, nil, opts); err != nil {
		t.Fatalf("first Restore: %v", err)
	}
	if _, err := e.Restore(ctx, alwaysVerified{}, snap, device.NewMemoryDevice(), nil, nil, opts); err == nil {
		t.Fatal("second Restore with the same RequestID succeeded, want a duplicate-request error")
	}
}
