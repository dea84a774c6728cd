package browser

import (
	"testing"
	"time"

	domainsnapshot "github.com/r3e-network/warehouse-core/domain/snapshot"
)

type fakeProvider struct {
	snaps map[string]*domainsnapshot.Snapshot
}

func (f *fakeProvider) Get(id string) (*domainsnapshot.Snapshot, error) {
	s, ok := f.snaps[id]
	if !ok {
		return nil, errNotFound
	}
	return s, nil
}

func (f *fakeProvider) List() []string {
	ids := make([]string, 0, len(f.snaps))
	for id := range f.snaps {
		ids = append(ids, id)
	}
	return ids
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

var errNotFound = notFoundErr{}

func recs(paths ...string) []domainsnapshot.ManifestRecord {
	out := make([]domainsnapshot.ManifestRecord, len(paths))
	for i, p := range paths {
		out[i] = domainsnapshot.ManifestRecord{RelativePath: p, ContentHash: "h-" + p}
	}
	return out
}

func TestListDirectoryRootSeparatesFilesAndSubdirs(t *testing.T) {
	snap := &domainsnapshot.Snapshot{Manifests: recs("readme.txt", "src/main.go", "src/lib/util.go", "docs/guide.md")}

	files, dirs := ListDirectory(snap, "")
	if len(files) != 1 || files[0] != "readme.txt" {
		t.Fatalf("files = %v, want [readme.txt]", files)
	}
	if len(dirs) != 2 || dirs[0] != "docs" || dirs[1] != "src" {
		t.Fatalf("dirs = %v, want [docs src]", dirs)
	}
}

func TestListDirectoryNestedPath(t *testing.T) {
	snap := &domainsnapshot.Snapshot{Manifests: recs("src/main.go", "src/lib/util.go", "src/lib/helpers/extra.go")}

	files, dirs := ListDirectory(snap, "src")
	if len(files) != 1 || files[0] != "main.go" {
		t.Fatalf("files = %v, want [main.go]", files)
	}
	if len(dirs) != 1 || dirs[0] != "lib" {
		t.Fatalf("dirs = %v, want [lib]", dirs)
	}

	files, dirs = ListDirectory(snap, "/src/lib/")
	if len(files) != 1 || files[0] != "util.go" {
		t.Fatalf("files = %v, want [util.go]", files)
	}
	if len(dirs) != 1 || dirs[0] != "helpers" {
		t.Fatalf("dirs = %v, want [helpers]", dirs)
	}
}

func TestDiffComputesAddedRemovedModified(t *testing.T) {
	a := &domainsnapshot.Snapshot{Manifests: []domainsnapshot.ManifestRecord{
		{RelativePath: "keep.txt", ContentHash: "h1"},
		{RelativePath: "gone.txt", ContentHash: "h2"},
		{RelativePath: "changed.txt", ContentHash: "h3"},
	}}
	b := &domainsnapshot.Snapshot{Manifests: []domainsnapshot.ManifestRecord{
		{RelativePath: "keep.txt", ContentHash: "h1"},
		{RelativePath: "changed.txt", ContentHash: "h3-new"},
		{RelativePath: "new.txt", ContentHash: "h4"},
	}}

	diff := Diff(a, b)
	if len(diff.Added) != 1 || diff.Added[0] != "new.txt" {
		t.Fatalf("Added = %v, want [new.txt]", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0] != "gone.txt" {
		t.Fatalf("Removed = %v, want [gone.txt]", diff.Removed)
	}
	if len(diff.Modified) != 1 || diff.Modified[0] != "changed.txt" {
		t.Fatalf("Modified = %v, want [changed.txt]", diff.Modified)
	}
}

func TestFileHistoryMatchesCaseInsensitively(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{snaps: map[string]*domainsnapshot.Snapshot{
		"s1": {ID: "s1", Timestamp: now.Add(-time.Hour), Manifests: recs("Docs/Readme.TXT")},
		"s2": {ID: "s2", Timestamp: now, Manifests: recs("docs/readme.txt")},
	}}
	b := New(provider)

	history := b.FileHistory("DOCS/README.TXT", time.Time{}, time.Time{})
	if len(history) != 2 {
		t.Fatalf("history = %+v, want 2 records (case-insensitive match)", history)
	}
	if history[0].SnapshotID != "s2" {
		t.Fatalf("history[0] = %+v, want newest snapshot s2 first", history[0])
	}
}

func TestSearchIsCaseSensitiveSubstringMatch(t *testing.T) {
	provider := &fakeProvider{snaps: map[string]*domainsnapshot.Snapshot{
		"s1": {ID: "s1", Manifests: recs("src/Config.go", "src/config_test.go")},
	}}
	b := New(provider)

	results := b.Search("Config")
	if len(results) != 1 || results[0].RelativePath != "src/Config.go" {
		t.Fatalf("Search(Config) = %+v, want just src/Config.go (case-sensitive)", results)
	}
}

func TestTimelineOrdersNewestFirst(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{snaps: map[string]*domainsnapshot.Snapshot{
		"old": {ID: "old", Timestamp: now.Add(-time.Hour)},
		"new": {ID: "new", Timestamp: now},
	}}
	b := New(provider)

	timeline := b.Timeline()
	if len(timeline) != 2 || timeline[0].ID != "new" || timeline[1].ID != "old" {
		t.Fatalf("Timeline = %+v, want [new old]", timeline)
	}
}
