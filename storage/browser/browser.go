// Package browser implements the snapshot browser (C6): timeline
// grouping, in-snapshot directory listing, diffing, file history, and
// substring search across snapshots.
package browser

import (
	"sort"
	"strings"
	"time"

	domainsnapshot "github.com/r3e-network/warehouse-core/domain/snapshot"
)

// SnapshotProvider is the subset of storage/snapshot.Store the browser
// needs: enumerate registered ids and fetch each one's record.
type SnapshotProvider interface {
	Get(id string) (*domainsnapshot.Snapshot, error)
	List() []string
}

// Browser is the snapshot browser.
type Browser struct {
	provider SnapshotProvider
}

// New constructs a Browser over provider.
func New(provider SnapshotProvider) *Browser {
	return &Browser{provider: provider}
}

func (b *Browser) all() []*domainsnapshot.Snapshot {
	ids := b.provider.List()
	snaps := make([]*domainsnapshot.Snapshot, 0, len(ids))
	for _, id := range ids {
		if s, err := b.provider.Get(id); err == nil {
			snaps = append(snaps, s)
		}
	}
	return snaps
}

// Timeline returns every snapshot ordered newest first.
func (b *Browser) Timeline() []*domainsnapshot.Snapshot {
	snaps := b.all()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Timestamp.After(snaps[j].Timestamp) })
	return snaps
}

// TimelineByDate groups the timeline by the UTC date of each snapshot.
func (b *Browser) TimelineByDate() map[string][]*domainsnapshot.Snapshot {
	grouped := make(map[string][]*domainsnapshot.Snapshot)
	for _, s := range b.Timeline() {
		date := s.Timestamp.UTC().Format("2006-01-02")
		grouped[date] = append(grouped[date], s)
	}
	return grouped
}

// ListDirectory implements the normative directory-listing algorithm:
// given a snapshot and a slash-separated path (leading/trailing slashes
// stripped), partitions its manifests' relative paths into the files and
// subdirectories that sit directly under path.
func ListDirectory(snap *domainsnapshot.Snapshot, dirPath string) (files []string, subdirs []string) {
	dirPath = strings.Trim(dirPath, "/")
	seenDirs := make(map[string]bool)

	for _, m := range snap.Manifests {
		p := strings.TrimPrefix(m.RelativePath, "/")

		var remainder string
		switch {
		case dirPath == "":
			remainder = p
		case strings.HasPrefix(p, dirPath+"/"):
			remainder = strings.TrimPrefix(p, dirPath+"/")
		default:
			continue
		}
		if remainder == "" {
			continue
		}

		if idx := strings.IndexByte(remainder, '/'); idx == -1 {
			files = append(files, remainder)
		} else {
			name := remainder[:idx]
			if !seenDirs[name] {
				seenDirs[name] = true
				subdirs = append(subdirs, name)
			}
		}
	}

	sort.Strings(files)
	sort.Strings(subdirs)
	return files, subdirs
}

// DiffResult is the outcome of comparing two snapshots' manifest sets.
type DiffResult struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Diff computes added/removed/modified relative paths between a and b:
// added are paths only in b, removed only in a, modified are paths in
// both with a different content hash.
func Diff(a, b *domainsnapshot.Snapshot) DiffResult {
	aHashes := manifestHashes(a)
	bHashes := manifestHashes(b)

	var result DiffResult
	for p, hash := range bHashes {
		aHash, ok := aHashes[p]
		if !ok {
			result.Added = append(result.Added, p)
		} else if aHash != hash {
			result.Modified = append(result.Modified, p)
		}
	}
	for p := range aHashes {
		if _, ok := bHashes[p]; !ok {
			result.Removed = append(result.Removed, p)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Modified)
	return result
}

func manifestHashes(s *domainsnapshot.Snapshot) map[string]string {
	m := make(map[string]string, len(s.Manifests))
	for _, rec := range s.Manifests {
		m[rec.RelativePath] = rec.ContentHash
	}
	return m
}

// HistoryRecord is one snapshot's capture of a tracked path.
type HistoryRecord struct {
	SnapshotID  string
	Timestamp   time.Time
	ContentHash string
}

// FileHistory iterates snapshots newest-first and emits one record per
// snapshot that contains a manifest whose relative path equals targetPath
// case-insensitively — deliberately more lenient than restore's
// case-sensitive path matching (see storage/restore), since browsing is
// read-only and case confusion here costs nothing.
func (b *Browser) FileHistory(targetPath string, from, to time.Time) []HistoryRecord {
	target := strings.ToLower(targetPath)
	var records []HistoryRecord
	for _, s := range b.Timeline() {
		if !from.IsZero() && s.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && s.Timestamp.After(to) {
			continue
		}
		for _, rec := range s.Manifests {
			if strings.ToLower(rec.RelativePath) == target {
				records = append(records, HistoryRecord{SnapshotID: s.ID, Timestamp: s.Timestamp, ContentHash: rec.ContentHash})
				break
			}
		}
	}
	return records
}

// SearchResult is one substring match against a snapshot's manifests.
type SearchResult struct {
	SnapshotID   string
	RelativePath string
}

// Search performs a case-sensitive substring match on relative path
// across every snapshot's manifests.
func (b *Browser) Search(substring string) []SearchResult {
	var results []SearchResult
	for _, s := range b.all() {
		for _, rec := range s.Manifests {
			if strings.Contains(rec.RelativePath, substring) {
				results = append(results, SearchResult{SnapshotID: s.ID, RelativePath: rec.RelativePath})
			}
		}
	}
	return results
}
