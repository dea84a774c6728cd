// Package restore implements the restore engine (C5): replays a
// snapshot's captured files back onto a destination device, applying a
// conflict-resolution policy per file and optionally re-registering
// restored content with the content index.
package restore

import (
	"context"
	"crypto/rand"
	"fmt"
	"path"
	"strings"
	"time"

	domainaccess "github.com/r3e-network/warehouse-core/domain/access"
	domainsnapshot "github.com/r3e-network/warehouse-core/domain/snapshot"
	domainstorage "github.com/r3e-network/warehouse-core/domain/storage"

	"github.com/r3e-network/warehouse-core/access/acl"
	"github.com/r3e-network/warehouse-core/access/auth"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/infrastructure/hex"
	"github.com/r3e-network/warehouse-core/infrastructure/logging"
	"github.com/r3e-network/warehouse-core/infrastructure/security"
	"github.com/r3e-network/warehouse-core/storage/device"
)

// replayWindow bounds how long a restore RequestID is remembered: long
// enough to catch a caller's retried request after a dropped response,
// short enough that replaying the same id on a deliberate, later re-restore
// is never permanently blocked.
const replayWindow = 5 * time.Minute

// ConflictResolution selects what happens when a restored file's
// destination path already exists.
type ConflictResolution int

const (
	Skip ConflictResolution = iota
	Overwrite
	CreateVersion
	Rename
	Fail
)

// IndexPutter is the subset of storage/index.Index restore needs to
// re-register restored content.
type IndexPutter interface {
	Put(ctx context.Context, m *domainstorage.Manifest) error
}

// SnapshotSource is the subset of storage/snapshot.Store restore needs:
// integrity verification only. A snapshot's captured bytes are read from
// the engine's snapshotRoot device, not through this interface.
type SnapshotSource interface {
	Verify(id string) (bool, error)
}

// Options configures one restore operation.
type Options struct {
	TargetPath         string
	ConflictResolution ConflictResolution
	VerifyIntegrity    bool
	RestoreTimestamps  bool
	UpdateIndex        bool
	SelectivePaths     []string // if non-empty, restore only these relative paths
	ContainerID        string   // ACL scope for re-registered manifests and the permission check

	// RequestID, when set, makes this restore idempotent against retries:
	// a second call with the same RequestID within replayWindow is
	// rejected rather than replaying a (potentially expensive,
	// destructive-to-the-destination) restore a second time.
	RequestID string
}

// Result reports per-file outcome counts. A non-zero Failed or Skipped
// count is not itself an error: restore always returns partial success.
type Result struct {
	Restored int
	Skipped  int
	Failed   int
}

// Engine is the restore engine.
type Engine struct {
	snapshotRoot device.StorageDevice // same root storage/snapshot.Store writes captured bytes under
	index        IndexPutter
	logger       *logging.Logger
	replay       *security.ReplayProtection
}

// New constructs a restore Engine.
func New(snapshotRoot device.StorageDevice, index IndexPutter, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewFromEnv("restore")
	}
	return &Engine{
		snapshotRoot: snapshotRoot,
		index:        index,
		logger:       logger,
		replay:       security.NewReplayProtection(replayWindow, logger),
	}
}

// requiredPermission returns the per-granularity permission spec
// requires: SingleFile/Compartment need Read, Partition/StorageLayer need
// Write, and the pool-scoped granularities need FullControl.
func requiredPermission(g domainsnapshot.Granularity) domainstorage.Permission {
	switch g {
	case domainsnapshot.SingleFile, domainsnapshot.Compartment:
		return domainstorage.PermissionRead
	case domainsnapshot.Partition, domainsnapshot.StorageLayer:
		return domainstorage.PermissionWrite
	default:
		return domainstorage.PermissionFullControl
	}
}

func snapshotDataURI(snapshotID, relativePath string) string {
	return fmt.Sprintf("snapshots/%s/data/%s", snapshotID, relativePath)
}

func selected(relativePath string, paths []string) bool {
	if len(paths) == 0 {
		return true
	}
	for _, p := range paths {
		if p == relativePath {
			return true
		}
	}
	return false
}

// Restore replays snap's captured files onto destination, enforcing the
// per-granularity permission when session is non-nil.
func (e *Engine) Restore(ctx context.Context, snapStore SnapshotSource, snap *domainsnapshot.Snapshot, destination device.StorageDevice, session *domainaccess.Session, aclEngine *acl.Engine, opts Options) (*Result, error) {
	if opts.RequestID != "" && !e.replay.ValidateAndMark(opts.RequestID) {
		return nil, errors.Conflict("duplicate restore request " + opts.RequestID)
	}

	if opts.VerifyIntegrity {
		ok, err := snapStore.Verify(snap.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Internal("snapshot integrity check failed for "+snap.ID, nil)
		}
	}

	if session != nil {
		if err := auth.Authorize(ctx, session, opts.ContainerID, requiredPermission(snap.Granularity), aclEngine); err != nil {
			return nil, err
		}
	}

	result := &Result{}
	for _, m := range snap.Manifests {
		select {
		case <-ctx.Done():
			return result, errors.Cancelled("restore")
		default:
		}
		if !selected(m.RelativePath, opts.SelectivePaths) {
			continue
		}
		e.restoreOne(ctx, m, snap.ID, destination, opts, result)
	}
	return result, nil
}

func (e *Engine) restoreOne(ctx context.Context, m domainsnapshot.ManifestRecord, snapshotID string, destination device.StorageDevice, opts Options, result *Result) {
	destPath := m.RelativePath
	if opts.TargetPath != "" {
		destPath = path.Join(opts.TargetPath, m.RelativePath)
	}

	exists, err := destination.Exists(ctx, destPath)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("path", destPath).Warn("restore: destination existence check failed, skipping")
		result.Failed++
		return
	}

	if exists {
		switch opts.ConflictResolution {
		case Skip:
			result.Skipped++
			return
		case Fail:
			result.Failed++
			return
		case CreateVersion:
			destPath = versionedPath(destPath, time.Now())
		case Rename:
			destPath, err = smallestUnusedRename(ctx, destination, destPath)
			if err != nil {
				e.logger.WithContext(ctx).WithError(err).WithField("path", destPath).Warn("restore: rename resolution failed, skipping")
				result.Failed++
				return
			}
		case Overwrite:
			// proceed with destPath unchanged
		}
	}

	data, err := e.snapshotRoot.Load(ctx, snapshotDataURI(snapshotID, m.RelativePath))
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("path", m.RelativePath).Warn("restore: read of captured bytes failed, skipping")
		result.Failed++
		return
	}
	if err := destination.Save(ctx, destPath, data); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("path", destPath).Warn("restore: write failed, skipping")
		result.Failed++
		return
	}

	if opts.UpdateIndex {
		newManifest := &domainstorage.Manifest{
			ID:           newManifestID(),
			ContainerID:  opts.ContainerID,
			RelativePath: destPath,
			ContentHash:  m.ContentHash,
			Size:         m.Size,
			CreatedAt:    time.Now(),
			ModifiedAt:   time.Now(),
		}
		if opts.RestoreTimestamps {
			newManifest.CreatedAt = m.CapturedAt
			newManifest.ModifiedAt = m.CapturedAt
		}
		if err := e.index.Put(ctx, newManifest); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("path", destPath).Warn("restore: index re-registration failed")
		}
	}

	result.Restored++
}

// versionedPath inserts _v<UTC YYYYMMDDHHMMSS> before the file extension.
func versionedPath(p string, at time.Time) string {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	return fmt.Sprintf("%s_v%s%s", base, at.UTC().Format("20060102150405"), ext)
}

// smallestUnusedRename appends " (n)" before the extension, trying
// n = 1, 2, 3, ... until a path that doesn't already exist is found.
func smallestUnusedRename(ctx context.Context, destination device.StorageDevice, p string) (string, error) {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		exists, err := destination.Exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

func newManifestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
