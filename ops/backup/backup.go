// Package backup implements the backup scheduler (C12): Full, Incremental,
// and Differential backups over snapshots, a cron-scheduled backup job,
// retention sweeps, and external backup-target export.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	domainsnapshot "github.com/r3e-network/warehouse-core/domain/snapshot"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/infrastructure/logging"
	"github.com/r3e-network/warehouse-core/storage/device"
)

// Type is the backup kind.
type Type string

const (
	Full         Type = "Full"
	Incremental  Type = "Incremental"
	Differential Type = "Differential"
)

// Status is the lifecycle state of one backup run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultBackupInterval is the scheduler loop's default tick period.
const DefaultBackupInterval = 1 * time.Hour

// DefaultRetentionDays is the default retention window.
const DefaultRetentionDays = 30

// SnapshotSource is the subset of the snapshot store a backup run needs:
// point lookup by id.
type SnapshotSource interface {
	Get(id string) (*domainsnapshot.Snapshot, error)
}

// Record is one completed (or failed) backup run's metadata, persisted as
// the backup directory's metadata.json side-file.
type Record struct {
	ID           string                         `json:"id"`
	Type         Type                           `json:"type"`
	SnapshotID   string                         `json:"snapshot_id"`
	BaseBackupID string                         `json:"base_backup_id,omitempty"`
	CreatedAt    time.Time                      `json:"created_at"`
	Status       Status                         `json:"status"`
	Files        []domainsnapshot.ManifestRecord `json:"files"`        // full effective state after this backup
	CopiedFiles  []domainsnapshot.ManifestRecord `json:"copied_files"` // files physically written by this run
}

func backupDirURI(id string) string {
	return fmt.Sprintf("backups/%s", id)
}

func backupDataURI(id, relativePath string) string {
	return fmt.Sprintf("backups/%s/%s", id, relativePath)
}

func backupMetadataURI(id string) string {
	return fmt.Sprintf("backups/%s/metadata.json", id)
}

// Engine is the backup scheduler.
type Engine struct {
	root      device.StorageDevice
	snapshots SnapshotSource
	logger    *logging.Logger

	retentionDays  int
	backupInterval time.Duration

	mu      sync.RWMutex
	records map[string]*Record

	// nextID is injected so tests get deterministic ids; the default is
	// defaultNextID, a UTC timestamp with one-second resolution.
	nextID func() string

	// sourceSnapshot is polled by the scheduler loop to decide which
	// snapshot backs the next scheduled run. It stays nil, and scheduled
	// runs do nothing, until SetSourceSnapshot (or the warehouse facade's
	// SetBackupSource) supplies one.
	sourceSnapshot func() (string, bool)
}

// New constructs an Engine. retentionDays <= 0 uses DefaultRetentionDays.
func New(root device.StorageDevice, snapshots SnapshotSource, retentionDays int, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewFromEnv("backup")
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Engine{
		root:          root,
		snapshots:     snapshots,
		logger:        logger,
		retentionDays: retentionDays,
		records:       make(map[string]*Record),
		nextID:        defaultNextID,
	}
}

func defaultNextID() string {
	return time.Now().UTC().Format("2006-01-02_150405")
}

// SetNextID overrides the id generator (for deterministic tests).
func (e *Engine) SetNextID(f func() string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID = f
}

// SetSourceSnapshot overrides the scheduler loop's snapshot selector.
func (e *Engine) SetSourceSnapshot(f func() (string, bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sourceSnapshot = f
}

// Start schedules the backup loop on cron, creating an Incremental backup
// every backupInterval (0 uses DefaultBackupInterval) against whatever
// sourceSnapshot currently points at. If no source is configured or none
// is available, the tick is a silent no-op. Unlike the ticker-driven
// background loops elsewhere in this module (audit flush, pressure
// polling, RAID health), the backup scheduler is expressed as a cron
// job — "run every N" is exactly robfig/cron's "@every" spec, and a
// cron.Cron gives operators a natural place to later add a real
// wall-clock schedule (e.g. "nightly at 02:00") without changing this
// component's shape.
func (e *Engine) Start(c *cron.Cron, interval time.Duration) (cron.EntryID, error) {
	if interval <= 0 {
		interval = DefaultBackupInterval
	}
	return c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		e.mu.RLock()
		selector := e.sourceSnapshot
		e.mu.RUnlock()
		if selector == nil {
			return
		}
		snapID, ok := selector()
		if !ok {
			return
		}
		if _, err := e.Run(context.Background(), snapID, Incremental); err != nil {
			e.logger.WithError(err).Warn("backup: scheduled run failed")
		}
	})
}

// mostRecentCompleted returns the most recently created completed record
// of any type, or nil.
func (e *Engine) mostRecentCompleted() *Record {
	var best *Record
	for _, r := range e.records {
		if r.Status != StatusCompleted {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	return best
}

// mostRecentFull returns the most recently created completed Full record,
// or nil.
func (e *Engine) mostRecentFull() *Record {
	var best *Record
	for _, r := range e.records {
		if r.Status != StatusCompleted || r.Type != Full {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	return best
}

// deltaSince returns the manifests in current that are new or whose
// content hash changed relative to base's effective file set, keyed by
// relative path.
func deltaSince(base []domainsnapshot.ManifestRecord, current []domainsnapshot.ManifestRecord) []domainsnapshot.ManifestRecord {
	baseHash := make(map[string]string, len(base))
	for _, r := range base {
		baseHash[r.RelativePath] = r.ContentHash
	}
	var delta []domainsnapshot.ManifestRecord
	for _, r := range current {
		if h, ok := baseHash[r.RelativePath]; !ok || h != r.ContentHash {
			delta = append(delta, r)
		}
	}
	return delta
}

// Run creates one backup of the given type against snapshotID. An
// Incremental/Differential request with no eligible base silently
// promotes to Full, per the scheduler's documented fallback.
func (e *Engine) Run(ctx context.Context, snapshotID string, requested Type) (*Record, error) {
	snap, err := e.snapshots.Get(snapshotID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	actualType := requested
	var base *Record
	switch requested {
	case Incremental:
		base = e.mostRecentCompleted()
		if base == nil {
			actualType = Full
		}
	case Differential:
		base = e.mostRecentFull()
		if base == nil {
			actualType = Full
		}
	case Full:
		// no base
	default:
		return nil, errors.InvalidArgument("backup_type", "unknown backup type")
	}

	var copied []domainsnapshot.ManifestRecord
	if actualType == Full {
		copied = append(copied, snap.Manifests...)
	} else {
		copied = deltaSince(base.Files, snap.Manifests)
	}

	id := e.nextID()
	rec := &Record{
		ID:         id,
		Type:       actualType,
		SnapshotID: snapshotID,
		CreatedAt:  time.Now(),
		Files:      append([]domainsnapshot.ManifestRecord(nil), snap.Manifests...),
	}
	if base != nil && actualType != Full {
		rec.BaseBackupID = base.ID
	}

	for _, m := range copied {
		data, err := e.root.Load(ctx, fmt.Sprintf("snapshots/%s/data/%s", snapshotID, m.RelativePath))
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("path", m.RelativePath).Warn("backup: source file unreadable, skipping")
			continue
		}
		if err := e.root.Save(ctx, backupDataURI(id, m.RelativePath), data); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("path", m.RelativePath).Warn("backup: write failed, skipping")
			continue
		}
		rec.CopiedFiles = append(rec.CopiedFiles, m)
	}
	rec.Status = StatusCompleted

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Internal("backup metadata marshal failed", err)
	}
	if err := e.root.Save(ctx, backupMetadataURI(id), payload); err != nil {
		return nil, errors.WriteFailed("backup_metadata", err)
	}

	e.records[id] = rec
	e.applyRetention(ctx)
	return rec, nil
}

// applyRetention deletes completed backups older than retentionDays,
// refusing to delete a Full backup while a surviving Incremental or
// Differential still depends on it (documented decision: refuse, don't
// cascade). Caller must already hold e.mu.
func (e *Engine) applyRetention(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -e.retentionDays)

	hasDependent := func(id string) bool {
		for _, r := range e.records {
			if r.BaseBackupID == id {
				return true
			}
		}
		return false
	}

	ids := make([]string, 0, len(e.records))
	for id := range e.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := e.records[id]
		if rec.CreatedAt.After(cutoff) {
			continue
		}
		if rec.Type == Full && hasDependent(id) {
			e.logger.WithContext(ctx).WithField("backup_id", id).Warn("backup: retention skipped a Full with surviving dependents")
			continue
		}
		for _, m := range rec.CopiedFiles {
			_ = e.root.Delete(ctx, backupDataURI(id, m.RelativePath))
		}
		_ = e.root.Delete(ctx, backupMetadataURI(id))
		delete(e.records, id)
	}
}

// Get returns the recorded metadata for a completed or failed backup run.
func (e *Engine) Get(id string) (*Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[id]
	if !ok {
		return nil, errors.NotFound("backup", id)
	}
	return rec, nil
}

// List returns every retained backup id in creation order.
func (e *Engine) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	recs := make([]*Record, 0, len(e.records))
	for _, r := range e.records {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

// ExportExternal copies one backup's files and metadata side-file onto a
// foreign device, validated as an external backup target (non-volatile,
// different scheme than the source root). If verifyAfterUpload is set,
// every copied file is read back from target and compared byte-for-byte;
// any mismatch aborts with an IntegrityFailure rather than leaving a
// silently-corrupt remote copy.
func (e *Engine) ExportExternal(ctx context.Context, backupID string, target device.StorageDevice, targetDesc device.Descriptor, verifyAfterUpload bool) error {
	if err := device.ValidateBackupTarget(e.root.Scheme(), targetDesc); err != nil {
		return err
	}

	rec, err := e.Get(backupID)
	if err != nil {
		return err
	}

	for _, m := range rec.CopiedFiles {
		data, err := e.root.Load(ctx, backupDataURI(backupID, m.RelativePath))
		if err != nil {
			return errors.UnrecoverableRead(m.RelativePath, err)
		}
		if err := target.Save(ctx, backupDataURI(backupID, m.RelativePath), data); err != nil {
			return errors.WriteFailed(m.RelativePath, err)
		}
		if verifyAfterUpload {
			roundTrip, err := target.Load(ctx, backupDataURI(backupID, m.RelativePath))
			if err != nil {
				return errors.IntegrityFailure(m.RelativePath, err)
			}
			if !bytesEqual(roundTrip, data) {
				return errors.IntegrityFailure(m.RelativePath, nil)
			}
		}
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Internal("backup metadata marshal failed", err)
	}
	if err := target.Save(ctx, backupMetadataURI(backupID), payload); err != nil {
		return errors.WriteFailed("backup_metadata", err)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
