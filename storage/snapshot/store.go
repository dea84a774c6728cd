// Package snapshot implements the snapshot store (C4): immutable,
// hash-sealed captures of a set of manifests and their bytes.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domainstorage "github.com/r3e-network/warehouse-core/domain/storage"
	model "github.com/r3e-network/warehouse-core/domain/snapshot"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/infrastructure/hex"
	"github.com/r3e-network/warehouse-core/infrastructure/logging"
	"github.com/r3e-network/warehouse-core/storage/device"
)

// BlobSource reads a blob's bytes by the key under which the redundancy
// engine stored it (the manifest's content hash, per the core invariant
// that every indexed manifest has a backing blob under that key).
type BlobSource interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

// ManifestSource is the subset of the content index the snapshot store
// needs: point lookup and predicate query.
type ManifestSource interface {
	Get(ctx context.Context, id string) (*domainstorage.Manifest, error)
	QueryPredicate(ctx context.Context, predicate string) ([]*domainstorage.Manifest, error)
}

// Store is the snapshot store (C4). Snapshot JSON and captured file bytes
// are written to root via the C1 device abstraction; manifest bytes are
// read from the redundancy engine via BlobSource.
type Store struct {
	root  device.StorageDevice
	blobs BlobSource
	index ManifestSource

	logger *logging.Logger

	mu    sync.RWMutex
	snaps map[string]*model.Snapshot
}

// New constructs a snapshot store. Call Open afterward to rehydrate any
// snapshots already persisted under root from a previous process.
func New(root device.StorageDevice, blobs BlobSource, idx ManifestSource, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewFromEnv("snapshot")
	}
	return &Store{root: root, blobs: blobs, index: idx, logger: logger, snaps: make(map[string]*model.Snapshot)}
}

// Open rebuilds the in-memory registry from root's persisted snapshot
// index and per-snapshot JSON files, the way
// infrastructure/secrets.Keystore.ensureLoaded rebuilds its cache from
// the keystore file. Call it once after New when root may already hold
// snapshots from a previous process; a missing index is treated as an
// empty store. An id listed in the index whose snapshot.json is missing
// or unreadable is logged and skipped rather than failing the whole
// rehydration.
func (s *Store) Open(ctx context.Context) error {
	raw, err := s.root.Load(ctx, snapshotIndexURI())
	if err != nil {
		if errors.Is(err, errors.KindNotFound) {
			return nil
		}
		return err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return errors.Corruption("snapshot_index", err)
	}

	loaded := make(map[string]*model.Snapshot, len(ids))
	for _, id := range ids {
		snap, err := s.loadFromDisk(ctx, id)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("snapshot_id", id).Warn("snapshot: failed to rehydrate from disk, skipping")
			continue
		}
		loaded[id] = snap
	}

	s.mu.Lock()
	s.snaps = loaded
	s.mu.Unlock()
	return nil
}

// loadFromDisk reads and parses the persisted snapshot.json for id,
// independent of whatever is currently cached in s.snaps.
func (s *Store) loadFromDisk(ctx context.Context, id string) (*model.Snapshot, error) {
	raw, err := s.root.Load(ctx, snapshotJSONURI(id))
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errors.Corruption("snapshot_json", err)
	}
	return &snap, nil
}

// persistIndex rewrites the id list backing Open, mirroring
// Keystore.persist's re-serialize-the-whole-map approach.
func (s *Store) persistIndex(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	payload, err := json.Marshal(ids)
	if err != nil {
		return errors.Internal("snapshot index marshal failed", err)
	}
	return s.root.Save(ctx, snapshotIndexURI(), payload)
}

func snapshotDataURI(id, relativePath string) string {
	return fmt.Sprintf("snapshots/%s/data/%s", id, relativePath)
}

func snapshotJSONURI(id string) string {
	return fmt.Sprintf("snapshots/%s/snapshot.json", id)
}

// snapshotIndexURI is a single small file listing every sealed snapshot
// id, maintained the way infrastructure/secrets.Keystore maintains its
// id set: root has no directory-listing primitive, so the store tracks
// its own membership rather than relying on one.
func snapshotIndexURI() string {
	return "snapshots/_index.json"
}

// matchingPredicate picks the index query for a granularity/target pair.
// The five middle granularities (Compartment..MultiplePools) differ only
// in which query the store issues; StoragePool/MultiplePools scope by
// pool id, the other three (Compartment/Partition/StorageLayer) scope by
// container id, per spec's statement
// that the contract across them is otherwise identical.
func matchingPredicate(g model.Granularity, targetID string) (string, error) {
	switch g {
	case model.SingleFile:
		if targetID == "" {
			return "", errors.InvalidArgument("target_id", "required for SingleFile granularity")
		}
		return "id:" + targetID, nil
	case model.Compartment, model.Partition, model.StorageLayer:
		if targetID == "" {
			return "*", nil
		}
		return "container:" + targetID, nil
	case model.StoragePool, model.MultiplePools:
		if targetID == "" {
			return "*", nil
		}
		return "pool:" + targetID, nil
	case model.CompleteInstance:
		return "*", nil
	default:
		return "", errors.InvalidArgument("granularity", "unsupported")
	}
}

// Create captures the manifests matching granularity/targetID, copying
// each one's bytes into the snapshot's data tree, sealing the result as
// Immutable. Per-file copy failures are logged and skipped; the snapshot
// is still sealed with whatever it managed to capture.
func (s *Store) Create(ctx context.Context, id string, granularity model.Granularity, targetID, description string) (*model.Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Cancelled("snapshot_create")
	default:
	}

	predicate, err := matchingPredicate(granularity, targetID)
	if err != nil {
		return nil, err
	}
	manifests, err := s.index.QueryPredicate(ctx, predicate)
	if err != nil {
		return nil, err
	}
	if granularity == model.SingleFile && len(manifests) == 0 {
		return nil, errors.InvalidArgument("target_id", "no manifest with that id")
	}

	snap := &model.Snapshot{
		ID:             id,
		Granularity:    granularity,
		TargetID:       targetID,
		Timestamp:      time.Now(),
		Description:    description,
		Status:         model.StatusCreating,
		RequestedCount: len(manifests),
	}

	now := time.Now()
	for _, m := range manifests {
		select {
		case <-ctx.Done():
			snap.Status = model.StatusFailed
			return snap, errors.Cancelled("snapshot_create")
		default:
		}

		data, err := s.blobs.Load(ctx, m.ContentHash)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("manifest_id", m.ID).Warn("snapshot: manifest copy failed, skipping")
			continue
		}
		if err := s.root.Save(ctx, snapshotDataURI(id, m.RelativePath), data); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("manifest_id", m.ID).Warn("snapshot: data write failed, skipping")
			continue
		}
		snap.Manifests = append(snap.Manifests, model.ManifestRecord{
			ManifestID:   m.ID,
			RelativePath: m.RelativePath,
			Size:         m.Size,
			ContentHash:  m.ContentHash,
			CapturedAt:   now,
		})
		snap.CapturedCount++
	}

	if granularity == model.CompleteInstance {
		_ = s.root.Save(ctx, fmt.Sprintf("snapshots/%s/Config/.keep", id), []byte{})
		_ = s.root.Save(ctx, fmt.Sprintf("snapshots/%s/Metadata/.keep", id), []byte{})
	}

	snap.IntegrityHash = computeIntegrityHash(snap.Manifests)
	snap.Status = model.StatusImmutable

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Internal("snapshot marshal failed", err)
	}
	if err := s.root.Save(ctx, snapshotJSONURI(id), payload); err != nil {
		return nil, errors.WriteFailed("snapshot_json", err)
	}

	s.mu.Lock()
	s.snaps[id] = snap
	s.mu.Unlock()

	if err := s.persistIndex(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// computeIntegrityHash implements the normative algorithm: hex (uppercase)
// SHA-256 over the UTF-8 concatenation of each manifest record's content
// hash, taken in ascending manifest-id order.
func computeIntegrityHash(records []model.ManifestRecord) string {
	sorted := append([]model.ManifestRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ManifestID < sorted[j].ManifestID })

	var buf bytes.Buffer
	for _, r := range sorted {
		buf.WriteString(r.ContentHash)
	}
	sum := sha256.Sum256(buf.Bytes())
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Get returns the in-memory registry record for id.
func (s *Store) Get(id string) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[id]
	if !ok {
		return nil, errors.NotFound("snapshot", id)
	}
	return snap, nil
}

// Verify re-reads the persisted snapshot.json from root, recomputes the
// integrity hash from its manifest records, and compares it bitwise to
// its own stored IntegrityHash field. Reading the file rather than
// trusting the in-memory registry is what makes this catch tampering
// with the bytes on disk, not just mutation of the Go struct.
func (s *Store) Verify(id string) (bool, error) {
	ctx := context.Background()
	if _, err := s.Get(id); err != nil {
		return false, err
	}
	persisted, err := s.loadFromDisk(ctx, id)
	if err != nil {
		return false, err
	}
	return computeIntegrityHash(persisted.Manifests) == persisted.IntegrityHash, nil
}

// Delete refuses to remove a protected snapshot; otherwise removes its
// registry entry and best-effort deletes its captured files.
func (s *Store) Delete(ctx context.Context, id string) error {
	snap, err := s.Get(id)
	if err != nil {
		return err
	}
	if snap.Protected {
		return errors.Conflict("cannot delete a protected snapshot")
	}

	for _, m := range snap.Manifests {
		_ = s.root.Delete(ctx, snapshotDataURI(id, m.RelativePath))
	}
	_ = s.root.Delete(ctx, snapshotJSONURI(id))

	s.mu.Lock()
	delete(s.snaps, id)
	s.mu.Unlock()
	_ = s.persistIndex(ctx)
	return nil
}

// List returns every registered snapshot id.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
