package index

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/r3e-network/warehouse-core/domain/storage"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// MemoryBackend is the reference in-memory content-index backend, mutex
// guarded with clone-on-read/write like storage/device.MemoryDevice.
type MemoryBackend struct {
	mu        sync.RWMutex
	manifests map[string]*storage.Manifest
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{manifests: make(map[string]*storage.Manifest)}
}

func cloneManifest(m *storage.Manifest) *storage.Manifest {
	c := *m
	return &c
}

func (b *MemoryBackend) Upsert(ctx context.Context, m *storage.Manifest) error {
	select {
	case <-ctx.Done():
		return errors.Cancelled("index_upsert")
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manifests[m.ID] = cloneManifest(m)
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, id string) (*storage.Manifest, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.manifests[id]
	if !ok {
		return nil, false, nil
	}
	return cloneManifest(m), true, nil
}

func (b *MemoryBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.manifests, id)
	return nil
}

// TouchLastAccess is O(1): a direct map lookup and field write, no scan.
func (b *MemoryBackend) TouchLastAccess(ctx context.Context, id string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.manifests[id]
	if !ok {
		return errors.NotFound("manifest", id)
	}
	m.LastAccess = at
	return nil
}

func (b *MemoryBackend) Enumerate(ctx context.Context) (Iterator, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snapshot := make([]*storage.Manifest, 0, len(b.manifests))
	for _, m := range b.manifests {
		snapshot = append(snapshot, cloneManifest(m))
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return &memoryIterator{items: snapshot}, nil
}

type memoryIterator struct {
	items []*storage.Manifest
	pos   int
}

func (it *memoryIterator) Next(ctx context.Context) (*storage.Manifest, bool, error) {
	if it.pos >= len(it.items) {
		return nil, false, nil
	}
	m := it.items[it.pos]
	it.pos++
	return m, true, nil
}

func (it *memoryIterator) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
