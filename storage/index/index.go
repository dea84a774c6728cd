// Package index implements the content index (C3): a manifest registry
// keyed by manifest id, queryable by a simple predicate string or a
// composite filter record. The core only assumes its backend can do an
// atomic upsert and an ordered enumeration — any plugin (SQLite,
// in-memory, Postgres-style) can sit behind the Backend interface; this
// package ships an in-memory reference backend.
package index

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/r3e-network/warehouse-core/domain/storage"
	"github.com/r3e-network/warehouse-core/infrastructure/cache"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/infrastructure/logging"
)

// getCacheTTL bounds how long a point lookup may serve a manifest without
// re-checking the backend — short enough that a concurrent Put/Delete on
// another Index sharing the same backend (e.g. two process instances
// against one SQLite file) is only briefly stale, long enough to absorb a
// burst of repeated lookups for the same manifest (restore and browse both
// re-resolve the same id repeatedly while walking a snapshot).
const getCacheTTL = 10 * time.Second

// Backend is the pluggable storage contract the content index requires.
// Implementations must make Upsert atomic and Enumerate return manifests
// in a stable (ascending id) order.
type Backend interface {
	Upsert(ctx context.Context, m *storage.Manifest) error
	Get(ctx context.Context, id string) (*storage.Manifest, bool, error)
	Delete(ctx context.Context, id string) error
	// TouchLastAccess updates last_access for id in O(1), without a scan.
	TouchLastAccess(ctx context.Context, id string, at time.Time) error
	Enumerate(ctx context.Context) (Iterator, error)
}

// Iterator walks a finite, restartable enumeration of manifests.
// Restartable means Backend.Enumerate can always be called again for a
// fresh pass; an Iterator itself is single-pass.
type Iterator interface {
	Next(ctx context.Context) (*storage.Manifest, bool, error)
	Close() error
}

// Filter is one clause of a composite query.
type Filter struct {
	Field    string // "id", "container_id", "pool_id", "relative_path", "content_hash"
	Operator string // "eq", "neq", "contains"
	Value    string
}

func (f Filter) matches(m *storage.Manifest) bool {
	var field string
	switch f.Field {
	case "id":
		field = m.ID
	case "container_id":
		field = m.ContainerID
	case "pool_id":
		field = m.PoolID
	case "relative_path":
		field = m.RelativePath
	case "content_hash":
		field = m.ContentHash
	default:
		return false
	}
	switch f.Operator {
	case "eq":
		return field == f.Value
	case "neq":
		return field != f.Value
	case "contains":
		return strings.Contains(field, f.Value)
	default:
		return false
	}
}

// Index wraps a Backend with the query forms spec'd for C3, plus a
// short-TTL point-lookup cache in front of Get.
type Index struct {
	backend Backend
	cache   *cache.TTLCache
	logger  *logging.Logger
}

// New constructs an Index over the given backend.
func New(backend Backend, logger *logging.Logger) *Index {
	if logger == nil {
		logger = logging.NewFromEnv("index")
	}
	return &Index{backend: backend, cache: cache.NewTTLCache(getCacheTTL), logger: logger}
}

// Put registers or replaces a manifest. Per the redundancy-engine
// invariant, callers must have already written the backing blob before
// calling Put.
func (idx *Index) Put(ctx context.Context, m *storage.Manifest) error {
	if m.ID == "" {
		return errors.InvalidArgument("manifest_id", "must not be empty")
	}
	if err := idx.backend.Upsert(ctx, m); err != nil {
		return err
	}
	idx.cache.Delete(ctx, m.ID)
	return nil
}

// Get performs a point lookup by manifest id, serving from the point-lookup
// cache when the entry is still fresh. Only a cache miss reaches the
// backend and is logged; a cache hit never touches it.
func (idx *Index) Get(ctx context.Context, id string) (*storage.Manifest, error) {
	if cached, ok := idx.cache.Get(ctx, id); ok {
		return cached.(*storage.Manifest), nil
	}

	start := time.Now()
	m, ok, err := idx.backend.Get(ctx, id)
	if err != nil {
		idx.logger.LogIndexQuery(ctx, "id:"+id, time.Since(start), err)
		return nil, err
	}
	if !ok {
		notFound := errors.NotFound("manifest", id)
		idx.logger.LogIndexQuery(ctx, "id:"+id, time.Since(start), notFound)
		return nil, notFound
	}
	idx.logger.LogIndexQuery(ctx, "id:"+id, time.Since(start), nil)
	idx.cache.Set(ctx, id, m)
	return m, nil
}

// Delete removes a manifest from the index.
func (idx *Index) Delete(ctx context.Context, id string) error {
	if err := idx.backend.Delete(ctx, id); err != nil {
		return err
	}
	idx.cache.Delete(ctx, id)
	return nil
}

// TouchLastAccess records an access time for id without a full scan. The
// cached copy (if any) is dropped since its LastAccess field is now stale.
func (idx *Index) TouchLastAccess(ctx context.Context, id string, at time.Time) error {
	if err := idx.backend.TouchLastAccess(ctx, id, at); err != nil {
		return err
	}
	idx.cache.Delete(ctx, id)
	return nil
}

// QueryPredicate evaluates a simple predicate string: "*" matches
// everything; "field:value" matches manifests whose field equals value
// exactly (container:Y, pool:X, path:Y for relative_path, hash:Y for
// content_hash).
func (idx *Index) QueryPredicate(ctx context.Context, predicate string) ([]*storage.Manifest, error) {
	predicate = strings.TrimSpace(predicate)
	if predicate == "" || predicate == "*" {
		return idx.scan(ctx, "*", nil)
	}
	parts := strings.SplitN(predicate, ":", 2)
	if len(parts) != 2 {
		return nil, errors.InvalidArgument("predicate", "expected \"*\" or \"field:value\"")
	}
	field := map[string]string{
		"pool":      "pool_id",
		"container": "container_id",
		"path":      "relative_path",
		"hash":      "content_hash",
		"id":        "id",
	}[parts[0]]
	if field == "" {
		return nil, errors.InvalidArgument("predicate", "unknown predicate field "+parts[0])
	}
	f := Filter{Field: field, Operator: "eq", Value: parts[1]}
	return idx.scan(ctx, predicate, []Filter{f})
}

// QueryFilters evaluates a composite AND of filter clauses.
func (idx *Index) QueryFilters(ctx context.Context, filters []Filter) ([]*storage.Manifest, error) {
	return idx.scan(ctx, "filters", filters)
}

func (idx *Index) scan(ctx context.Context, query string, filters []Filter) ([]*storage.Manifest, error) {
	start := time.Now()
	it, err := idx.backend.Enumerate(ctx)
	if err != nil {
		idx.logger.LogIndexQuery(ctx, query, time.Since(start), err)
		return nil, err
	}
	defer it.Close()

	var out []*storage.Manifest
	for {
		select {
		case <-ctx.Done():
			cancelled := errors.Cancelled("index_scan")
			idx.logger.LogIndexQuery(ctx, query, time.Since(start), cancelled)
			return nil, cancelled
		default:
		}
		m, ok, err := it.Next(ctx)
		if err != nil {
			idx.logger.LogIndexQuery(ctx, query, time.Since(start), err)
			return nil, err
		}
		if !ok {
			break
		}
		if matchesAll(m, filters) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	idx.logger.LogIndexQuery(ctx, query, time.Since(start), nil)
	return out, nil
}

func matchesAll(m *storage.Manifest, filters []Filter) bool {
	for _, f := range filters {
		if !f.matches(m) {
			return false
		}
	}
	return true
}
