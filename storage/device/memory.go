package device

import (
	"context"
	"sync"

	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// MemoryDevice is an in-memory StorageDevice, used as the reference device
// for tests and RAM-backed pool members. It is safe for concurrent use.
type MemoryDevice struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryDevice constructs an empty in-memory device.
func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{data: make(map[string][]byte)}
}

func (d *MemoryDevice) Scheme() string { return "mem" }

func (d *MemoryDevice) Save(ctx context.Context, uri string, data []byte) error {
	select {
	case <-ctx.Done():
		return errors.Cancelled("device_save")
	default:
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cloned := make([]byte, len(data))
	copy(cloned, data)
	d.data[uri] = cloned
	return nil
}

func (d *MemoryDevice) Load(ctx context.Context, uri string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Cancelled("device_load")
	default:
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	stored, ok := d.data[uri]
	if !ok {
		return nil, errors.NotFound("device_object", uri)
	}
	cloned := make([]byte, len(stored))
	copy(cloned, stored)
	return cloned, nil
}

func (d *MemoryDevice) Delete(ctx context.Context, uri string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, uri)
	return nil
}

func (d *MemoryDevice) Exists(ctx context.Context, uri string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.data[uri]
	return ok, nil
}

var _ StorageDevice = (*MemoryDevice)(nil)
