// Package device defines the opaque StorageDevice abstraction (C1): every
// backing device exposes save/load/delete/exists plus a scheme string, and
// nothing more. Concrete device drivers (local filesystem, S3, IPFS) are
// out of scope for this core; it ships an in-memory reference device for
// tests and a file-backed device for local development.
package device

import (
	"context"

	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// StorageDevice is the opaque interface the redundancy engine addresses by
// pool index. Failures are reported as errors.CoreError of kind
// DeviceUnavailable, NotFound, Conflict, or Corruption.
type StorageDevice interface {
	// Scheme returns an opaque identifier for the backing technology, e.g.
	// "file", "mem", "s3".
	Scheme() string
	Save(ctx context.Context, uri string, data []byte) error
	Load(ctx context.Context, uri string) ([]byte, error)
	Delete(ctx context.Context, uri string) error
	Exists(ctx context.Context, uri string) (bool, error)
}

// Descriptor describes a pool member's identity and capability flags.
type Descriptor struct {
	ID       string
	Scheme   string
	Volatile bool // true for RAM-backed members; excluded from external-backup targets
}

// Pool groups devices of equal capability addressed by small integer index.
// The redundancy engine never holds a StorageDevice directly; it always
// goes through a Pool so device indices stay stable across rebuilds.
type Pool struct {
	members []StorageDevice
	descs   []Descriptor
}

// NewPool constructs a pool from the given devices and descriptors, which
// must be the same length and are matched by position.
func NewPool(members []StorageDevice, descs []Descriptor) (*Pool, error) {
	if len(members) != len(descs) {
		return nil, errors.InvalidConfiguration("pool", "member and descriptor counts must match")
	}
	return &Pool{members: append([]StorageDevice(nil), members...), descs: append([]Descriptor(nil), descs...)}, nil
}

// Len returns the number of pool members.
func (p *Pool) Len() int {
	return len(p.members)
}

// Device returns the member at idx, or an error if idx is out of range.
func (p *Pool) Device(idx int) (StorageDevice, error) {
	if idx < 0 || idx >= len(p.members) {
		return nil, errors.InvalidArgument("device_index", "out of range")
	}
	return p.members[idx], nil
}

// Descriptor returns the descriptor for the member at idx.
func (p *Pool) Descriptor(idx int) (Descriptor, error) {
	if idx < 0 || idx >= len(p.descs) {
		return Descriptor{}, errors.InvalidArgument("device_index", "out of range")
	}
	return p.descs[idx], nil
}

// Replace swaps the member at idx for a replacement device, used after a
// rebuild completes onto a new device. The descriptor's scheme/volatility
// is not validated here; callers are expected to pass a like-for-like
// replacement.
func (p *Pool) Replace(idx int, member StorageDevice, desc Descriptor) error {
	if idx < 0 || idx >= len(p.members) {
		return errors.InvalidArgument("device_index", "out of range")
	}
	p.members[idx] = member
	p.descs[idx] = desc
	return nil
}

// ValidateBackupTarget checks that a device is usable as an external backup
// target: it must be non-volatile and must use a different scheme than the
// source pool.
func ValidateBackupTarget(sourceScheme string, desc Descriptor) error {
	if desc.Volatile {
		return errors.InvalidConfiguration("backup_target", "volatile devices cannot be external backup targets")
	}
	if desc.Scheme == sourceScheme {
		return errors.InvalidConfiguration("backup_target", "backup target must use a different scheme than the source pool")
	}
	return nil
}
