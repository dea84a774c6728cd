package device

import (
	"context"
	"os"
	"path/filepath"

	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// FileDevice is a local-filesystem-backed StorageDevice rooted at Root. URIs
// are joined onto Root after cleaning to prevent path escape.
type FileDevice struct {
	Root string
}

// NewFileDevice constructs a FileDevice rooted at root, creating the
// directory if it does not already exist.
func NewFileDevice(root string) (*FileDevice, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.DeviceUnavailable(root, err)
	}
	return &FileDevice{Root: root}, nil
}

func (d *FileDevice) Scheme() string { return "file" }

func (d *FileDevice) resolve(uri string) (string, error) {
	cleaned := filepath.Clean("/" + uri)
	return filepath.Join(d.Root, cleaned), nil
}

func (d *FileDevice) Save(ctx context.Context, uri string, data []byte) error {
	select {
	case <-ctx.Done():
		return errors.Cancelled("device_save")
	default:
	}
	path, err := d.resolve(uri)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.DeviceUnavailable(d.Root, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.DeviceUnavailable(d.Root, err)
	}
	return nil
}

func (d *FileDevice) Load(ctx context.Context, uri string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Cancelled("device_load")
	default:
	}
	path, err := d.resolve(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("device_object", uri)
		}
		return nil, errors.DeviceUnavailable(d.Root, err)
	}
	return data, nil
}

func (d *FileDevice) Delete(ctx context.Context, uri string) error {
	path, err := d.resolve(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.DeviceUnavailable(d.Root, err)
	}
	return nil
}

func (d *FileDevice) Exists(ctx context.Context, uri string) (bool, error) {
	path, err := d.resolve(uri)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.DeviceUnavailable(d.Root, err)
}

var _ StorageDevice = (*FileDevice)(nil)
