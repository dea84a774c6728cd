// Package secrets implements the machine-encrypted keystore: an
// AES-GCM-sealed JSON map of key-id to raw key bytes, persisted through
// the C1 device abstraction at Security/keystore.dat. It satisfies
// config.SecretProvider so the rest of the core can read secrets without
// importing this package directly.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"

	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/storage/device"
)

const keystoreURI = "Security/keystore.dat"

// MasterKeyEnvName returns the environment variable the keystore reads its
// encryption key from, e.g. "WAREHOUSE_MASTER_KEY" for appPrefix
// "WAREHOUSE".
func MasterKeyEnvName(appPrefix string) string {
	return appPrefix + "_MASTER_KEY"
}

// Keystore is a file-backed, AES-GCM-encrypted key-value store.
type Keystore struct {
	root device.StorageDevice
	aead cipher.AEAD

	mu     sync.RWMutex
	cache  map[string][]byte
	loaded bool
}

// New constructs a Keystore. masterKeyBase64 must decode to exactly 32
// bytes, matching spec's "<APP>_MASTER_KEY (base64-encoded 32-byte AES
// key)".
func New(root device.StorageDevice, masterKeyBase64 string) (*Keystore, error) {
	key, err := decodeMasterKey(masterKeyBase64)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.InvalidConfiguration("master_key", "not usable as an AES-256 key")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Internal("keystore: failed to construct AEAD", err)
	}
	return &Keystore{root: root, aead: aead, cache: make(map[string][]byte)}, nil
}

func decodeMasterKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.InvalidConfiguration("master_key", "required but empty")
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, errors.InvalidConfiguration("master_key", "not valid base64")
	}
	if len(decoded) != 32 {
		return nil, errors.InvalidConfiguration("master_key", "must decode to exactly 32 bytes")
	}
	return decoded, nil
}

// ensureLoaded lazily reads and decrypts the keystore file once. A
// missing keystore file is treated as an empty store, not an error —
// the first Put call creates it.
func (k *Keystore) ensureLoaded(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.loaded {
		return nil
	}

	raw, err := k.root.Load(ctx, keystoreURI)
	if err != nil {
		if errors.Is(err, errors.KindNotFound) {
			k.loaded = true
			return nil
		}
		return err
	}

	plaintext, err := k.open(raw)
	if err != nil {
		return err
	}

	var encoded map[string]string
	if err := json.Unmarshal(plaintext, &encoded); err != nil {
		return errors.Corruption("keystore", err)
	}
	decoded := make(map[string][]byte, len(encoded))
	for id, b64 := range encoded {
		value, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return errors.Corruption("keystore", err)
		}
		decoded[id] = value
	}
	k.cache = decoded
	k.loaded = true
	return nil
}

func (k *Keystore) seal(plaintext []byte) []byte {
	nonce := make([]byte, k.aead.NonceSize())
	_, _ = rand.Read(nonce)
	ciphertext := k.aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...)
}

func (k *Keystore) open(raw []byte) ([]byte, error) {
	nonceSize := k.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, errors.Corruption("keystore", nil)
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Corruption("keystore", err)
	}
	return plaintext, nil
}

// persist re-serializes the full cache, encrypts it, and writes it back.
// Caller must hold k.mu.
func (k *Keystore) persist(ctx context.Context) error {
	encoded := make(map[string]string, len(k.cache))
	for id, value := range k.cache {
		encoded[id] = base64.StdEncoding.EncodeToString(value)
	}
	plaintext, err := json.Marshal(encoded)
	if err != nil {
		return errors.Internal("keystore marshal failed", err)
	}
	if err := k.root.Save(ctx, keystoreURI, k.seal(plaintext)); err != nil {
		return errors.WriteFailed("keystore", err)
	}
	return nil
}

// Secret implements config.SecretProvider. A missing key returns
// (nil, false) rather than an error, matching the interface's contract
// that callers fall back to the environment.
func (k *Keystore) Secret(name string) ([]byte, bool) {
	if err := k.ensureLoaded(context.Background()); err != nil {
		return nil, false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	value, ok := k.cache[name]
	if !ok {
		return nil, false
	}
	cloned := make([]byte, len(value))
	copy(cloned, value)
	return cloned, true
}

// Put stores or overwrites a secret under id and persists the keystore.
func (k *Keystore) Put(ctx context.Context, id string, value []byte) error {
	if err := k.ensureLoaded(ctx); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	cloned := make([]byte, len(value))
	copy(cloned, value)
	k.cache[id] = cloned
	return k.persist(ctx)
}

// Delete removes a secret and persists the keystore.
func (k *Keystore) Delete(ctx context.Context, id string) error {
	if err := k.ensureLoaded(ctx); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.cache[id]; !ok {
		return errors.NotFound("secret", id)
	}
	delete(k.cache, id)
	return k.persist(ctx)
}

// List returns every stored secret id.
func (k *Keystore) List(ctx context.Context) ([]string, error) {
	if err := k.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	ids := make([]string, 0, len(k.cache))
	for id := range k.cache {
		ids = append(ids, id)
	}
	return ids, nil
}
