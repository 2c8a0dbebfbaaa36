package store

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"securechat/internal/domain"
	"securechat/internal/util/memzero"
)

const deviceFilename = "device.json.enc"

// DeviceFileStore persists the device's private key material encrypted under
// a passphrase.
type DeviceFileStore struct {
	dir    string
	params KDFParams
	mu     sync.Mutex
}

// NewDeviceFileStore returns a DeviceFileStore rooted at dir.
func NewDeviceFileStore(dir string) *DeviceFileStore {
	return &DeviceFileStore{dir: dir, params: DefaultKDFParams}
}

// WithKDFParams overrides the passphrase KDF used for new writes.
func (s *DeviceFileStore) WithKDFParams(p KDFParams) *DeviceFileStore {
	s.params = p
	return s
}

// SaveDevice seals keys and atomically replaces the device file.
func (s *DeviceFileStore) SaveDevice(passphrase string, keys domain.DeviceKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)

	blob, err := seal(passphrase, raw, s.params)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, deviceFilename), blob)
}

// LoadDevice opens the device file. found is false when none exists yet.
func (s *DeviceFileStore) LoadDevice(passphrase string) (domain.DeviceKeys, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := readFile(filepath.Join(s.dir, deviceFilename))
	if err != nil || blob == nil {
		return domain.DeviceKeys{}, false, err
	}
	raw, err := open(passphrase, blob)
	if err != nil {
		return domain.DeviceKeys{}, false, err
	}
	defer memzero.Zero(raw)

	var keys domain.DeviceKeys
	if err := json.Unmarshal(raw, &keys); err != nil {
		return domain.DeviceKeys{}, false, err
	}
	return keys, true, nil
}

var _ domain.DeviceStore = (*DeviceFileStore)(nil)
