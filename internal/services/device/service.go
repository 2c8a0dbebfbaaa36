package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/logging"
	"securechat/internal/protocol/devicekeys"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
	// ErrLocked is returned while no device keys are loaded.
	ErrLocked = fmt.Errorf("%w: device keys not initialised; run init or unlock", domain.ErrCrypto)
	// ErrAlreadyInitialised guards against overwriting an existing device.
	ErrAlreadyInitialised = errors.New("device already initialised")
)

var log = logging.For("device")

// Service owns the unlocked Device Key Store and writes it back after every
// change to the one-time pool.
type Service struct {
	store        domain.DeviceStore
	oneTimeCount int

	mu         sync.RWMutex
	keys       *devicekeys.Store
	passphrase string
}

// New returns a device service provisioning oneTimeCount one-time pre-keys.
func New(store domain.DeviceStore, oneTimeCount int) *Service {
	if oneTimeCount < devicekeys.MinOneTimePreKeys {
		oneTimeCount = devicekeys.MinOneTimePreKeys
	}
	return &Service{store: store, oneTimeCount: oneTimeCount}
}

// InitializeDevice generates fresh device keys, saves them encrypted under
// passphrase, and leaves the service unlocked.
func (s *Service) InitializeDevice(ctx context.Context, passphrase string) (domain.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !isSecurePassphrase(passphrase) {
		return "", ErrWeakPassphrase
	}
	switch _, found, err := s.store.LoadDevice(passphrase); {
	case found, errors.Is(err, domain.ErrCrypto):
		return "", ErrAlreadyInitialised
	case err != nil:
		return "", err
	}

	keys, err := devicekeys.Generate(s.oneTimeCount)
	if err != nil {
		return "", err
	}
	if err := s.store.SaveDevice(passphrase, keys.Keys()); err != nil {
		keys.Destroy()
		return "", err
	}

	s.mu.Lock()
	s.swap(keys, passphrase)
	s.mu.Unlock()

	fp := crypto.Fingerprint(keys.Identity().DH.Public.Slice())
	log.WithField("fingerprint", fp).Info("device initialised")
	return fp, nil
}

// Unlock loads and decrypts the device keys.
func (s *Service) Unlock(ctx context.Context, passphrase string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keys, found, err := s.store.LoadDevice(passphrase)
	if err != nil {
		return err
	}
	if !found {
		return ErrLocked
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(devicekeys.Restore(keys), passphrase)
	return nil
}

// Fingerprint returns a short fingerprint of the identity DH public key.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	keys, err := s.Keys()
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(keys.Identity().DH.Public.Slice()), nil
}

// Keys returns the unlocked Device Key Store.
func (s *Service) Keys() (*devicekeys.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil {
		return nil, ErrLocked
	}
	return s.keys, nil
}

// Persist writes the current key material back to the store.
func (s *Service) Persist(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil {
		return ErrLocked
	}
	return s.store.SaveDevice(s.passphrase, s.keys.Keys())
}

// Lock wipes the in-memory key material.
func (s *Service) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(nil, "")
}

func (s *Service) swap(keys *devicekeys.Store, passphrase string) {
	if s.keys != nil {
		s.keys.Destroy()
	}
	s.keys = keys
	s.passphrase = passphrase
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.DeviceService.
var _ domain.DeviceService = (*Service)(nil)
