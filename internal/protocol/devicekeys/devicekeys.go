package devicekeys

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/util/memzero"
)

// MinOneTimePreKeys is the smallest pool Generate accepts.
const MinOneTimePreKeys = 20

// Store owns one device's key material. The one-time pool is shared by
// concurrent bundle builders, so every access goes through mu.
type Store struct {
	mu   sync.Mutex
	keys domain.DeviceKeys
}

// Generate provisions a new device: identity pair, signed pre-key, count
// one-time pre-keys and a random registration id.
func Generate(count int) (*Store, error) {
	if count < MinOneTimePreKeys {
		return nil, fmt.Errorf("one-time pre-key pool of %d is below the minimum of %d", count, MinOneTimePreKeys)
	}
	identity, err := crypto.NewIdentity()
	if err != nil {
		return nil, err
	}
	spk, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	spkID, err := randomUint32()
	if err != nil {
		return nil, err
	}
	reg, err := randomRegistrationID()
	if err != nil {
		return nil, err
	}

	s := &Store{keys: domain.DeviceKeys{
		Identity: identity,
		SignedPreKey: domain.SignedPreKey{
			ID:        domain.SignedPreKeyID(spkID),
			KeyPair:   spk,
			Signature: crypto.SignEd25519(identity.SigningPrivate, spk.Public.Slice()),
		},
		Issued:              make(map[domain.OneTimePreKeyID]domain.OneTimePreKey),
		NextOneTimePreKeyID: 1,
		RegistrationID:      reg,
	}}
	if err := s.appendOneTimeKeys(count); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore wraps previously persisted key material.
func Restore(keys domain.DeviceKeys) *Store {
	if keys.Issued == nil {
		keys.Issued = make(map[domain.OneTimePreKeyID]domain.OneTimePreKey)
	}
	return &Store{keys: keys}
}

// IssueOneTimeKey pops the next unused one-time key and parks it until a
// handshake retires it. ok is false when the pool is exhausted.
func (s *Store) IssueOneTimeKey() (key domain.OneTimePreKey, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.keys.OneTimePreKeys) == 0 {
		return domain.OneTimePreKey{}, false
	}
	key = s.keys.OneTimePreKeys[0]
	s.keys.OneTimePreKeys = s.keys.OneTimePreKeys[1:]
	s.keys.Issued[key.ID] = key
	return key, true
}

// RetireOneTimeKey removes an issued key and returns its pair so the
// responder can finish X3DH. A key can be retired only once.
func (s *Store) RetireOneTimeKey(id domain.OneTimePreKeyID) (domain.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys.Issued[id]
	if !ok {
		return domain.KeyPair{}, fmt.Errorf("%w: one-time pre-key %d unknown or already used", domain.ErrSession, id)
	}
	delete(s.keys.Issued, id)
	return key.KeyPair, nil
}

// Replenish appends count fresh one-time keys to the pool.
func (s *Store) Replenish(count int) error {
	if count <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendOneTimeKeys(count)
}

// Remaining reports how many one-time keys were never issued.
func (s *Store) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys.OneTimePreKeys)
}

// Identity returns the long-term identity pair.
func (s *Store) Identity() domain.IdentityKeyPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys.Identity
}

// SignedPreKey returns the current signed pre-key.
func (s *Store) SignedPreKey() domain.SignedPreKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys.SignedPreKey
}

// RegistrationID returns the device's stable registration id.
func (s *Store) RegistrationID() domain.RegistrationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys.RegistrationID
}

// Keys returns a deep copy of the key material for persistence.
func (s *Store) Keys() domain.DeviceKeys {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.keys
	out.OneTimePreKeys = append([]domain.OneTimePreKey(nil), s.keys.OneTimePreKeys...)
	out.Issued = make(map[domain.OneTimePreKeyID]domain.OneTimePreKey, len(s.keys.Issued))
	for id, k := range s.keys.Issued {
		out.Issued[id] = k
	}
	return out
}

// Destroy wipes every private key held by the store.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	memzero.ZeroAll(
		s.keys.Identity.DH.Private[:],
		s.keys.Identity.SigningPrivate[:],
		s.keys.SignedPreKey.KeyPair.Private[:],
	)
	for i := range s.keys.OneTimePreKeys {
		memzero.Zero(s.keys.OneTimePreKeys[i].KeyPair.Private[:])
	}
	for id, k := range s.keys.Issued {
		memzero.Zero(k.KeyPair.Private[:])
		delete(s.keys.Issued, id)
	}
	s.keys.OneTimePreKeys = nil
}

// appendOneTimeKeys must be called with mu held (or before s is shared).
func (s *Store) appendOneTimeKeys(count int) error {
	for i := 0; i < count; i++ {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		s.keys.OneTimePreKeys = append(s.keys.OneTimePreKeys, domain.OneTimePreKey{
			ID:      s.keys.NextOneTimePreKeyID,
			KeyPair: kp,
		})
		s.keys.NextOneTimePreKeyID++
	}
	return nil
}

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrCrypto, err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func randomRegistrationID() (domain.RegistrationID, error) {
	n, err := randomUint32()
	if err != nil {
		return 0, err
	}
	return domain.RegistrationID(n % domain.MaxRegistrationID), nil
}
