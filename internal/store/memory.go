package store

import (
	"crypto/subtle"
	"encoding/json"
	"sort"
	"sync"

	"securechat/internal/domain"
)

// Memory implements every store interface in process memory. Values are
// deep-copied on the way in and out so callers never share state with it.
type Memory struct {
	mu         sync.RWMutex
	passphrase string
	device     []byte
	sessions   map[domain.SessionID]domain.SessionState
	contacts   map[domain.ContactID]domain.Contact
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[domain.SessionID]domain.SessionState),
		contacts: make(map[domain.ContactID]domain.Contact),
	}
}

// SaveDevice keeps a serialised copy of keys bound to passphrase.
func (m *Memory) SaveDevice(passphrase string, keys domain.DeviceKeys) error {
	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passphrase = passphrase
	m.device = raw
	return nil
}

// LoadDevice returns ErrWrongPassphrase when passphrase differs from the saved one.
func (m *Memory) LoadDevice(passphrase string) (domain.DeviceKeys, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.device == nil {
		return domain.DeviceKeys{}, false, nil
	}
	if subtle.ConstantTimeCompare([]byte(passphrase), []byte(m.passphrase)) != 1 {
		return domain.DeviceKeys{}, false, ErrWrongPassphrase
	}
	var keys domain.DeviceKeys
	if err := json.Unmarshal(m.device, &keys); err != nil {
		return domain.DeviceKeys{}, false, err
	}
	return keys, true, nil
}

func (m *Memory) SaveSession(id domain.SessionID, state domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = *state.Clone()
	return nil
}

func (m *Memory) LoadSession(id domain.SessionID) (domain.SessionState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[id]
	if !ok {
		return domain.SessionState{}, false, nil
	}
	return *st.Clone(), true, nil
}

func (m *Memory) DeleteSession(id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *Memory) ListSessions() ([]domain.SessionID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedIDs(m.sessions), nil
}

func (m *Memory) SaveContact(c domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.ID] = cloneContact(c)
	return nil
}

func (m *Memory) LoadContact(id domain.ContactID) (domain.Contact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[id]
	if !ok {
		return domain.Contact{}, false, nil
	}
	return cloneContact(c), true, nil
}

func (m *Memory) ListContacts() ([]domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		out = append(out, cloneContact(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneContact(c domain.Contact) domain.Contact {
	out := c
	if c.Sessions != nil {
		out.Sessions = make(map[domain.RegistrationID]domain.SessionID, len(c.Sessions))
		for k, v := range c.Sessions {
			out.Sessions[k] = v
		}
	}
	return out
}

var (
	_ domain.DeviceStore  = (*Memory)(nil)
	_ domain.SessionStore = (*Memory)(nil)
	_ domain.ContactStore = (*Memory)(nil)
)
