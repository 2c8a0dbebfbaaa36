package store

import (
	"path/filepath"
	"sort"
	"sync"

	"securechat/internal/domain"
)

const contactsFilename = "contacts.json"

// ContactFileStore persists contacts and their device sessions.
type ContactFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewContactFileStore returns a ContactFileStore rooted at dir.
func NewContactFileStore(dir string) *ContactFileStore {
	return &ContactFileStore{dir: dir}
}

func (s *ContactFileStore) path() string { return filepath.Join(s.dir, contactsFilename) }

func (s *ContactFileStore) load() (map[domain.ContactID]domain.Contact, error) {
	m := map[domain.ContactID]domain.Contact{}
	if _, err := readJSON(s.path(), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveContact writes c, replacing any previous record with the same id.
func (s *ContactFileStore) SaveContact(c domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	m[c.ID] = c
	return writeJSON(s.path(), m)
}

// LoadContact retrieves the contact with id.
func (s *ContactFileStore) LoadContact(id domain.ContactID) (domain.Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return domain.Contact{}, false, err
	}
	c, ok := m[id]
	return c, ok, nil
}

// ListContacts returns all contacts ordered by id.
func (s *ContactFileStore) ListContacts() ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Contact, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ domain.ContactStore = (*ContactFileStore)(nil)
