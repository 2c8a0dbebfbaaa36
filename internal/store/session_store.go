package store

import (
	"path/filepath"
	"sort"
	"sync"

	"securechat/internal/domain"
)

const sessionsFilename = "sessions.json"

// SessionFileStore persists ratchet state per session in a single JSON file.
type SessionFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir.
func NewSessionFileStore(dir string) *SessionFileStore {
	return &SessionFileStore{dir: dir}
}

func (s *SessionFileStore) path() string { return filepath.Join(s.dir, sessionsFilename) }

func (s *SessionFileStore) load() (map[domain.SessionID]domain.SessionState, error) {
	m := map[domain.SessionID]domain.SessionState{}
	if _, err := readJSON(s.path(), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveSession writes the state for id.
func (s *SessionFileStore) SaveSession(id domain.SessionID, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	m[id] = state
	return writeJSON(s.path(), m)
}

// LoadSession retrieves the state for id.
func (s *SessionFileStore) LoadSession(id domain.SessionID) (domain.SessionState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return domain.SessionState{}, false, err
	}
	st, ok := m[id]
	return st, ok, nil
}

// DeleteSession removes id. Deleting an unknown id is not an error.
func (s *SessionFileStore) DeleteSession(id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	return writeJSON(s.path(), m)
}

// ListSessions returns the stored ids in sorted order.
func (s *SessionFileStore) ListSessions() ([]domain.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	return sortedIDs(m), nil
}

func sortedIDs(m map[domain.SessionID]domain.SessionState) []domain.SessionID {
	out := make([]domain.SessionID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ domain.SessionStore = (*SessionFileStore)(nil)
