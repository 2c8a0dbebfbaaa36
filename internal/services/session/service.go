package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/logging"
	"securechat/internal/protocol/codec"
	"securechat/internal/protocol/devicekeys"
	"securechat/internal/protocol/ratchet"
	"securechat/internal/protocol/x3dh"
)

// maxRetiredHandshakes bounds how many replaced handshakes a session remembers.
const maxRetiredHandshakes = 8

var log = logging.For("session")

// DeviceKeys is the slice of the device service this package needs.
type DeviceKeys interface {
	Keys() (*devicekeys.Store, error)
	Persist(ctx context.Context) error
}

// Limits caps the skipped-key cache of every session created here. Zero
// values fall back to the ratchet defaults.
type Limits struct {
	MaxSkip        uint32
	MaxMessageKeys int
}

// Service is the session registry: one ratchet state per (contact, device),
// each guarded by its own mutex so independent sessions proceed in parallel.
type Service struct {
	device   DeviceKeys
	store    domain.SessionStore
	contacts domain.ContactStore
	limits   Limits

	mu      sync.RWMutex
	entries map[domain.SessionID]*entry

	contactMu sync.Mutex
}

type entry struct {
	mu      sync.Mutex
	state   *domain.SessionState
	removed bool
}

// New constructs the registry over the given stores.
func New(
	device DeviceKeys,
	store domain.SessionStore,
	contacts domain.ContactStore,
	limits Limits,
) *Service {
	return &Service{
		device:   device,
		store:    store,
		contacts: contacts,
		limits:   limits,
		entries:  make(map[domain.SessionID]*entry),
	}
}

// StartSession runs X3DH as initiator against peer and registers the result.
// A previous session with the same device is replaced.
func (s *Service) StartSession(
	ctx context.Context,
	contact domain.ContactID,
	peer domain.PreKeyBundle,
) (domain.SessionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	keys, err := s.device.Keys()
	if err != nil {
		return "", err
	}
	st, _, err := x3dh.Initiate(keys, peer)
	if err != nil {
		return "", err
	}
	s.applyLimits(st)

	id := domain.NewSessionID(contact, peer.RegistrationID)
	if err := s.install(id, st); err != nil {
		return "", err
	}
	if err := s.link(contact, peer.IdentityKey, peer.RegistrationID, id); err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{"session": id, "role": "initiator"}).Info("session started")
	return id, nil
}

// AcceptSession runs X3DH as responder from the parameters carried by msg,
// decrypts it, and registers the session only if decryption succeeds. The
// one-time pre-key named by msg is spent either way.
func (s *Service) AcceptSession(
	ctx context.Context,
	contact domain.ContactID,
	msg domain.Message,
) (domain.SessionID, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if msg.Type != domain.MessageTypePreKey || msg.PreKey == nil {
		return "", nil, fmt.Errorf("%w: message carries no handshake parameters", domain.ErrSession)
	}
	pk := msg.PreKey
	id := domain.NewSessionID(contact, pk.RegistrationID)
	if err := s.checkNotAccepted(id, pk.EphemeralKey); err != nil {
		return "", nil, err
	}
	keys, err := s.device.Keys()
	if err != nil {
		return "", nil, err
	}
	st, err := x3dh.Respond(keys, *pk)
	if err != nil {
		return "", nil, err
	}
	if err := s.device.Persist(ctx); err != nil {
		return "", nil, fmt.Errorf("persist device keys: %w", err)
	}
	s.applyLimits(st)

	pt, err := codec.Decrypt(st, msg)
	if err != nil {
		ratchet.Wipe(st)
		return "", nil, err
	}

	if err := s.install(id, st); err != nil {
		return "", nil, err
	}
	if err := s.link(contact, pk.IdentityKey, pk.RegistrationID, id); err != nil {
		return "", nil, err
	}
	log.WithFields(logrus.Fields{"session": id, "role": "responder"}).Info("session accepted")
	return id, pt, nil
}

// IsNewHandshake reports whether a prekey message on session id starts a new
// handshake that must go through AcceptSession, rather than continuing the
// live session. It fails with ErrSession for a handshake the session already
// replaced, and for a crossing handshake when both devices initiated at once
// and ours wins: the handshake whose initiator has the lower identity key is
// kept on both sides.
func (s *Service) IsNewHandshake(id domain.SessionID, pm domain.PreKeyMessage) (bool, error) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(id, e); err != nil {
		if errors.Is(err, domain.ErrSession) {
			return true, nil
		}
		return false, err
	}
	st := e.state
	if st.HandshakeKey == pm.EphemeralKey {
		return false, nil
	}
	if retiredHandshake(st, pm.EphemeralKey) {
		return false, fmt.Errorf("%w: replayed handshake on %q", domain.ErrSession, id)
	}
	if st.PendingPreKey != nil && len(st.AssociatedData) == 2*domain.KeySize {
		own := st.AssociatedData[:domain.KeySize]
		if bytes.Compare(own, pm.IdentityKey[:]) < 0 {
			return false, fmt.Errorf("%w: crossing handshake on %q, keeping ours", domain.ErrSession, id)
		}
	}
	return true, nil
}

// checkNotAccepted rejects a handshake that session id already accepted or
// replaced.
func (s *Service) checkNotAccepted(id domain.SessionID, ephemeral domain.X25519Public) error {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(id, e); err != nil {
		if errors.Is(err, domain.ErrSession) {
			return nil
		}
		return err
	}
	if e.state.HandshakeKey == ephemeral || retiredHandshake(e.state, ephemeral) {
		return fmt.Errorf("%w: handshake already accepted on %q", domain.ErrSession, id)
	}
	return nil
}

// WithSession runs fn with exclusive access to a copy of the session's state.
// The copy becomes the live state only once fn succeeds and it is saved, so a
// failed fn or write leaves the session as it was. fn must not retain the
// pointer.
func (s *Service) WithSession(
	ctx context.Context,
	id domain.SessionID,
	fn func(*domain.SessionState) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(id, e); err != nil {
		return err
	}
	next := e.state.Clone()
	if err := fn(next); err != nil {
		ratchet.Wipe(next)
		return err
	}
	if err := s.store.SaveSession(id, *next); err != nil {
		ratchet.Wipe(next)
		return fmt.Errorf("save session %q: %w", id, err)
	}
	prev := e.state
	e.state = next
	ratchet.Wipe(prev)
	return nil
}

// Get returns a copy of the session's current state.
func (s *Service) Get(id domain.SessionID) (domain.SessionState, error) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(id, e); err != nil {
		return domain.SessionState{}, err
	}
	return *e.state.Clone(), nil
}

// HasSession reports whether id names a live session.
func (s *Service) HasSession(id domain.SessionID) (bool, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		e.mu.Lock()
		loaded := e.state != nil && !e.removed
		e.mu.Unlock()
		if loaded {
			return true, nil
		}
	}
	_, found, err := s.store.LoadSession(id)
	return found, err
}

// RemoveSession tears the session down, wiping its keys, and unlinks it from
// its contact.
func (s *Service) RemoveSession(ctx context.Context, id domain.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.entry(id)
	e.mu.Lock()
	if err := s.store.DeleteSession(id); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.state != nil {
		ratchet.Wipe(e.state)
		e.state = nil
	}
	e.removed = true
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	e.mu.Unlock()

	log.WithField("session", id).Info("session removed")
	return s.unlink(id)
}

// ListSessions returns every persisted session id.
func (s *Service) ListSessions() ([]domain.SessionID, error) {
	return s.store.ListSessions()
}

// SessionsFor returns the sessions linked to contact, ordered by device.
func (s *Service) SessionsFor(contact domain.ContactID) ([]domain.SessionID, error) {
	c, ok, err := s.contacts.LoadContact(contact)
	if err != nil || !ok {
		return nil, err
	}
	regs := make([]domain.RegistrationID, 0, len(c.Sessions))
	for reg := range c.Sessions {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })

	out := make([]domain.SessionID, 0, len(regs))
	for _, reg := range regs {
		out = append(out, c.Sessions[reg])
	}
	return out, nil
}

// entry returns the registry slot for id, creating it on first use.
func (s *Service) entry(id domain.SessionID) *entry {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e
	}
	e = &entry{}
	s.entries[id] = e
	return e
}

// ensureLoaded must be called with e.mu held.
func (s *Service) ensureLoaded(id domain.SessionID, e *entry) error {
	if e.removed {
		return fmt.Errorf("%w: unknown session %q", domain.ErrSession, id)
	}
	if e.state != nil {
		return nil
	}
	st, found, err := s.store.LoadSession(id)
	if err != nil {
		return err
	}
	if !found {
		s.drop(id, e)
		return fmt.Errorf("%w: unknown session %q", domain.ErrSession, id)
	}
	e.state = &st
	return nil
}

// drop removes e from the registry if it is still the slot for id. e.mu must
// be held.
func (s *Service) drop(id domain.SessionID, e *entry) {
	s.mu.Lock()
	if s.entries[id] == e {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

// install saves st and makes it the live state for id. Handshakes of the
// session it replaces are carried over as retired.
func (s *Service) install(id domain.SessionID, st *domain.SessionState) error {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		prev, found, err := s.store.LoadSession(id)
		if err != nil {
			return err
		}
		if found {
			e.state = &prev
		}
	}
	if e.state != nil {
		st.RetiredHandshakeKeys = carryHandshakes(e.state)
	}
	if err := s.store.SaveSession(id, *st); err != nil {
		return err
	}
	if e.state != nil {
		ratchet.Wipe(e.state)
	}
	e.state = st
	e.removed = false
	return nil
}

func (s *Service) link(
	contact domain.ContactID,
	identity domain.X25519Public,
	reg domain.RegistrationID,
	id domain.SessionID,
) error {
	s.contactMu.Lock()
	defer s.contactMu.Unlock()

	c, ok, err := s.contacts.LoadContact(contact)
	if err != nil {
		return err
	}
	if !ok {
		c = domain.Contact{ID: contact}
	}
	if !c.IdentityKey.IsZero() && c.IdentityKey != identity {
		log.WithFields(logrus.Fields{
			"contact":     contact,
			"fingerprint": crypto.Fingerprint(identity.Slice()),
		}).Warn("contact identity key changed")
	}
	c.IdentityKey = identity
	if c.Sessions == nil {
		c.Sessions = make(map[domain.RegistrationID]domain.SessionID)
	}
	c.Sessions[reg] = id
	return s.contacts.SaveContact(c)
}

func (s *Service) unlink(id domain.SessionID) error {
	contact, reg, err := id.Split()
	if err != nil {
		return nil
	}
	s.contactMu.Lock()
	defer s.contactMu.Unlock()

	c, ok, err := s.contacts.LoadContact(contact)
	if err != nil || !ok {
		return err
	}
	if c.Sessions[reg] != id {
		return nil
	}
	delete(c.Sessions, reg)
	return s.contacts.SaveContact(c)
}

func retiredHandshake(st *domain.SessionState, ephemeral domain.X25519Public) bool {
	for _, k := range st.RetiredHandshakeKeys {
		if k == ephemeral {
			return true
		}
	}
	return false
}

// carryHandshakes returns prev's retired handshakes plus its own, newest last.
func carryHandshakes(prev *domain.SessionState) []domain.X25519Public {
	out := append([]domain.X25519Public(nil), prev.RetiredHandshakeKeys...)
	if !prev.HandshakeKey.IsZero() {
		out = append(out, prev.HandshakeKey)
	}
	if len(out) > maxRetiredHandshakes {
		out = out[len(out)-maxRetiredHandshakes:]
	}
	return out
}

func (s *Service) applyLimits(st *domain.SessionState) {
	st.MaxSkip = s.limits.MaxSkip
	st.MaxMessageKeys = s.limits.MaxMessageKeys
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
