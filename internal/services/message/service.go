package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"securechat/internal/domain"
	"securechat/internal/logging"
	"securechat/internal/protocol/codec"
	"securechat/internal/protocol/devicekeys"
)

// Sessions is the slice of the session registry this package needs.
type Sessions interface {
	StartSession(ctx context.Context, contact domain.ContactID, peer domain.PreKeyBundle) (domain.SessionID, error)
	AcceptSession(ctx context.Context, contact domain.ContactID, msg domain.Message) (domain.SessionID, []byte, error)
	HasSession(id domain.SessionID) (bool, error)
	IsNewHandshake(id domain.SessionID, pm domain.PreKeyMessage) (bool, error)
	WithSession(ctx context.Context, id domain.SessionID, fn func(*domain.SessionState) error) error
	SessionsFor(contact domain.ContactID) ([]domain.SessionID, error)
}

// DeviceKeys gives access to the unlocked device.
type DeviceKeys interface {
	Keys() (*devicekeys.Store, error)
}

var (
	// ErrNoRelay is returned by SendMessage and ReceiveMessages without a relay.
	ErrNoRelay = errors.New("no relay configured")
	// ErrNoDevices is returned when a contact has published no bundles.
	ErrNoDevices = errors.New("contact has no published devices")

	log = logging.For("message")
)

// Service encrypts and decrypts on established sessions and moves envelopes
// through the relay.
//
//   - Send: one envelope per device of the recipient. Devices without a session
//     get one from a freshly fetched bundle first.
//   - Receive: fetch envelopes, decrypt each on its session (accepting a new
//     session from a prekey message), then ack everything handled.
type Service struct {
	device   DeviceKeys
	sessions Sessions
	relay    domain.RelayClient
	now      func() time.Time
}

// New constructs a message service. relay may be nil for offline use.
func New(device DeviceKeys, sessions Sessions, relay domain.RelayClient) *Service {
	return &Service{device: device, sessions: sessions, relay: relay, now: time.Now}
}

// Encrypt seals plaintext on session id.
func (s *Service) Encrypt(ctx context.Context, id domain.SessionID, plaintext []byte) (domain.Message, error) {
	var msg domain.Message
	err := s.sessions.WithSession(ctx, id, func(st *domain.SessionState) error {
		var err error
		msg, err = codec.Encrypt(st, plaintext)
		return err
	})
	return msg, err
}

// Decrypt opens msg on session id. The session is unchanged on failure.
func (s *Service) Decrypt(ctx context.Context, id domain.SessionID, msg domain.Message) ([]byte, error) {
	var pt []byte
	err := s.sessions.WithSession(ctx, id, func(st *domain.SessionState) error {
		var err error
		pt, err = codec.Decrypt(st, msg)
		return err
	})
	return pt, err
}

// SendMessage encrypts plaintext for every known device of to and posts one
// envelope per device.
func (s *Service) SendMessage(
	ctx context.Context,
	from domain.ContactID,
	to domain.ContactID,
	plaintext []byte,
) error {
	if s.relay == nil {
		return ErrNoRelay
	}
	keys, err := s.device.Keys()
	if err != nil {
		return err
	}
	ids, err := s.sessions.SessionsFor(to)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if ids, err = s.startSessions(ctx, to); err != nil {
			return err
		}
	}

	for _, id := range ids {
		_, toReg, err := id.Split()
		if err != nil {
			return err
		}
		msg, err := s.Encrypt(ctx, id, plaintext)
		if err != nil {
			return fmt.Errorf("encrypt for %s: %w", id, err)
		}
		env := domain.Envelope{
			From:      from,
			FromReg:   keys.RegistrationID(),
			To:        to,
			ToReg:     toReg,
			Message:   msg,
			Timestamp: s.now().Unix(),
		}
		if err := s.relay.SendMessage(ctx, env); err != nil {
			return fmt.Errorf("send to %s: %w", id, err)
		}
		log.WithFields(logrus.Fields{
			"session": id,
			"type":    msg.Type,
			"n":       msg.Header.MessageNumber,
		}).Debug("message sent")
	}
	return nil
}

// startSessions fetches one bundle per device of contact and starts a session
// with each.
func (s *Service) startSessions(ctx context.Context, contact domain.ContactID) ([]domain.SessionID, error) {
	bundles, err := s.relay.FetchBundles(ctx, contact)
	if err != nil {
		return nil, fmt.Errorf("fetch bundles for %q: %w", contact, err)
	}
	if len(bundles) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoDevices, contact)
	}
	ids := make([]domain.SessionID, 0, len(bundles))
	for _, b := range bundles {
		id, err := s.sessions.StartSession(ctx, contact, b)
		if err != nil {
			return nil, fmt.Errorf("start session with %q: %w", contact, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReceiveMessages fetches up to limit envelopes for me and decrypts them in
// order. Envelopes addressed to our other devices stay queued. Undecryptable
// envelopes are acknowledged too; their errors are joined into the returned
// error alongside the messages that did decrypt.
func (s *Service) ReceiveMessages(
	ctx context.Context,
	me domain.ContactID,
	limit int,
) ([]domain.DecryptedMessage, error) {
	if s.relay == nil {
		return nil, ErrNoRelay
	}
	keys, err := s.device.Keys()
	if err != nil {
		return nil, err
	}
	self := keys.RegistrationID()
	envs, err := s.relay.FetchMessages(ctx, me, limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.DecryptedMessage, 0, len(envs))
	handled := make([]string, 0, len(envs))
	var failures []error

	for _, env := range envs {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		if env.ToReg != self {
			// Sealed for another of our devices; leave it queued.
			continue
		}
		id, pt, err := s.open(ctx, env)
		if env.ID != "" {
			handled = append(handled, env.ID)
		}
		if err != nil {
			log.WithFields(logrus.Fields{
				"envelope": env.ID,
				"from":     env.From,
				"error":    err,
			}).Warn("dropping undecryptable envelope")
			failures = append(failures, fmt.Errorf("envelope %s from %q: %w", env.ID, env.From, err))
			continue
		}
		out = append(out, domain.DecryptedMessage{
			From:      env.From,
			Session:   id,
			Plaintext: pt,
			Timestamp: env.Timestamp,
		})
	}

	if len(handled) > 0 {
		if err := s.relay.AckMessages(ctx, me, handled); err != nil {
			failures = append(failures, fmt.Errorf("ack %d envelopes: %w", len(handled), err))
		}
	}
	return out, errors.Join(failures...)
}

// open routes env to its session. A prekey message carrying a handshake the
// session has not seen goes through AcceptSession, which replaces the session
// only if the message decrypts.
func (s *Service) open(ctx context.Context, env domain.Envelope) (domain.SessionID, []byte, error) {
	id := domain.NewSessionID(env.From, env.FromReg)
	msg := env.Message
	if msg.Type == domain.MessageTypePreKey && msg.PreKey != nil {
		if msg.PreKey.RegistrationID != env.FromReg {
			return "", nil, fmt.Errorf("%w: envelope and handshake name different devices", domain.ErrSession)
		}
		fresh, err := s.sessions.IsNewHandshake(id, *msg.PreKey)
		if err != nil {
			return "", nil, err
		}
		if fresh {
			return s.sessions.AcceptSession(ctx, env.From, msg)
		}
	}

	ok, err := s.sessions.HasSession(id)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, fmt.Errorf("%w: no session with %s", domain.ErrSession, id)
	}
	pt, err := s.Decrypt(ctx, id, msg)
	return id, pt, err
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
