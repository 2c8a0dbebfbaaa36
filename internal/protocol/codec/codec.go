package codec

import (
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"

	"securechat/internal/domain"
	"securechat/internal/logging"
	"securechat/internal/protocol/ratchet"
	"securechat/internal/util/memzero"
)

const (
	nonceSize = chacha20poly1305.NonceSize
	// Overhead is the ciphertext expansion: nonce plus Poly1305 tag.
	Overhead = nonceSize + chacha20poly1305.Overhead
)

var log = logging.For("codec")

// Encrypt seals plaintext under the next sending key. While the session still
// awaits its first reply the message carries the PreKeyMessage so the peer can
// complete the handshake from any of the initiator's early messages.
func Encrypt(st *domain.SessionState, plaintext []byte) (domain.Message, error) {
	if st == nil {
		return domain.Message{}, fmt.Errorf("%w: session not initialised", domain.ErrSession)
	}
	next := st.Clone()
	mk, header, err := ratchet.OnSend(next)
	if err != nil {
		ratchet.Wipe(next)
		return domain.Message{}, err
	}
	defer memzero.Zero(mk)

	ct, err := seal(mk, associatedData(next.AssociatedData, header), plaintext)
	if err != nil {
		ratchet.Wipe(next)
		return domain.Message{}, err
	}

	msg := domain.Message{
		Type:       domain.MessageTypeMessage,
		Header:     header,
		Ciphertext: ct,
	}
	if next.PendingPreKey != nil {
		pk := *next.PendingPreKey
		msg.Type = domain.MessageTypePreKey
		msg.PreKey = &pk
	}
	commit(st, next)
	return msg, nil
}

// Decrypt opens msg. The session is only updated when authentication
// succeeds; a forged or corrupted message leaves st untouched.
func Decrypt(st *domain.SessionState, msg domain.Message) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: session not initialised", domain.ErrSession)
	}
	if len(msg.Ciphertext) < Overhead {
		return nil, fmt.Errorf("%w: authentication failed", domain.ErrCrypto)
	}

	next := st.Clone()
	mk, err := ratchet.OnReceive(next, msg.Header)
	if err != nil {
		ratchet.Wipe(next)
		return nil, err
	}
	defer memzero.Zero(mk)

	pt, err := open(mk, associatedData(next.AssociatedData, msg.Header), msg.Ciphertext)
	if err != nil {
		log.WithFields(logrus.Fields{
			"n":  msg.Header.MessageNumber,
			"pn": msg.Header.PreviousChainLength,
		}).Debug("message rejected")
		ratchet.Wipe(next)
		return nil, fmt.Errorf("%w: authentication failed", domain.ErrCrypto)
	}

	// A reply proves the peer holds the session.
	next.PendingPreKey = nil
	commit(st, next)
	return pt, nil
}

// commit installs next into st and wipes the secrets it replaced.
func commit(st, next *domain.SessionState) {
	old := *st
	*st = *next
	ratchet.Wipe(&old)
}

func seal(mk, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCrypto, err)
	}
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", domain.ErrCrypto, err)
	}
	return aead.Seal(out, out[:nonceSize], plaintext, ad), nil
}

func open(mk, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], ad)
}

// associatedData binds the session AD and the header into the tag.
func associatedData(sessionAD []byte, h domain.Header) []byte {
	hb := h.Bytes()
	out := make([]byte, 0, len(sessionAD)+len(hb))
	out = append(out, sessionAD...)
	return append(out, hb...)
}
