package ratchet

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/sirupsen/logrus"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/logging"
	"securechat/internal/util/memzero"
)

const (
	// DefaultMaxSkip bounds how many message keys one header may force us to cache.
	DefaultMaxSkip = 1000
	// DefaultMaxMessageKeys bounds the whole skipped-key cache.
	DefaultMaxMessageKeys = 2000

	maxRetiredRemoteKeys = 8
)

var (
	rootInfo = []byte("SecureChat_Ratchet")

	messageKeySeed = []byte{0x01}
	chainKeySeed   = []byte{0x02}
)

var log = logging.For("ratchet")

// DeriveNextKey performs one symmetric-chain step. The caller must replace
// chainKey with nextChainKey and never derive from chainKey again.
func DeriveNextKey(chainKey []byte) (messageKey, nextChainKey []byte) {
	m := hmac.New(sha256.New, chainKey)
	m.Write(messageKeySeed)
	messageKey = m.Sum(nil)

	c := hmac.New(sha256.New, chainKey)
	c.Write(chainKeySeed)
	nextChainKey = c.Sum(nil)
	return messageKey, nextChainKey
}

// OnSend derives the next sending message key and the header that travels with
// it. A responder that has not sent yet performs its first DH step here.
func OnSend(st *domain.SessionState) ([]byte, domain.Header, error) {
	if err := checkInitialised(st); err != nil {
		return nil, domain.Header{}, err
	}
	if st.Sending == nil {
		if st.Receiving == nil || st.Receiving.RemoteRatchetKey.IsZero() {
			return nil, domain.Header{}, fmt.Errorf("%w: no remote ratchet key yet; receive a message first", domain.ErrSession)
		}
		if err := sendingStep(st, st.Receiving.RemoteRatchetKey); err != nil {
			return nil, domain.Header{}, err
		}
	}

	s := st.Sending
	mk, next := DeriveNextKey(s.ChainKey)
	header := domain.Header{
		PublicKey:           s.RatchetKeyPair.Public,
		PreviousChainLength: st.PreviousSendingChainLength,
		MessageNumber:       s.MessageNumber,
	}
	memzero.Zero(s.ChainKey)
	s.ChainKey = next
	s.MessageNumber++
	return mk, header, nil
}

// OnReceive returns the message key for header, performing a DH-ratchet step
// when the header carries a new remote ratchet key. st is mutated even when an
// error is returned; callers that need rollback work on a Clone.
func OnReceive(st *domain.SessionState, header domain.Header) ([]byte, error) {
	if err := checkInitialised(st); err != nil {
		return nil, err
	}
	if header.PublicKey.IsZero() {
		return nil, fmt.Errorf("%w: header carries no ratchet key", domain.ErrSession)
	}

	if mk, ok := takeSkipped(st, header.PublicKey, header.MessageNumber); ok {
		return mk, nil
	}

	switch r := st.Receiving; {
	case r != nil && r.RemoteRatchetKey == header.PublicKey:
		if header.MessageNumber < r.MessageNumber {
			return nil, fmt.Errorf("%w: message %d already received", domain.ErrSession, header.MessageNumber)
		}
	case r != nil && r.RemoteRatchetKey.IsZero():
		// Responder's chain from X3DH: the first header names the initiator's key.
		r.RemoteRatchetKey = header.PublicKey
	default:
		if isRetired(st, header.PublicKey) {
			return nil, fmt.Errorf("%w: message on a retired chain already received", domain.ErrSession)
		}
		if err := skipTo(st, header.PreviousChainLength); err != nil {
			return nil, err
		}
		if err := dhRatchet(st, header.PublicKey); err != nil {
			return nil, err
		}
	}

	if err := skipTo(st, header.MessageNumber); err != nil {
		return nil, err
	}
	r := st.Receiving
	mk, next := DeriveNextKey(r.ChainKey)
	memzero.Zero(r.ChainKey)
	r.ChainKey = next
	r.MessageNumber++
	return mk, nil
}

// dhRatchet derives a new receiving chain from the remote key, then a new
// sending chain from a fresh key pair.
func dhRatchet(st *domain.SessionState, remote domain.X25519Public) error {
	if st.Sending == nil {
		return fmt.Errorf("%w: unexpected ratchet key before our first reply", domain.ErrSession)
	}
	dh, err := crypto.DH(st.Sending.RatchetKeyPair.Private, remote)
	if err != nil {
		return err
	}
	rk, ck, err := RootStep(st.RootKey, dh[:])
	memzero.Zero(dh[:])
	if err != nil {
		return err
	}

	if st.Receiving != nil {
		if !st.Receiving.RemoteRatchetKey.IsZero() {
			retire(st, st.Receiving.RemoteRatchetKey)
		}
		memzero.Zero(st.Receiving.ChainKey)
	}
	memzero.Zero(st.RootKey)
	st.RootKey = rk
	st.Receiving = &domain.ReceivingChain{ChainKey: ck, RemoteRatchetKey: remote}

	log.WithFields(logrus.Fields{
		"remote":                crypto.Fingerprint(remote.Slice()),
		"previous_chain_length": st.Sending.MessageNumber,
	}).Debug("dh ratchet step")
	return sendingStep(st, remote)
}

// sendingStep replaces the sending chain with one keyed by a fresh ratchet pair.
func sendingStep(st *domain.SessionState, remote domain.X25519Public) error {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	dh, err := crypto.DH(kp.Private, remote)
	if err != nil {
		return err
	}
	rk, ck, err := RootStep(st.RootKey, dh[:])
	memzero.Zero(dh[:])
	if err != nil {
		return err
	}

	if st.Sending != nil {
		st.PreviousSendingChainLength = st.Sending.MessageNumber
		memzero.Zero(st.Sending.ChainKey)
		memzero.Zero(st.Sending.RatchetKeyPair.Private[:])
	}
	memzero.Zero(st.RootKey)
	st.RootKey = rk
	st.Sending = &domain.SendingChain{ChainKey: ck, RatchetKeyPair: kp}
	return nil
}

// RootStep folds a DH output into the root key, returning the new root key
// and a fresh chain key.
func RootStep(rootKey, dh []byte) (newRootKey, chainKey []byte, err error) {
	okm, err := crypto.HKDF(dh, rootKey, rootInfo, 2*domain.KeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: root kdf: %v", domain.ErrCrypto, err)
	}
	return okm[:domain.KeySize], okm[domain.KeySize:], nil
}

// skipTo caches receiving keys up to (not including) until.
func skipTo(st *domain.SessionState, until uint32) error {
	r := st.Receiving
	if r == nil || until <= r.MessageNumber {
		return nil
	}
	if until-r.MessageNumber > maxSkip(st) {
		return fmt.Errorf("%w: too many skipped messages (%d > %d)",
			domain.ErrSession, until-r.MessageNumber, maxSkip(st))
	}
	for r.MessageNumber < until {
		mk, next := DeriveNextKey(r.ChainKey)
		memzero.Zero(r.ChainKey)
		r.ChainKey = next
		storeSkipped(st, domain.SkippedKey{
			RatchetKey:    r.RemoteRatchetKey,
			MessageNumber: r.MessageNumber,
			MessageKey:    mk,
		})
		r.MessageNumber++
	}
	return nil
}

// storeSkipped appends k and evicts the oldest entries beyond the cache bound.
func storeSkipped(st *domain.SessionState, k domain.SkippedKey) {
	st.Skipped = append(st.Skipped, k)
	limit := maxMessageKeys(st)
	for len(st.Skipped) > limit {
		memzero.Zero(st.Skipped[0].MessageKey)
		st.Skipped = st.Skipped[1:]
	}
}

// takeSkipped removes and returns the cached key for (remote, n).
func takeSkipped(st *domain.SessionState, remote domain.X25519Public, n uint32) ([]byte, bool) {
	for i, k := range st.Skipped {
		if k.RatchetKey == remote && k.MessageNumber == n {
			st.Skipped = append(st.Skipped[:i:i], st.Skipped[i+1:]...)
			return k.MessageKey, true
		}
	}
	return nil, false
}

func retire(st *domain.SessionState, remote domain.X25519Public) {
	st.RetiredRemoteKeys = append(st.RetiredRemoteKeys, remote)
	if n := len(st.RetiredRemoteKeys); n > maxRetiredRemoteKeys {
		st.RetiredRemoteKeys = st.RetiredRemoteKeys[n-maxRetiredRemoteKeys:]
	}
}

func isRetired(st *domain.SessionState, remote domain.X25519Public) bool {
	for _, k := range st.RetiredRemoteKeys {
		if k == remote {
			return true
		}
	}
	return false
}

func checkInitialised(st *domain.SessionState) error {
	if st == nil || len(st.RootKey) != domain.KeySize || (st.Sending == nil && st.Receiving == nil) {
		return fmt.Errorf("%w: session not initialised", domain.ErrSession)
	}
	return nil
}

func maxSkip(st *domain.SessionState) uint32 {
	if st.MaxSkip == 0 {
		return DefaultMaxSkip
	}
	return st.MaxSkip
}

func maxMessageKeys(st *domain.SessionState) int {
	if st.MaxMessageKeys <= 0 {
		return DefaultMaxMessageKeys
	}
	return st.MaxMessageKeys
}

// Wipe zeroes every secret held by st: root and chain keys, the sending
// ratchet private key and cached message keys. st must not share buffers with
// a state that is still in use.
func Wipe(st *domain.SessionState) {
	if st == nil {
		return
	}
	memzero.Zero(st.RootKey)
	if st.Sending != nil {
		memzero.ZeroAll(st.Sending.ChainKey, st.Sending.RatchetKeyPair.Private[:])
	}
	if st.Receiving != nil {
		memzero.Zero(st.Receiving.ChainKey)
	}
	for i := range st.Skipped {
		memzero.Zero(st.Skipped[i].MessageKey)
	}
	st.Skipped = nil
}
