package domain

import "errors"

// Error classes. Every failure surfaced by the protocol packages wraps exactly
// one of these; match with errors.Is.
var (
	// ErrPreKeyBundle marks a malformed or unverifiable bundle. Fetch a fresh one.
	ErrPreKeyBundle = errors.New("pre-key bundle error")
	// ErrSession marks missing handshake material, an exceeded skip bound, a
	// replayed message slot or an unknown session.
	ErrSession = errors.New("session error")
	// ErrCrypto marks an authentication failure or uninitialised device keys.
	ErrCrypto = errors.New("crypto error")
)
