// Package ratchet implements the Double Ratchet key schedule.
//
// The algorithm maintains a root key and two message chains (send and receive).
// Each message advances a KDF chain so that keys are forward secure. When the
// peer changes its DH ratchet public key, both sides derive new chain keys
// from a new root derived via DH.
//
// The package derives keys only; sealing and opening live in package codec.
// Out-of-order delivery is handled by caching skipped message keys, at most
// MaxSkip per header and MaxMessageKeys overall, evicting the oldest first.
//
// Concurrency: SessionState is NOT safe for concurrent use. Callers must
// serialise access per session.
package ratchet
