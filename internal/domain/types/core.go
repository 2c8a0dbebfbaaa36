package types

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxRegistrationID bounds registration identifiers to [0, MaxRegistrationID).
const MaxRegistrationID = 16384

// ContactID identifies a conversation partner (a user, possibly with many devices).
type ContactID string

// String returns the string form of the contact identifier.
func (id ContactID) String() string { return string(id) }

// RegistrationID identifies one device of a contact.
type RegistrationID uint32

// Valid reports whether the id lies in [0, MaxRegistrationID).
func (id RegistrationID) Valid() bool { return id < MaxRegistrationID }

// SignedPreKeyID identifies a signed pre-key.
type SignedPreKeyID uint32

// OneTimePreKeyID identifies a one-time pre-key.
type OneTimePreKeyID uint32

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// SessionID names one ratchet session: a contact plus one of its devices.
type SessionID string

// NewSessionID joins a contact and a registration id.
func NewSessionID(contact ContactID, reg RegistrationID) SessionID {
	return SessionID(fmt.Sprintf("%s:%d", contact, reg))
}

// String returns the string form of the session identifier.
func (id SessionID) String() string { return string(id) }

// Split returns the contact and registration id encoded in the session id.
func (id SessionID) Split() (ContactID, RegistrationID, error) {
	s := string(id)
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return "", 0, fmt.Errorf("malformed session id %q", s)
	}
	n, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("malformed session id %q: %w", s, err)
	}
	return ContactID(s[:i]), RegistrationID(n), nil
}
