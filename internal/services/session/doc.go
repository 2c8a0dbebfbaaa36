// Package session is the registry of ratchet sessions and contacts.
//
// It runs the X3DH handshake in either role, links each resulting session to
// its contact and device, and serialises every state change per session.
// Sessions with different peers never contend with each other.
package session
