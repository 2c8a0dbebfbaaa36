// Package store persists SecureChat device keys, ratchet sessions and contacts.
//
// The file stores serialise JSON under the configured home directory and
// replace files atomically. Device keys are sealed under a passphrase
// (scrypt + ChaCha20-Poly1305); session and contact files are written 0600.
// The memory store backs tests and throwaway runs.
//
// All stores are safe for concurrent use.
package store
