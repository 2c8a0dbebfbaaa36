// Package codec turns ratchet message keys into sealed messages.
//
// Ciphertext layout is a random 12-byte nonce followed by the
// ChaCha20-Poly1305 output. The associated data is the session's identity
// binding followed by the encoded header, so a header altered in transit fails
// authentication.
package codec
