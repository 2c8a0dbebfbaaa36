// Package devicekeys owns one device's key material: the identity pair, the
// signed pre-key, the one-time pre-key pool and the registration id.
//
// One-time keys move through three states. They start in the pool, are
// issued into a bundle (IssueOneTimeKey) and are retired by the responder
// side of X3DH (RetireOneTimeKey). A key never returns to the pool, so the
// same one-time public key is never advertised twice.
package devicekeys
