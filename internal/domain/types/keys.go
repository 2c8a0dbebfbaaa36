package types

import (
	"encoding/base64"
	"fmt"
)

// KeySize is the length of every X25519 key, root key, chain key and message key.
const KeySize = 32

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is unset.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// MarshalText encodes the key as standard base64.
func (p X25519Public) MarshalText() ([]byte, error) { return marshalB64(p[:]) }

// UnmarshalText decodes a base64 key of exactly 32 bytes.
func (p *X25519Public) UnmarshalText(b []byte) error { return unmarshalB64(b, p[:], "X25519 public") }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// MarshalText encodes the key as standard base64.
func (k X25519Private) MarshalText() ([]byte, error) { return marshalB64(k[:]) }

// UnmarshalText decodes a base64 key of exactly 32 bytes.
func (k *X25519Private) UnmarshalText(b []byte) error {
	return unmarshalB64(b, k[:], "X25519 private")
}

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// MarshalText encodes the key as standard base64.
func (p Ed25519Public) MarshalText() ([]byte, error) { return marshalB64(p[:]) }

// UnmarshalText decodes a base64 key of exactly 32 bytes.
func (p *Ed25519Public) UnmarshalText(b []byte) error {
	return unmarshalB64(b, p[:], "Ed25519 public")
}

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// MarshalText encodes the key as standard base64.
func (k Ed25519Private) MarshalText() ([]byte, error) { return marshalB64(k[:]) }

// UnmarshalText decodes a base64 key of exactly 64 bytes.
func (k *Ed25519Private) UnmarshalText(b []byte) error {
	return unmarshalB64(b, k[:], "Ed25519 private")
}

// Signature is a detached Ed25519 signature.
type Signature [64]byte

// Slice returns the signature as a []byte.
func (s Signature) Slice() []byte { return s[:] }

// MarshalText encodes the signature as standard base64.
func (s Signature) MarshalText() ([]byte, error) { return marshalB64(s[:]) }

// UnmarshalText decodes a base64 signature of exactly 64 bytes.
func (s *Signature) UnmarshalText(b []byte) error { return unmarshalB64(b, s[:], "signature") }

// KeyPair is an X25519 Diffie-Hellman key pair.
type KeyPair struct {
	Public  X25519Public  `json:"publicKey"`
	Private X25519Private `json:"secretKey"`
}

// IdentityKeyPair is a device's long-term identity: a DH pair for X3DH and an
// independent Ed25519 pair that signs the signed pre-key.
type IdentityKeyPair struct {
	DH             KeyPair        `json:"dh"`
	SigningPublic  Ed25519Public  `json:"signingPublic"`
	SigningPrivate Ed25519Private `json:"signingPrivate"`
}

func marshalB64(b []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out, nil
}

func unmarshalB64(in, dst []byte, what string) error {
	buf := make([]byte, base64.StdEncoding.DecodedLen(len(in)))
	n, err := base64.StdEncoding.Decode(buf, in)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n != len(dst) {
		return fmt.Errorf("%s: want %d bytes, got %d", what, len(dst), n)
	}
	copy(dst, buf[:n])
	return nil
}
