package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"securechat/internal/domain"
	"securechat/internal/util/memzero"
)

const sealedFormatVersion = 1

// Passphrase KDF names as recorded in the device file.
const (
	KDFScrypt   = "scrypt"
	KDFArgon2id = "argon2id"
)

// ErrWrongPassphrase is returned when the device file cannot be opened.
var ErrWrongPassphrase = fmt.Errorf("%w: wrong passphrase or corrupted device file", domain.ErrCrypto)

// KDFParams select the passphrase KDF and its cost. They are recorded
// alongside each blob, so files written with other settings still open.
type KDFParams struct {
	Name string // KDFScrypt when empty

	// scrypt
	N, R, P int

	// argon2id
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

var (
	// DefaultKDFParams is the interactive-login cost recommended for scrypt.
	DefaultKDFParams = KDFParams{Name: KDFScrypt, N: 1 << 15, R: 8, P: 1}
	// Argon2idKDFParams is the RFC 9106 second recommended option.
	Argon2idKDFParams = KDFParams{Name: KDFArgon2id, Time: 3, Memory: 64 * 1024, Threads: 4}
)

// KDFParamsFor maps a configured KDF name to its default parameters.
func KDFParamsFor(name string) (KDFParams, error) {
	switch name {
	case "", KDFScrypt:
		return DefaultKDFParams, nil
	case KDFArgon2id:
		return Argon2idKDFParams, nil
	}
	return KDFParams{}, fmt.Errorf("unknown device kdf %q (want %s or %s)", name, KDFScrypt, KDFArgon2id)
}

func (p KDFParams) derive(passphrase string, salt []byte) ([]byte, error) {
	switch p.Name {
	case "", KDFScrypt:
		return scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
	case KDFArgon2id:
		if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
			return nil, fmt.Errorf("invalid argon2id parameters t=%d m=%d p=%d", p.Time, p.Memory, p.Threads)
		}
		return argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize), nil
	}
	return nil, fmt.Errorf("unknown device kdf %q", p.Name)
}

// sealed is the on-disk JSON wrapper around the encrypted device keys.
type sealed struct {
	V       int    `json:"v"`
	KDF     string `json:"kdf,omitempty"`
	Salt    []byte `json:"salt"`
	N       int    `json:"scrypt_N,omitempty"`
	R       int    `json:"scrypt_r,omitempty"`
	P       int    `json:"scrypt_p,omitempty"`
	Time    uint32 `json:"argon2_t,omitempty"`
	Memory  uint32 `json:"argon2_m,omitempty"`
	Threads uint8  `json:"argon2_p,omitempty"`
	Nonce   []byte `json:"nonce"`
	Cipher  []byte `json:"cipher"`
}

func (s sealed) params() KDFParams {
	return KDFParams{
		Name: s.KDF,
		N:    s.N, R: s.R, P: s.P,
		Time: s.Time, Memory: s.Memory, Threads: s.Threads,
	}
}

func seal(passphrase string, raw []byte, params KDFParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := params.derive(passphrase, salt[:])
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	name := params.Name
	if name == "" {
		name = KDFScrypt
	}
	return json.Marshal(sealed{
		V:       sealedFormatVersion,
		KDF:     name,
		Salt:    salt[:],
		N:       params.N,
		R:       params.R,
		P:       params.P,
		Time:    params.Time,
		Memory:  params.Memory,
		Threads: params.Threads,
		Nonce:   nonce,
		Cipher:  aead.Seal(nil, nonce, raw, salt[:]),
	})
}

func open(passphrase string, b []byte) ([]byte, error) {
	var s sealed
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, ErrWrongPassphrase
	}
	if s.V > sealedFormatVersion {
		return nil, fmt.Errorf("unsupported device file version %d", s.V)
	}
	key, err := s.params().derive(passphrase, s.Salt)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	pt, err := aead.Open(nil, s.Nonce, s.Cipher, s.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
