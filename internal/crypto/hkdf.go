package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF expands ikm into outLen bytes with HKDF-SHA256 (RFC 5869). A nil salt
// is treated as 32 zero bytes.
func HKDF(ikm, salt, info []byte, outLen int) ([]byte, error) {
	if salt == nil {
		salt = make([]byte, sha256.Size)
	}
	out := make([]byte, outLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), out); err != nil {
		return nil, err
	}
	return out, nil
}
