package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"securechat/internal/domain"
)

const (
	fingerprintLabel = "SecureChat_Fingerprint"
	fingerprintBytes = 10
	fingerprintGroup = 4
)

// Fingerprint returns a short display form of a public key: the first 10 bytes
// of a labelled SHA-256, hex encoded in groups of four, e.g. "1a2b 3c4d ...".
func Fingerprint(pub []byte) domain.Fingerprint {
	h := sha256.New()
	h.Write([]byte(fingerprintLabel))
	h.Write(pub)
	digits := hex.EncodeToString(h.Sum(nil)[:fingerprintBytes])

	var b strings.Builder
	for i := 0; i < len(digits); i += fingerprintGroup {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+fingerprintGroup])
	}
	return domain.Fingerprint(b.String())
}
