package crypto

import (
	"fmt"

	"securechat/internal/domain"
)

// NewIdentity generates a fresh X25519 key pair and an independent Ed25519
// signing pair.
func NewIdentity() (domain.IdentityKeyPair, error) {
	dh, err := GenerateKeyPair()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	edPriv, edPub, err := GenerateEd25519()
	if err != nil {
		return domain.IdentityKeyPair{}, fmt.Errorf("%w: generate signing key: %v", domain.ErrCrypto, err)
	}
	return domain.IdentityKeyPair{
		DH:             dh,
		SigningPublic:  edPub,
		SigningPrivate: edPriv,
	}, nil
}
