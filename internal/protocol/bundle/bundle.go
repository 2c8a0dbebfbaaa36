package bundle

import (
	"fmt"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/protocol/devicekeys"
)

// Build packages the device's public material into a publishable bundle. Each
// call issues at most one one-time key; on exhaustion the bundle carries none.
func Build(store *devicekeys.Store) (domain.PreKeyBundle, error) {
	if store == nil {
		return domain.PreKeyBundle{}, fmt.Errorf("%w: device keys not initialised", domain.ErrPreKeyBundle)
	}
	identity := store.Identity()
	if identity.DH.Public.IsZero() {
		return domain.PreKeyBundle{}, fmt.Errorf("%w: device keys not initialised", domain.ErrPreKeyBundle)
	}
	spk := store.SignedPreKey()

	b := domain.PreKeyBundle{
		IdentityKey:           identity.DH.Public,
		SigningKey:            identity.SigningPublic,
		SignedPreKeyID:        spk.ID,
		SignedPreKey:          spk.KeyPair.Public,
		SignedPreKeySignature: spk.Signature,
		RegistrationID:        store.RegistrationID(),
	}
	if otk, ok := store.IssueOneTimeKey(); ok {
		b.OneTimePreKey = &domain.OneTimePreKeyPublic{ID: otk.ID, Key: otk.KeyPair.Public}
	}
	return b, nil
}

// Verify checks the bundle is well formed and that its signed pre-key was
// signed by its identity signing key.
func Verify(b domain.PreKeyBundle) error {
	if b.IdentityKey.IsZero() || b.SignedPreKey.IsZero() {
		return fmt.Errorf("%w: missing identity or signed pre-key", domain.ErrPreKeyBundle)
	}
	if !b.RegistrationID.Valid() {
		return fmt.Errorf("%w: registration id %d out of range", domain.ErrPreKeyBundle, b.RegistrationID)
	}
	if b.OneTimePreKey != nil && b.OneTimePreKey.Key.IsZero() {
		return fmt.Errorf("%w: empty one-time pre-key", domain.ErrPreKeyBundle)
	}
	if !crypto.VerifyEd25519(b.SigningKey, b.SignedPreKey.Slice(), b.SignedPreKeySignature) {
		return fmt.Errorf("%w: signed pre-key signature does not verify", domain.ErrPreKeyBundle)
	}
	return nil
}
