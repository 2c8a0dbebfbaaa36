package crypto_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/crypto"
	"securechat/internal/domain"
)

func TestDH_Commutes(t *testing.T) {
	a, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ab, err := crypto.DH(a.Private, b.Public)
	require.NoError(t, err)
	ba, err := crypto.DH(b.Private, a.Public)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestDH_RejectsLowOrderPoint(t *testing.T) {
	a, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	_, err = crypto.DH(a.Private, domain.X25519Public{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCrypto))
}

func TestPublicFromPrivate_MatchesGenerated(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub, err := crypto.PublicFromPrivate(kp.Private)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, pub)
}

func TestSignVerify(t *testing.T) {
	id, err := crypto.NewIdentity()
	require.NoError(t, err)

	msg := []byte("signed pre-key")
	sig := crypto.SignEd25519(id.SigningPrivate, msg)
	assert.True(t, crypto.VerifyEd25519(id.SigningPublic, msg, sig))

	msg[0] ^= 1
	assert.False(t, crypto.VerifyEd25519(id.SigningPublic, msg, sig))
}

func TestHKDF_DeterministicAndInfoSeparated(t *testing.T) {
	ikm := []byte("input keying material")
	a, err := crypto.HKDF(ikm, nil, []byte("a"), 64)
	require.NoError(t, err)
	a2, err := crypto.HKDF(ikm, nil, []byte("a"), 64)
	require.NoError(t, err)
	b, err := crypto.HKDF(ikm, nil, []byte("b"), 64)
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, a2)
	assert.NotEqual(t, a, b)
}

func TestFingerprint_Format(t *testing.T) {
	fp := crypto.Fingerprint([]byte{1, 2, 3})
	assert.Regexp(t, `^[0-9a-f]{4}( [0-9a-f]{4}){4}$`, fp.String())
	assert.Equal(t, fp, crypto.Fingerprint([]byte{1, 2, 3}))
	assert.NotEqual(t, fp, crypto.Fingerprint([]byte{1, 2, 4}))
}
