package bundle_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/domain"
	"securechat/internal/protocol/bundle"
	"securechat/internal/protocol/devicekeys"
)

func TestBuild_IssuesDistinctOneTimeKeys(t *testing.T) {
	store, err := devicekeys.Generate(devicekeys.MinOneTimePreKeys)
	require.NoError(t, err)

	first, err := bundle.Build(store)
	require.NoError(t, err)
	second, err := bundle.Build(store)
	require.NoError(t, err)

	require.NotNil(t, first.OneTimePreKey)
	require.NotNil(t, second.OneTimePreKey)
	assert.NotEqual(t, first.OneTimePreKey.Key, second.OneTimePreKey.Key)
	assert.Equal(t, devicekeys.MinOneTimePreKeys-2, store.Remaining())

	require.NoError(t, bundle.Verify(first))
	require.NoError(t, bundle.Verify(second))
}

func TestBuild_OmitsOneTimeKeyWhenExhausted(t *testing.T) {
	store, err := devicekeys.Generate(devicekeys.MinOneTimePreKeys)
	require.NoError(t, err)
	for store.Remaining() > 0 {
		store.IssueOneTimeKey()
	}

	b, err := bundle.Build(store)
	require.NoError(t, err)
	assert.Nil(t, b.OneTimePreKey)
	assert.NoError(t, bundle.Verify(b))
}

func TestBuild_UninitialisedStore(t *testing.T) {
	_, err := bundle.Build(nil)
	assert.True(t, errors.Is(err, domain.ErrPreKeyBundle))

	_, err = bundle.Build(devicekeys.Restore(domain.DeviceKeys{}))
	assert.True(t, errors.Is(err, domain.ErrPreKeyBundle))
}

func TestVerify_DetectsTampering(t *testing.T) {
	store, err := devicekeys.Generate(devicekeys.MinOneTimePreKeys)
	require.NoError(t, err)
	b, err := bundle.Build(store)
	require.NoError(t, err)

	spk := b
	spk.SignedPreKey[0] ^= 0xff
	assert.True(t, errors.Is(bundle.Verify(spk), domain.ErrPreKeyBundle))

	sig := b
	sig.SignedPreKeySignature[5] ^= 0x01
	assert.True(t, errors.Is(bundle.Verify(sig), domain.ErrPreKeyBundle))

	reg := b
	reg.RegistrationID = domain.MaxRegistrationID
	assert.True(t, errors.Is(bundle.Verify(reg), domain.ErrPreKeyBundle))
}
