package wire_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/domain"
	"securechat/internal/wire"
)

func sampleEnvelope() domain.Envelope {
	opk := domain.OneTimePreKeyID(4)
	return domain.Envelope{
		ID:      "e1",
		From:    "alice",
		FromReg: 17,
		To:      "bob",
		ToReg:   99,
		Message: domain.Message{
			Type: domain.MessageTypePreKey,
			Header: domain.Header{
				PublicKey:           domain.X25519Public{1, 2, 3},
				PreviousChainLength: 2,
				MessageNumber:       5,
			},
			Ciphertext: []byte("sealed-bytes-sealed-bytes-sealed"),
			PreKey: &domain.PreKeyMessage{
				IdentityKey:     domain.X25519Public{7},
				SigningKey:      domain.Ed25519Public{8},
				EphemeralKey:    domain.X25519Public{9},
				SignedPreKeyID:  3,
				OneTimePreKeyID: &opk,
				RegistrationID:  17,
			},
		},
		Timestamp: 1700000000,
	}
}

func TestCodecsRoundTrip(t *testing.T) {
	for _, format := range []string{"json", "cbor"} {
		t.Run(format, func(t *testing.T) {
			c, err := wire.ForFormat(format)
			require.NoError(t, err)

			in := sampleEnvelope()
			b, err := c.Marshal(in)
			require.NoError(t, err)

			var out domain.Envelope
			require.NoError(t, c.Unmarshal(b, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestCBOR_SmallerThanJSON(t *testing.T) {
	j, err := wire.JSON{}.Marshal(sampleEnvelope())
	require.NoError(t, err)
	c, err := wire.CBOR{}.Marshal(sampleEnvelope())
	require.NoError(t, err)
	assert.Less(t, len(c), len(j))
}

func TestJSON_MessageLayout(t *testing.T) {
	b, err := wire.JSON{}.Marshal(sampleEnvelope().Message)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "prekey", m["type"])
	assert.Contains(t, m, "ciphertext")
	assert.Contains(t, m, "preKey")

	header := m["header"].(map[string]any)
	assert.Contains(t, header, "publicKey")
	assert.EqualValues(t, 2, header["numberOfMessagesInPreviousChain"])
	assert.EqualValues(t, 5, header["messageNumber"])
}

func TestForFormat_Unknown(t *testing.T) {
	_, err := wire.ForFormat("xml")
	assert.Error(t, err)
}

func TestForContentType(t *testing.T) {
	assert.Equal(t, wire.ContentTypeCBOR, wire.ForContentType("application/cbor").ContentType())
	assert.Equal(t, wire.ContentTypeJSON, wire.ForContentType("application/json; charset=utf-8").ContentType())
	assert.Equal(t, wire.ContentTypeJSON, wire.ForContentType("").ContentType())
}
