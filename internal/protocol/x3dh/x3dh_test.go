package x3dh_test

import (
	"bytes"
	"errors"
	"testing"

	"securechat/internal/domain"
	"securechat/internal/protocol/bundle"
	"securechat/internal/protocol/devicekeys"
	"securechat/internal/protocol/x3dh"
)

// makeDevice provisions a device with the minimum one-time pool.
func makeDevice(t *testing.T) *devicekeys.Store {
	t.Helper()
	s, err := devicekeys.Generate(devicekeys.MinOneTimePreKeys)
	if err != nil {
		t.Fatalf("devicekeys.Generate: %v", err)
	}
	return s
}

func TestInitiatorAndResponder_WithOneTimePreKey(t *testing.T) {
	// Bob publishes, Alice initiates.
	alice := makeDevice(t)
	bob := makeDevice(t)

	b, err := bundle.Build(bob)
	if err != nil {
		t.Fatalf("bundle.Build: %v", err)
	}
	if b.OneTimePreKey == nil {
		t.Fatal("bundle carries no one-time pre-key")
	}

	aliceState, pm, err := x3dh.Initiate(alice, b)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if pm.OneTimePreKeyID == nil || *pm.OneTimePreKeyID != b.OneTimePreKey.ID {
		t.Fatalf("pre-key message does not name the issued one-time key")
	}

	bobState, err := x3dh.Respond(bob, pm)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !bytes.Equal(aliceState.RootKey, bobState.RootKey) {
		t.Fatal("root keys differ (with OPK)")
	}
	if !bytes.Equal(aliceState.Sending.ChainKey, bobState.Receiving.ChainKey) {
		t.Fatal("initial chain keys differ (with OPK)")
	}
	if !bytes.Equal(aliceState.AssociatedData, bobState.AssociatedData) {
		t.Fatal("associated data differs")
	}
	if aliceState.Receiving != nil || bobState.Sending != nil {
		t.Fatal("unexpected chain present after handshake")
	}
	if bobState.HandshakeKey != pm.EphemeralKey || !aliceState.HandshakeKey.IsZero() {
		t.Fatal("handshake key not recorded on the responder only")
	}
}

func TestInitiatorAndResponder_NoOneTimePreKey(t *testing.T) {
	alice := makeDevice(t)
	bob := makeDevice(t)
	for bob.Remaining() > 0 {
		bob.IssueOneTimeKey()
	}

	b, err := bundle.Build(bob)
	if err != nil {
		t.Fatalf("bundle.Build: %v", err)
	}
	if b.OneTimePreKey != nil {
		t.Fatal("expected exhausted bundle")
	}

	aliceState, pm, err := x3dh.Initiate(alice, b)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	bobState, err := x3dh.Respond(bob, pm)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !bytes.Equal(aliceState.RootKey, bobState.RootKey) {
		t.Fatal("root keys differ (no OPK)")
	}
	if !bytes.Equal(aliceState.Sending.ChainKey, bobState.Receiving.ChainKey) {
		t.Fatal("chain keys differ (no OPK)")
	}
}

func TestRespond_RetiresOneTimePreKey(t *testing.T) {
	alice := makeDevice(t)
	bob := makeDevice(t)

	b, err := bundle.Build(bob)
	if err != nil {
		t.Fatalf("bundle.Build: %v", err)
	}
	_, pm, err := x3dh.Initiate(alice, b)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := x3dh.Respond(bob, pm); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, err := x3dh.Respond(bob, pm); !errors.Is(err, domain.ErrSession) {
		t.Fatalf("want ErrSession on reuse of one-time key, got %v", err)
	}
}

func TestInitiate_TamperedBundleFailsBeforeDH(t *testing.T) {
	alice := makeDevice(t)
	bob := makeDevice(t)

	b, err := bundle.Build(bob)
	if err != nil {
		t.Fatalf("bundle.Build: %v", err)
	}
	// A zero key would make DH fail with ErrCrypto; getting ErrPreKeyBundle
	// shows verification ran first.
	b.SignedPreKey = domain.X25519Public{}
	b.SignedPreKey[0] = 1

	_, _, err = x3dh.Initiate(alice, b)
	if !errors.Is(err, domain.ErrPreKeyBundle) {
		t.Fatalf("want ErrPreKeyBundle, got %v", err)
	}
}

func TestRespond_UnknownSignedPreKey(t *testing.T) {
	alice := makeDevice(t)
	bob := makeDevice(t)

	b, err := bundle.Build(bob)
	if err != nil {
		t.Fatalf("bundle.Build: %v", err)
	}
	_, pm, err := x3dh.Initiate(alice, b)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	pm.SignedPreKeyID++
	if _, err := x3dh.Respond(bob, pm); !errors.Is(err, domain.ErrSession) {
		t.Fatalf("want ErrSession, got %v", err)
	}
}

func TestHandshake_NilStore(t *testing.T) {
	if _, _, err := x3dh.Initiate(nil, domain.PreKeyBundle{}); !errors.Is(err, domain.ErrSession) {
		t.Fatalf("Initiate(nil): want ErrSession, got %v", err)
	}
	if _, err := x3dh.Respond(nil, domain.PreKeyMessage{}); !errors.Is(err, domain.ErrSession) {
		t.Fatalf("Respond(nil): want ErrSession, got %v", err)
	}
}
