package x3dh

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/logging"
	"securechat/internal/protocol/bundle"
	"securechat/internal/protocol/devicekeys"
	"securechat/internal/util/memzero"
)

// kdfInfo is the HKDF info label; both roles must use the same value.
var kdfInfo = []byte("SecureChat_X3DH")

var log = logging.For("x3dh")

// Initiate runs X3DH against a peer bundle. The bundle signature is checked
// before any DH is computed. The returned state has a sending chain seeded
// from the handshake and no receiving chain; the PreKeyMessage must travel
// with the first messages so the peer can call Respond.
func Initiate(
	local *devicekeys.Store,
	peer domain.PreKeyBundle,
) (*domain.SessionState, domain.PreKeyMessage, error) {
	if local == nil {
		return nil, domain.PreKeyMessage{}, fmt.Errorf("%w: local device keys missing", domain.ErrSession)
	}
	if err := bundle.Verify(peer); err != nil {
		return nil, domain.PreKeyMessage{}, err
	}
	identity := local.Identity()

	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, domain.PreKeyMessage{}, err
	}
	defer memzero.Zero(ephemeral.Private[:])

	var opk *domain.X25519Public
	var opkID *domain.OneTimePreKeyID
	if peer.OneTimePreKey != nil {
		key, id := peer.OneTimePreKey.Key, peer.OneTimePreKey.ID
		opk, opkID = &key, &id
	}

	rootKey, chainKey, err := agreeInitiator(
		identity.DH.Private, ephemeral.Private,
		peer.IdentityKey, peer.SignedPreKey, opk,
	)
	if err != nil {
		return nil, domain.PreKeyMessage{}, err
	}

	ratchetKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, domain.PreKeyMessage{}, err
	}

	pm := domain.PreKeyMessage{
		IdentityKey:     identity.DH.Public,
		SigningKey:      identity.SigningPublic,
		EphemeralKey:    ephemeral.Public,
		SignedPreKeyID:  peer.SignedPreKeyID,
		OneTimePreKeyID: opkID,
		RegistrationID:  local.RegistrationID(),
	}
	pending := pm
	st := &domain.SessionState{
		RootKey: rootKey,
		Sending: &domain.SendingChain{
			ChainKey:       chainKey,
			RatchetKeyPair: ratchetKey,
		},
		AssociatedData: associatedData(identity.DH.Public, peer.IdentityKey),
		PendingPreKey:  &pending,
	}

	log.WithFields(logrus.Fields{
		"role":          "initiator",
		"peer":          crypto.Fingerprint(peer.IdentityKey.Slice()),
		"one_time_used": opk != nil,
	}).Debug("x3dh complete")
	return st, pm, nil
}

// Respond mirrors Initiate from the bundle owner's side. A one-time key named
// by the message is retired from local and cannot be used again.
func Respond(local *devicekeys.Store, pm domain.PreKeyMessage) (*domain.SessionState, error) {
	if local == nil {
		return nil, fmt.Errorf("%w: local device keys missing", domain.ErrSession)
	}
	if pm.IdentityKey.IsZero() || pm.EphemeralKey.IsZero() {
		return nil, fmt.Errorf("%w: pre-key message lacks identity or ephemeral key", domain.ErrSession)
	}
	identity := local.Identity()
	spk := local.SignedPreKey()
	if spk.ID != pm.SignedPreKeyID {
		return nil, fmt.Errorf("%w: signed pre-key %d not found", domain.ErrSession, pm.SignedPreKeyID)
	}

	var opkPriv *domain.X25519Private
	if pm.OneTimePreKeyID != nil {
		kp, err := local.RetireOneTimeKey(*pm.OneTimePreKeyID)
		if err != nil {
			return nil, err
		}
		defer memzero.Zero(kp.Private[:])
		opkPriv = &kp.Private
	}

	rootKey, chainKey, err := agreeResponder(
		spk.KeyPair.Private, identity.DH.Private, opkPriv,
		pm.IdentityKey, pm.EphemeralKey,
	)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"role":          "responder",
		"peer":          crypto.Fingerprint(pm.IdentityKey.Slice()),
		"one_time_used": opkPriv != nil,
	}).Debug("x3dh complete")

	return &domain.SessionState{
		RootKey: rootKey,
		Receiving: &domain.ReceivingChain{
			ChainKey: chainKey,
		},
		AssociatedData: associatedData(pm.IdentityKey, identity.DH.Public),
		HandshakeKey:   pm.EphemeralKey,
	}, nil
}

func agreeResponder(
	spkPriv, idPriv domain.X25519Private,
	opkPriv *domain.X25519Private,
	peerID, peerEph domain.X25519Public,
) ([]byte, []byte, error) {
	dh1, err := crypto.DH(spkPriv, peerID) // DH(SPKB, IKA)
	if err != nil {
		return nil, nil, err
	}
	dh2, err := crypto.DH(idPriv, peerEph) // DH(IKB, EKA)
	if err != nil {
		return nil, nil, err
	}
	dh3, err := crypto.DH(spkPriv, peerEph) // DH(SPKB, EKA)
	if err != nil {
		return nil, nil, err
	}
	concat := make([]byte, 0, 32*4)
	concat = append(concat, dh1[:]...)
	concat = append(concat, dh2[:]...)
	concat = append(concat, dh3[:]...)
	if opkPriv != nil {
		dh4, err := crypto.DH(*opkPriv, peerEph) // DH(OPKB, EKA)
		if err != nil {
			return nil, nil, err
		}
		concat = append(concat, dh4[:]...)
	}
	return derive(concat)
}

// agreeInitiator computes the initiator's DH slots in protocol order.
func agreeInitiator(
	idPriv, ephPriv domain.X25519Private,
	peerID, peerSPK domain.X25519Public,
	peerOPK *domain.X25519Public,
) ([]byte, []byte, error) {
	dh1, err := crypto.DH(idPriv, peerSPK) // DH(IKA, SPKB)
	if err != nil {
		return nil, nil, err
	}
	dh2, err := crypto.DH(ephPriv, peerID) // DH(EKA, IKB)
	if err != nil {
		return nil, nil, err
	}
	dh3, err := crypto.DH(ephPriv, peerSPK) // DH(EKA, SPKB)
	if err != nil {
		return nil, nil, err
	}
	concat := make([]byte, 0, 32*4)
	concat = append(concat, dh1[:]...)
	concat = append(concat, dh2[:]...)
	concat = append(concat, dh3[:]...)
	if peerOPK != nil {
		dh4, err := crypto.DH(ephPriv, *peerOPK) // DH(EKA, OPKB)
		if err != nil {
			return nil, nil, err
		}
		concat = append(concat, dh4[:]...)
	}
	return derive(concat)
}

// derive runs HKDF over 32 0xFF bytes followed by the DH outputs and splits
// the result into a root key and the first chain key.
func derive(concat []byte) (rootKey, chainKey []byte, err error) {
	defer memzero.Zero(concat)
	ikm := make([]byte, 0, domain.KeySize+len(concat))
	for range domain.KeySize {
		ikm = append(ikm, 0xFF)
	}
	ikm = append(ikm, concat...)
	defer memzero.Zero(ikm)

	okm, err := crypto.HKDF(ikm, nil, kdfInfo, 2*domain.KeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: x3dh kdf: %v", domain.ErrCrypto, err)
	}
	return okm[:domain.KeySize], okm[domain.KeySize:], nil
}

// associatedData binds both identities, initiator first.
func associatedData(initiator, responder domain.X25519Public) []byte {
	ad := make([]byte, 0, 2*domain.KeySize)
	ad = append(ad, initiator[:]...)
	return append(ad, responder[:]...)
}
