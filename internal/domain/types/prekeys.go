package types

// SignedPreKey is the medium-term pre-key signed by the identity signing key.
type SignedPreKey struct {
	ID        SignedPreKeyID `json:"id"`
	KeyPair   KeyPair        `json:"keyPair"`
	Signature Signature      `json:"signature"`
}

// OneTimePreKey is a single-use pre-key pair held locally.
type OneTimePreKey struct {
	ID      OneTimePreKeyID `json:"id"`
	KeyPair KeyPair         `json:"keyPair"`
}

// OneTimePreKeyPublic is only the public half, as advertised in a bundle.
type OneTimePreKeyPublic struct {
	ID  OneTimePreKeyID `json:"id"`
	Key X25519Public    `json:"key"`
}

// DeviceKeys is the full private key material of one device.
//
// OneTimePreKeys holds keys never handed out; Issued holds keys that went out
// in a bundle and wait for the handshake that consumes them.
type DeviceKeys struct {
	Identity            IdentityKeyPair                   `json:"identity"`
	SignedPreKey        SignedPreKey                      `json:"signedPreKey"`
	OneTimePreKeys      []OneTimePreKey                   `json:"oneTimePreKeys"`
	Issued              map[OneTimePreKeyID]OneTimePreKey `json:"issued,omitempty"`
	NextOneTimePreKeyID OneTimePreKeyID                   `json:"nextOneTimePreKeyId"`
	RegistrationID      RegistrationID                    `json:"registrationId"`
}

// PreKeyBundle is the publishable public half of a device's key material.
type PreKeyBundle struct {
	IdentityKey           X25519Public         `json:"identityKey"`
	SigningKey            Ed25519Public        `json:"signingKey"`
	SignedPreKeyID        SignedPreKeyID       `json:"signedPreKeyId"`
	SignedPreKey          X25519Public         `json:"signedPreKey"`
	SignedPreKeySignature Signature            `json:"signedPreKeySignature"`
	OneTimePreKey         *OneTimePreKeyPublic `json:"oneTimePreKey,omitempty"`
	RegistrationID        RegistrationID       `json:"registrationId"`
}

// PreKeyMessage carries the initiator's X3DH parameters alongside its first
// messages so the responder can derive the same session.
type PreKeyMessage struct {
	IdentityKey     X25519Public     `json:"identityKey"`
	SigningKey      Ed25519Public    `json:"signingKey"`
	EphemeralKey    X25519Public     `json:"ephemeralKey"`
	SignedPreKeyID  SignedPreKeyID   `json:"signedPreKeyId"`
	OneTimePreKeyID *OneTimePreKeyID `json:"oneTimePreKeyId,omitempty"`
	RegistrationID  RegistrationID   `json:"registrationId"`
}
