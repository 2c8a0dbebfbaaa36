package interfaces

import (
	"context"

	domaintypes "securechat/internal/domain/types"
)

// DeviceService provisions and unlocks the local device's key material.
type DeviceService interface {
	InitializeDevice(ctx context.Context, passphrase string) (domaintypes.Fingerprint, error)
	Unlock(ctx context.Context, passphrase string) error
	Fingerprint() (domaintypes.Fingerprint, error)
}

// PreKeyService builds and publishes pre-key bundles.
type PreKeyService interface {
	GetPublicBundle(ctx context.Context) (domaintypes.PreKeyBundle, error)
	Replenish(ctx context.Context, count int) (int, error)
	Publish(ctx context.Context, self domaintypes.ContactID, count int) (int, error)
}

// SessionService establishes and tracks ratchet sessions.
type SessionService interface {
	StartSession(
		ctx context.Context,
		contact domaintypes.ContactID,
		bundle domaintypes.PreKeyBundle,
	) (domaintypes.SessionID, error)
	AcceptSession(
		ctx context.Context,
		contact domaintypes.ContactID,
		message domaintypes.Message,
	) (domaintypes.SessionID, []byte, error)
	HasSession(id domaintypes.SessionID) (bool, error)
	IsNewHandshake(id domaintypes.SessionID, pm domaintypes.PreKeyMessage) (bool, error)
	RemoveSession(ctx context.Context, id domaintypes.SessionID) error
	ListSessions() ([]domaintypes.SessionID, error)
}

// MessageService encrypts and decrypts on established sessions and moves
// envelopes through the relay.
type MessageService interface {
	Encrypt(
		ctx context.Context,
		id domaintypes.SessionID,
		plaintext []byte,
	) (domaintypes.Message, error)
	Decrypt(
		ctx context.Context,
		id domaintypes.SessionID,
		message domaintypes.Message,
	) ([]byte, error)
	SendMessage(
		ctx context.Context,
		from domaintypes.ContactID,
		to domaintypes.ContactID,
		plaintext []byte,
	) error
	ReceiveMessages(
		ctx context.Context,
		me domaintypes.ContactID,
		limit int,
	) ([]domaintypes.DecryptedMessage, error)
}
