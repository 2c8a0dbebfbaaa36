package domain

import (
	interfaces "securechat/internal/domain/interfaces"
	types "securechat/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	ContactID           = types.ContactID
	RegistrationID      = types.RegistrationID
	SessionID           = types.SessionID
	SignedPreKeyID      = types.SignedPreKeyID
	OneTimePreKeyID     = types.OneTimePreKeyID
	Fingerprint         = types.Fingerprint
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
	Signature           = types.Signature
	KeyPair             = types.KeyPair
	IdentityKeyPair     = types.IdentityKeyPair
	SignedPreKey        = types.SignedPreKey
	OneTimePreKey       = types.OneTimePreKey
	OneTimePreKeyPublic = types.OneTimePreKeyPublic
	DeviceKeys          = types.DeviceKeys
	PreKeyBundle        = types.PreKeyBundle
	PreKeyMessage       = types.PreKeyMessage
	SendingChain        = types.SendingChain
	ReceivingChain      = types.ReceivingChain
	SkippedKey          = types.SkippedKey
	SessionState        = types.SessionState
	Contact             = types.Contact
	MessageType         = types.MessageType
	Header              = types.Header
	Message             = types.Message
	Envelope            = types.Envelope
	DecryptedMessage    = types.DecryptedMessage
)

// Re-exported constants.
const (
	KeySize            = types.KeySize
	MaxRegistrationID  = types.MaxRegistrationID
	MessageTypeMessage = types.MessageTypeMessage
	MessageTypePreKey  = types.MessageTypePreKey
)

// NewSessionID joins a contact and a registration id.
func NewSessionID(contact ContactID, reg RegistrationID) SessionID {
	return types.NewSessionID(contact, reg)
}

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	DeviceService  = interfaces.DeviceService
	PreKeyService  = interfaces.PreKeyService
	SessionService = interfaces.SessionService
	MessageService = interfaces.MessageService
	RelayClient    = interfaces.RelayClient
	DeviceStore    = interfaces.DeviceStore
	SessionStore   = interfaces.SessionStore
	ContactStore   = interfaces.ContactStore
)
