package interfaces

import domaintypes "securechat/internal/domain/types"

// DeviceStore persists the device's private key material, encrypted under a passphrase.
type DeviceStore interface {
	SaveDevice(passphrase string, keys domaintypes.DeviceKeys) error
	LoadDevice(passphrase string) (domaintypes.DeviceKeys, bool, error)
}

// SessionStore persists ratchet state per session.
type SessionStore interface {
	SaveSession(id domaintypes.SessionID, state domaintypes.SessionState) error
	LoadSession(id domaintypes.SessionID) (domaintypes.SessionState, bool, error)
	DeleteSession(id domaintypes.SessionID) error
	ListSessions() ([]domaintypes.SessionID, error)
}

// ContactStore persists contacts and the sessions linked to each device.
type ContactStore interface {
	SaveContact(contact domaintypes.Contact) error
	LoadContact(id domaintypes.ContactID) (domaintypes.Contact, bool, error)
	ListContacts() ([]domaintypes.Contact, error)
}
