package types

import "encoding/binary"

// MessageType distinguishes plain ratchet messages from handshake-initiating ones.
type MessageType string

const (
	// MessageTypeMessage is an ordinary ratchet message.
	MessageTypeMessage MessageType = "message"
	// MessageTypePreKey carries a PreKeyMessage so the receiver can run X3DH.
	MessageTypePreKey MessageType = "prekey"
)

// Header is sent in clear alongside every ciphertext.
type Header struct {
	PublicKey           X25519Public `json:"publicKey"`
	PreviousChainLength uint32       `json:"numberOfMessagesInPreviousChain"`
	MessageNumber       uint32       `json:"messageNumber"`
}

// Bytes returns the canonical encoding bound into the AEAD associated data.
func (h Header) Bytes() []byte {
	out := make([]byte, 0, KeySize+8)
	out = append(out, h.PublicKey[:]...)
	out = binary.BigEndian.AppendUint32(out, h.PreviousChainLength)
	out = binary.BigEndian.AppendUint32(out, h.MessageNumber)
	return out
}

// Message is the wire-format ratchet message. Ciphertext is nonce(12) followed
// by the AEAD output.
type Message struct {
	Type       MessageType    `json:"type"`
	Header     Header         `json:"header"`
	Ciphertext []byte         `json:"ciphertext"`
	PreKey     *PreKeyMessage `json:"preKey,omitempty"`
}

// Envelope is what travels through the relay mailbox. A user's devices share
// one mailbox; ToReg names the device the message was sealed for.
type Envelope struct {
	ID        string         `json:"id,omitempty"`
	From      ContactID      `json:"from"`
	FromReg   RegistrationID `json:"fromRegistrationId"`
	To        ContactID      `json:"to"`
	ToReg     RegistrationID `json:"toRegistrationId"`
	Message   Message        `json:"message"`
	Timestamp int64          `json:"timestamp"`
}

// DecryptedMessage is what the message service hands to the UI layer.
type DecryptedMessage struct {
	From      ContactID `json:"from"`
	Session   SessionID `json:"session"`
	Plaintext []byte    `json:"plaintext"`
	Timestamp int64     `json:"timestamp"`
}
