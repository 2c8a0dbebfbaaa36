package types

// SendingChain is the outgoing half of a ratchet session.
type SendingChain struct {
	ChainKey       []byte  `json:"chainKey"`
	RatchetKeyPair KeyPair `json:"ratchetKeyPair"`
	MessageNumber  uint32  `json:"messageNumber"`
}

// ReceivingChain is the incoming half of a ratchet session. RemoteRatchetKey
// is zero until the first header on this chain arrives.
type ReceivingChain struct {
	ChainKey         []byte       `json:"chainKey"`
	RemoteRatchetKey X25519Public `json:"remoteRatchetKey"`
	MessageNumber    uint32       `json:"messageNumber"`
}

// SkippedKey is a cached message key for a message not yet delivered.
type SkippedKey struct {
	RatchetKey    X25519Public `json:"ratchetKey"`
	MessageNumber uint32       `json:"messageNumber"`
	MessageKey    []byte       `json:"messageKey"`
}

// SessionState is the full mutable cryptographic state of one conversation
// with one peer device.
//
// Skipped is ordered oldest first; eviction removes from the front.
// HandshakeKey is the initiator's ephemeral key for sessions created by
// responding to a handshake, zero for sessions we initiated.
// RetiredHandshakeKeys lists handshakes this session has replaced.
type SessionState struct {
	RootKey                    []byte          `json:"rootKey"`
	Sending                    *SendingChain   `json:"sending,omitempty"`
	Receiving                  *ReceivingChain `json:"receiving,omitempty"`
	Skipped                    []SkippedKey    `json:"skipped,omitempty"`
	RetiredRemoteKeys          []X25519Public  `json:"retiredRemoteKeys,omitempty"`
	PreviousSendingChainLength uint32          `json:"previousSendingChainLength"`
	AssociatedData             []byte          `json:"associatedData"`
	PendingPreKey              *PreKeyMessage  `json:"pendingPreKey,omitempty"`
	HandshakeKey               X25519Public    `json:"handshakeKey"`
	RetiredHandshakeKeys       []X25519Public  `json:"retiredHandshakeKeys,omitempty"`
	MaxSkip                    uint32          `json:"maxSkip"`
	MaxMessageKeys             int             `json:"maxMessageKeys"`
}

// Clone returns a deep copy; mutating the copy never touches s.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.RootKey = cloneBytes(s.RootKey)
	out.AssociatedData = cloneBytes(s.AssociatedData)
	if s.Sending != nil {
		snd := *s.Sending
		snd.ChainKey = cloneBytes(s.Sending.ChainKey)
		out.Sending = &snd
	}
	if s.Receiving != nil {
		rcv := *s.Receiving
		rcv.ChainKey = cloneBytes(s.Receiving.ChainKey)
		out.Receiving = &rcv
	}
	if s.Skipped != nil {
		out.Skipped = make([]SkippedKey, len(s.Skipped))
		for i, k := range s.Skipped {
			out.Skipped[i] = SkippedKey{
				RatchetKey:    k.RatchetKey,
				MessageNumber: k.MessageNumber,
				MessageKey:    cloneBytes(k.MessageKey),
			}
		}
	}
	if s.RetiredRemoteKeys != nil {
		out.RetiredRemoteKeys = append([]X25519Public(nil), s.RetiredRemoteKeys...)
	}
	if s.RetiredHandshakeKeys != nil {
		out.RetiredHandshakeKeys = append([]X25519Public(nil), s.RetiredHandshakeKeys...)
	}
	if s.PendingPreKey != nil {
		pk := *s.PendingPreKey
		if pk.OneTimePreKeyID != nil {
			id := *pk.OneTimePreKeyID
			pk.OneTimePreKeyID = &id
		}
		out.PendingPreKey = &pk
	}
	return &out
}

// Contact is a peer with one session per linked device.
type Contact struct {
	ID          ContactID                    `json:"id"`
	IdentityKey X25519Public                 `json:"identityKey"`
	Sessions    map[RegistrationID]SessionID `json:"sessions"`
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
