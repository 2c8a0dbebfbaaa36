package message_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/domain"
	"securechat/internal/services/device"
	"securechat/internal/services/message"
	"securechat/internal/services/prekey"
	"securechat/internal/services/session"
	"securechat/internal/store"
)

// mailbox is an in-process relay: bundle queues per device, one mailbox per user.
type mailbox struct {
	mu      sync.Mutex
	bundles map[domain.ContactID]map[domain.RegistrationID][]domain.PreKeyBundle
	queues  map[domain.ContactID][]domain.Envelope
}

func newMailbox() *mailbox {
	return &mailbox{
		bundles: map[domain.ContactID]map[domain.RegistrationID][]domain.PreKeyBundle{},
		queues:  map[domain.ContactID][]domain.Envelope{},
	}
}

func (m *mailbox) PublishBundle(_ context.Context, user domain.ContactID, b domain.PreKeyBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bundles[user] == nil {
		m.bundles[user] = map[domain.RegistrationID][]domain.PreKeyBundle{}
	}
	m.bundles[user][b.RegistrationID] = append(m.bundles[user][b.RegistrationID], b)
	return nil
}

func (m *mailbox) FetchBundles(_ context.Context, user domain.ContactID) ([]domain.PreKeyBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PreKeyBundle
	for reg, q := range m.bundles[user] {
		out = append(out, q[0])
		if len(q) > 1 {
			m.bundles[user][reg] = q[1:]
		}
	}
	return out, nil
}

func (m *mailbox) SendMessage(_ context.Context, env domain.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	env.ID = uuid.NewString()
	m.queues[env.To] = append(m.queues[env.To], env)
	return nil
}

func (m *mailbox) FetchMessages(_ context.Context, user domain.ContactID, limit int) ([]domain.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[user]
	if limit > 0 && limit < len(q) {
		q = q[:limit]
	}
	return append([]domain.Envelope(nil), q...), nil
}

func (m *mailbox) AckMessages(_ context.Context, user domain.ContactID, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var kept []domain.Envelope
	for _, env := range m.queues[user] {
		if !drop[env.ID] {
			kept = append(kept, env)
		}
	}
	m.queues[user] = kept
	return nil
}

func (m *mailbox) pending(user domain.ContactID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[user])
}

type client struct {
	name     domain.ContactID
	prekeys  *prekey.Service
	sessions *session.Service
	messages *message.Service
}

func newClient(t *testing.T, name domain.ContactID, relay domain.RelayClient) *client {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	d := device.New(st, 20)
	_, err := d.InitializeDevice(ctx, "Correct-Horse-9-battery")
	require.NoError(t, err)

	sessions := session.New(d, st, st, session.Limits{})
	c := &client{
		name:     name,
		prekeys:  prekey.New(d, relay),
		sessions: sessions,
		messages: message.New(d, sessions, relay),
	}
	_, err = c.prekeys.Publish(ctx, name, 3)
	require.NoError(t, err)
	return c
}

func (c *client) send(t *testing.T, to *client, text string) {
	t.Helper()
	require.NoError(t, c.messages.SendMessage(context.Background(), c.name, to.name, []byte(text)))
}

func (c *client) recv(t *testing.T) []string {
	t.Helper()
	msgs, err := c.messages.ReceiveMessages(context.Background(), c.name, 0)
	require.NoError(t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Plaintext))
	}
	return out
}

func TestConversationThroughRelay(t *testing.T) {
	relay := newMailbox()
	alice := newClient(t, "alice", relay)
	bob := newClient(t, "bob", relay)

	alice.send(t, bob, "hello")
	alice.send(t, bob, "are you there?")
	assert.Equal(t, []string{"hello", "are you there?"}, bob.recv(t))
	assert.Zero(t, relay.pending("bob"))

	bob.send(t, alice, "yes")
	assert.Equal(t, []string{"yes"}, alice.recv(t))

	alice.send(t, bob, "great")
	env := relay.queues["bob"][0]
	assert.Equal(t, domain.MessageTypeMessage, env.Message.Type)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, []string{"great"}, bob.recv(t))
}

func TestSendMessage_EveryDevice(t *testing.T) {
	relay := newMailbox()
	alice := newClient(t, "alice", relay)
	phone := newClient(t, "bob", relay)
	laptop := newClient(t, "bob", relay)

	alice.send(t, phone, "to all of bob")
	assert.Equal(t, 2, relay.pending("bob"))

	assert.Equal(t, []string{"to all of bob"}, phone.recv(t))
	assert.Equal(t, 1, relay.pending("bob"))
	assert.Equal(t, []string{"to all of bob"}, laptop.recv(t))
	assert.Zero(t, relay.pending("bob"))
}

func TestReceiveMessages_BadEnvelopeIsDroppedAndReported(t *testing.T) {
	relay := newMailbox()
	alice := newClient(t, "alice", relay)
	bob := newClient(t, "bob", relay)

	alice.send(t, bob, "first")
	require.Len(t, bob.recv(t), 1)

	alice.send(t, bob, "forged")
	alice.send(t, bob, "genuine")
	relay.mu.Lock()
	ct := relay.queues["bob"][0].Message.Ciphertext
	ct[len(ct)-1] ^= 0x01
	relay.mu.Unlock()

	msgs, err := bob.messages.ReceiveMessages(context.Background(), "bob", 0)
	assert.ErrorIs(t, err, domain.ErrCrypto)
	require.Len(t, msgs, 1)
	assert.Equal(t, "genuine", string(msgs[0].Plaintext))
	assert.Zero(t, relay.pending("bob"))
}

func TestReceiveMessages_NoSessionForPlainMessage(t *testing.T) {
	relay := newMailbox()
	alice := newClient(t, "alice", relay)
	bob := newClient(t, "bob", relay)

	alice.send(t, bob, "first")
	relay.mu.Lock()
	relay.queues["bob"][0].Message.Type = domain.MessageTypeMessage
	relay.queues["bob"][0].Message.PreKey = nil
	relay.mu.Unlock()

	_, err := bob.messages.ReceiveMessages(context.Background(), "bob", 0)
	assert.ErrorIs(t, err, domain.ErrSession)
}

func TestSendMessage_UnknownContact(t *testing.T) {
	relay := newMailbox()
	alice := newClient(t, "alice", relay)
	err := alice.messages.SendMessage(context.Background(), "alice", "nobody", []byte("x"))
	assert.ErrorIs(t, err, message.ErrNoDevices)
}

func TestEncryptDecrypt_ByID(t *testing.T) {
	ctx := context.Background()
	relay := newMailbox()
	alice := newClient(t, "alice", relay)
	bob := newClient(t, "bob", relay)

	alice.send(t, bob, "hi")
	got, err := bob.messages.ReceiveMessages(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	bobSide := got[0].Session

	var bobReg domain.RegistrationID
	for reg := range relay.bundles["bob"] {
		bobReg = reg
	}
	aliceSide := domain.NewSessionID("bob", bobReg)

	msg, err := alice.messages.Encrypt(ctx, aliceSide, []byte("direct"))
	require.NoError(t, err)
	pt, err := bob.messages.Decrypt(ctx, bobSide, msg)
	require.NoError(t, err)
	assert.Equal(t, "direct", string(pt))

	_, err = bob.messages.Decrypt(ctx, bobSide, msg)
	assert.ErrorIs(t, err, domain.ErrSession)
}

// restart makes c run a fresh handshake with every device of to, replacing
// the sessions it has.
func (c *client) restart(t *testing.T, relay *mailbox, to *client) {
	t.Helper()
	ctx := context.Background()
	bundles, err := relay.FetchBundles(ctx, to.name)
	require.NoError(t, err)
	require.NotEmpty(t, bundles)
	for _, b := range bundles {
		_, err := c.sessions.StartSession(ctx, to.name, b)
		require.NoError(t, err)
	}
}

func TestReceiveMessages_RestartedSessionIsAccepted(t *testing.T) {
	relay := newMailbox()
	alice := newClient(t, "alice", relay)
	bob := newClient(t, "bob", relay)

	alice.send(t, bob, "one")
	assert.Equal(t, []string{"one"}, bob.recv(t))
	bob.send(t, alice, "two")
	assert.Equal(t, []string{"two"}, alice.recv(t))

	alice.restart(t, relay, bob)
	alice.send(t, bob, "three")
	alice.send(t, bob, "four")
	assert.Equal(t, []string{"three", "four"}, bob.recv(t))

	bob.send(t, alice, "five")
	assert.Equal(t, []string{"five"}, alice.recv(t))
	alice.send(t, bob, "six")
	assert.Equal(t, []string{"six"}, bob.recv(t))
}

func TestReceiveMessages_ReplayedOldHandshakeRejected(t *testing.T) {
	relay := newMailbox()
	alice := newClient(t, "alice", relay)
	bob := newClient(t, "bob", relay)

	alice.send(t, bob, "original")
	relay.mu.Lock()
	old := relay.queues["bob"][0]
	relay.mu.Unlock()
	assert.Equal(t, []string{"original"}, bob.recv(t))

	alice.restart(t, relay, bob)
	alice.send(t, bob, "rekeyed")
	assert.Equal(t, []string{"rekeyed"}, bob.recv(t))

	require.NoError(t, relay.SendMessage(context.Background(), old))
	msgs, err := bob.messages.ReceiveMessages(context.Background(), "bob", 0)
	assert.ErrorIs(t, err, domain.ErrSession)
	assert.Empty(t, msgs)

	alice.send(t, bob, "still here")
	assert.Equal(t, []string{"still here"}, bob.recv(t))
}

func TestReceiveMessages_CrossingHandshakesConverge(t *testing.T) {
	ctx := context.Background()
	relay := newMailbox()
	alice := newClient(t, "alice", relay)
	bob := newClient(t, "bob", relay)

	alice.send(t, bob, "from alice")
	bob.send(t, alice, "from bob")

	// Exactly one of the two handshakes survives.
	toBob, errBob := bob.messages.ReceiveMessages(ctx, "bob", 0)
	toAlice, errAlice := alice.messages.ReceiveMessages(ctx, "alice", 0)
	assert.Equal(t, 1, len(toBob)+len(toAlice))
	assert.True(t, (errBob == nil) != (errAlice == nil))

	alice.send(t, bob, "after")
	assert.Equal(t, []string{"after"}, bob.recv(t))
	bob.send(t, alice, "reply")
	assert.Equal(t, []string{"reply"}, alice.recv(t))
}
