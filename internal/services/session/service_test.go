package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/domain"
	"securechat/internal/protocol/bundle"
	"securechat/internal/protocol/codec"
	"securechat/internal/services/device"
	"securechat/internal/services/session"
	"securechat/internal/store"
)

type peer struct {
	device   *device.Service
	store    *store.Memory
	sessions *session.Service
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	st := store.NewMemory()
	d := device.New(st, 20)
	_, err := d.InitializeDevice(context.Background(), "Correct-Horse-9-battery")
	require.NoError(t, err)
	return &peer{device: d, store: st, sessions: session.New(d, st, st, session.Limits{})}
}

func (p *peer) bundle(t *testing.T) domain.PreKeyBundle {
	t.Helper()
	keys, err := p.device.Keys()
	require.NoError(t, err)
	b, err := bundle.Build(keys)
	require.NoError(t, err)
	return b
}

func (p *peer) encrypt(t *testing.T, id domain.SessionID, pt string) domain.Message {
	t.Helper()
	var msg domain.Message
	err := p.sessions.WithSession(context.Background(), id, func(st *domain.SessionState) error {
		var err error
		msg, err = codec.Encrypt(st, []byte(pt))
		return err
	})
	require.NoError(t, err)
	return msg
}

func (p *peer) decrypt(id domain.SessionID, msg domain.Message) ([]byte, error) {
	var pt []byte
	err := p.sessions.WithSession(context.Background(), id, func(st *domain.SessionState) error {
		var err error
		pt, err = codec.Decrypt(st, msg)
		return err
	})
	return pt, err
}

func TestStartAndAccept(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t), newPeer(t)

	bb := bob.bundle(t)
	aid, err := alice.sessions.StartSession(ctx, "bob", bb)
	require.NoError(t, err)
	assert.Equal(t, domain.NewSessionID("bob", bb.RegistrationID), aid)

	first := alice.encrypt(t, aid, "hi bob")
	require.Equal(t, domain.MessageTypePreKey, first.Type)

	bid, pt, err := bob.sessions.AcceptSession(ctx, "alice", first)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", string(pt))

	reply := bob.encrypt(t, bid, "hi alice")
	pt, err = alice.decrypt(aid, reply)
	require.NoError(t, err)
	assert.Equal(t, "hi alice", string(pt))

	ids, err := bob.sessions.SessionsFor("alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{bid}, ids)

	c, ok, err := bob.store.LoadContact("alice")
	require.NoError(t, err)
	require.True(t, ok)
	keys, err := alice.device.Keys()
	require.NoError(t, err)
	assert.Equal(t, keys.Identity().DH.Public, c.IdentityKey)
}

func TestAcceptSession_RejectsPlainMessage(t *testing.T) {
	bob := newPeer(t)
	_, _, err := bob.sessions.AcceptSession(context.Background(), "alice", domain.Message{Type: domain.MessageTypeMessage})
	assert.ErrorIs(t, err, domain.ErrSession)
}

func TestAcceptSession_FailedDecryptRegistersNothing(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t), newPeer(t)
	aid, err := alice.sessions.StartSession(ctx, "bob", bob.bundle(t))
	require.NoError(t, err)

	msg := alice.encrypt(t, aid, "hi")
	msg.Ciphertext[len(msg.Ciphertext)-1] ^= 0xFF
	_, _, err = bob.sessions.AcceptSession(ctx, "alice", msg)
	assert.ErrorIs(t, err, domain.ErrCrypto)

	ids, err := bob.sessions.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, ids)

	// The one-time key is spent, so the genuine copy cannot be replayed either.
	msg.Ciphertext[len(msg.Ciphertext)-1] ^= 0xFF
	_, _, err = bob.sessions.AcceptSession(ctx, "alice", msg)
	assert.ErrorIs(t, err, domain.ErrSession)
}

func TestWithSession_UnknownSession(t *testing.T) {
	p := newPeer(t)
	err := p.sessions.WithSession(context.Background(), "nobody:1", func(*domain.SessionState) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSession)

	ok, err := p.sessions.HasSession("nobody:1")
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		_, err = p.sessions.Get(domain.SessionID(fmt.Sprintf("nobody:%d", i)))
		assert.ErrorIs(t, err, domain.ErrSession)
	}
	assert.Zero(t, p.sessions.EntryCount())
}

// failingSessions fails session writes on demand.
type failingSessions struct {
	*store.Memory
	fail atomic.Bool
}

func (f *failingSessions) SaveSession(id domain.SessionID, st domain.SessionState) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.Memory.SaveSession(id, st)
}

func TestWithSession_FailedSaveKeepsState(t *testing.T) {
	ctx := context.Background()
	alice := newPeer(t)

	mem := store.NewMemory()
	d := device.New(mem, 20)
	_, err := d.InitializeDevice(ctx, "Correct-Horse-9-battery")
	require.NoError(t, err)
	sessions := &failingSessions{Memory: mem}
	bob := &peer{device: d, store: mem, sessions: session.New(d, sessions, mem, session.Limits{})}

	aid, err := alice.sessions.StartSession(ctx, "bob", bob.bundle(t))
	require.NoError(t, err)
	first := alice.encrypt(t, aid, "one")
	second := alice.encrypt(t, aid, "two")

	bid, _, err := bob.sessions.AcceptSession(ctx, "alice", first)
	require.NoError(t, err)
	before, err := bob.sessions.Get(bid)
	require.NoError(t, err)

	sessions.fail.Store(true)
	_, err = bob.decrypt(bid, second)
	require.Error(t, err)
	after, err := bob.sessions.Get(bid)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	sessions.fail.Store(false)
	pt, err := bob.decrypt(bid, second)
	require.NoError(t, err)
	assert.Equal(t, "two", string(pt))
}

func TestIsNewHandshake(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t), newPeer(t)

	aid, err := alice.sessions.StartSession(ctx, "bob", bob.bundle(t))
	require.NoError(t, err)
	first := alice.encrypt(t, aid, "one")

	bid := domain.NewSessionID("alice", first.PreKey.RegistrationID)
	fresh, err := bob.sessions.IsNewHandshake(bid, *first.PreKey)
	require.NoError(t, err)
	assert.True(t, fresh, "no session yet")

	_, _, err = bob.sessions.AcceptSession(ctx, "alice", first)
	require.NoError(t, err)
	fresh, err = bob.sessions.IsNewHandshake(bid, *first.PreKey)
	require.NoError(t, err)
	assert.False(t, fresh, "same handshake continues the session")

	// Accepting the same handshake again would reset the session.
	_, _, err = bob.sessions.AcceptSession(ctx, "alice", first)
	assert.ErrorIs(t, err, domain.ErrSession)

	// Alice starts over; the new handshake replaces the old one.
	_, err = alice.sessions.StartSession(ctx, "bob", bob.bundle(t))
	require.NoError(t, err)
	again := alice.encrypt(t, aid, "two")
	fresh, err = bob.sessions.IsNewHandshake(bid, *again.PreKey)
	require.NoError(t, err)
	assert.True(t, fresh)
	_, pt, err := bob.sessions.AcceptSession(ctx, "alice", again)
	require.NoError(t, err)
	assert.Equal(t, "two", string(pt))

	_, err = bob.sessions.IsNewHandshake(bid, *first.PreKey)
	assert.ErrorIs(t, err, domain.ErrSession, "replaced handshake is not accepted again")
	st, err := bob.sessions.Get(bid)
	require.NoError(t, err)
	assert.Equal(t, []domain.X25519Public{first.PreKey.EphemeralKey}, st.RetiredHandshakeKeys)
}

func TestRemoveSession(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t), newPeer(t)
	aid, err := alice.sessions.StartSession(ctx, "bob", bob.bundle(t))
	require.NoError(t, err)

	require.NoError(t, alice.sessions.RemoveSession(ctx, aid))

	ok, err := alice.sessions.HasSession(aid)
	require.NoError(t, err)
	assert.False(t, ok)
	ids, err := alice.sessions.SessionsFor("bob")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = alice.sessions.Get(aid)
	assert.ErrorIs(t, err, domain.ErrSession)
}

func TestSessionsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t), newPeer(t)
	aid, err := alice.sessions.StartSession(ctx, "bob", bob.bundle(t))
	require.NoError(t, err)
	m0 := alice.encrypt(t, aid, "one")

	restarted := session.New(alice.device, alice.store, alice.store, session.Limits{})
	var m1 domain.Message
	require.NoError(t, restarted.WithSession(ctx, aid, func(st *domain.SessionState) error {
		var err error
		m1, err = codec.Encrypt(st, []byte("two"))
		return err
	}))
	assert.Equal(t, m0.Header.MessageNumber+1, m1.Header.MessageNumber)
}

func TestLimitsApplied(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	d := device.New(st, 20)
	_, err := d.InitializeDevice(ctx, "Correct-Horse-9-battery")
	require.NoError(t, err)
	svc := session.New(d, st, st, session.Limits{MaxSkip: 7, MaxMessageKeys: 9})

	bob := newPeer(t)
	id, err := svc.StartSession(ctx, "bob", bob.bundle(t))
	require.NoError(t, err)
	got, err := svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got.MaxSkip)
	assert.Equal(t, 9, got.MaxMessageKeys)
}

func TestConcurrentEncrypt_SingleWriterPerSession(t *testing.T) {
	ctx := context.Background()
	alice, bob, carol := newPeer(t), newPeer(t), newPeer(t)
	toBob, err := alice.sessions.StartSession(ctx, "bob", bob.bundle(t))
	require.NoError(t, err)
	toCarol, err := alice.sessions.StartSession(ctx, "carol", carol.bundle(t))
	require.NoError(t, err)

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		nums = map[domain.SessionID]map[uint32]bool{toBob: {}, toCarol: {}}
	)
	for i := 0; i < n; i++ {
		for _, id := range []domain.SessionID{toBob, toCarol} {
			wg.Add(1)
			go func(id domain.SessionID) {
				defer wg.Done()
				_ = alice.sessions.WithSession(ctx, id, func(st *domain.SessionState) error {
					msg, err := codec.Encrypt(st, []byte("x"))
					if err != nil {
						return err
					}
					mu.Lock()
					nums[id][msg.Header.MessageNumber] = true
					mu.Unlock()
					return nil
				})
			}(id)
		}
	}
	wg.Wait()
	assert.Len(t, nums[toBob], n)
	assert.Len(t, nums[toCarol], n)
}
