package collab

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/cache"
	"collab-backend/internal/model"
	"collab-backend/internal/protocol"
	"collab-backend/internal/transport"
)

// stubChannel records outbound frames and lets tests inject inbound
// ones.
type stubChannel struct {
	mu       sync.Mutex
	sent     []protocol.Envelope
	handler  transport.DataHandler
	failSend bool
}

func (c *stubChannel) Send(ctx context.Context, payload []byte, reliable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("wire down")
	}
	env, err := protocol.Decode(payload)
	if err != nil {
		return err
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *stubChannel) OnData(h transport.DataHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *stubChannel) Close() error { return nil }

func (c *stubChannel) inject(t *testing.T, env protocol.Envelope) {
	t.Helper()
	payload, err := protocol.Encode(env)
	require.NoError(t, err)
	c.injectRaw(payload)
}

func (c *stubChannel) injectRaw(payload []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h("authority", payload)
	}
}

func (c *stubChannel) frames() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

func openTestRoom(t *testing.T, ch transport.Channel, store cache.Store) *Room {
	t.Helper()
	r, err := Open(Options{
		Key:     "classroom-algebra-session-7-whiteboard",
		Kind:    model.RoomKindWhiteboard,
		Self:    self(),
		Channel: ch,
		Cache:   store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func effectEnv(t *testing.T, room string, seq uint64, origin string, op protocol.Op) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEffect(room, seq, protocol.Effect{Op: op, Origin: origin})
	require.NoError(t, err)
	return env
}

func TestOpenRequiresIdentity(t *testing.T) {
	_, err := Open(Options{
		Key:     "classroom-a-session-1-chat",
		Kind:    model.RoomKindChat,
		Self:    model.Presence{ConnectionID: "conn-1"}, // no display name
		Channel: &stubChannel{},
	})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestSendMessageOptimisticThenIntent(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)

	msg, err := r.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	// Applied locally before any confirmation arrives.
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)

	frames := ch.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventIntent, frames[0].Type)
}

func TestSendMessageEmpty(t *testing.T) {
	r := openTestRoom(t, &stubChannel{}, nil)
	_, err := r.SendMessage(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, r.Messages())
}

func TestSendMessageFailureNoRetryKeepsLocal(t *testing.T) {
	ch := &stubChannel{failSend: true}
	r := openTestRoom(t, ch, nil)

	msg, err := r.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.NotEmpty(t, msg.ID)

	// Exactly one attempt, and the optimistic apply stands.
	assert.Empty(t, ch.frames())
	assert.Len(t, r.Messages(), 1)
}

func TestOwnEchoNotDuplicated(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)

	msg, err := r.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	op := protocol.Op{Type: protocol.OpAppend, Message: &msg}
	ch.inject(t, effectEnv(t, r.Key(), 1, r.Self().ConnectionID, op))

	assert.Len(t, r.Messages(), 1)
	assert.Equal(t, uint64(1), r.Seq())
}

func TestRemoteAppendAppliedOnceAcrossRetransmits(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)

	remote := model.ChatMessage{ID: "m-remote", Text: "yo", SenderID: "conn-2", SenderName: "lee", Kind: model.MessageText}
	op := protocol.Op{Type: protocol.OpAppend, Message: &remote}
	env := effectEnv(t, r.Key(), 1, "conn-2", op)
	ch.inject(t, env)
	ch.inject(t, env)

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "yo", msgs[0].Text)
}

func TestEffectInsertLastWriterWins(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)

	a := rect("s1", 1, 1)
	a.Fill = "red"
	b := rect("s1", 1, 1)
	b.Fill = "blue"
	b.AuthorID = "conn-2"

	ch.inject(t, effectEnv(t, r.Key(), 1, "conn-1", protocol.Op{Type: protocol.OpInsert, Shape: a}))
	ch.inject(t, effectEnv(t, r.Key(), 2, "conn-2", protocol.Op{Type: protocol.OpInsert, Shape: b}))

	shapes := r.Shapes()
	require.Len(t, shapes, 1)
	assert.Equal(t, "blue", shapes[0].Fill)
}

func TestInsertUndoRedo(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)
	ctx := context.Background()

	require.NoError(t, r.InsertShape(ctx, *rect("s1", 1, 1)))
	require.True(t, r.CanUndo())

	done, err := r.Undo(ctx)
	require.NoError(t, err)
	require.True(t, done)
	assert.Empty(t, r.Shapes())
	require.True(t, r.CanRedo())

	done, err = r.Redo(ctx)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, r.Shapes(), 1)

	// Undo and redo travel as ordinary intents.
	frames := ch.frames()
	require.Len(t, frames, 3)
	for _, f := range frames {
		assert.Equal(t, protocol.EventIntent, f.Type)
	}
}

func TestUndoEmpty(t *testing.T) {
	r := openTestRoom(t, &stubChannel{}, nil)
	done, err := r.Undo(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestClearCanvasIsOneUndoStep(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)
	ctx := context.Background()

	require.NoError(t, r.InsertShape(ctx, *rect("s1", 1, 1)))
	require.NoError(t, r.InsertShape(ctx, *rect("s2", 2, 2)))
	require.NoError(t, r.ClearCanvas(ctx))
	assert.Empty(t, r.Shapes())

	done, err := r.Undo(ctx)
	require.NoError(t, err)
	require.True(t, done)
	assert.Len(t, r.Shapes(), 2)
}

func TestClearCanvasEmptyNoop(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)
	require.NoError(t, r.ClearCanvas(context.Background()))
	assert.Empty(t, ch.frames())
}

func TestRemoveMissingShapeSendsNothing(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)
	require.NoError(t, r.RemoveShape(context.Background(), "ghost"))
	assert.Empty(t, ch.frames())
	assert.False(t, r.CanUndo())
}

func TestClearHistoryLocalOnly(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)
	ctx := context.Background()

	require.NoError(t, r.InsertShape(ctx, *rect("s1", 1, 1)))
	sentBefore := len(ch.frames())

	r.ClearHistory()
	assert.False(t, r.CanUndo())
	assert.Len(t, r.Shapes(), 1)
	assert.Len(t, ch.frames(), sentBefore)
}

func TestSnapshotReplacesStateAndSeedsPeers(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)

	env, err := protocol.NewSnapshot(r.Key(), protocol.Snapshot{
		Shapes:   []model.Shape{*rect("s9", 9, 9)},
		Messages: []model.ChatMessage{{ID: "m9", Text: "hi", SenderID: "conn-2", Kind: model.MessageText}},
		Peers: []model.Presence{
			{ConnectionID: "conn-2", DisplayName: "lee", Role: model.RoleTutor},
			{ConnectionID: r.Self().ConnectionID, DisplayName: "impostor"},
		},
		Seq: 42,
	})
	require.NoError(t, err)
	ch.inject(t, env)

	assert.Len(t, r.Shapes(), 1)
	assert.Len(t, r.Messages(), 1)
	assert.Equal(t, uint64(42), r.Seq())

	others := r.Others()
	require.Len(t, others, 1)
	assert.Equal(t, "lee", others[0].DisplayName)

	// Snapshot messages are remembered: a later effect for one is a
	// duplicate.
	msg := model.ChatMessage{ID: "m9", Text: "hi", SenderID: "conn-2", Kind: model.MessageText}
	ch.inject(t, effectEnv(t, r.Key(), 43, "conn-2", protocol.Op{Type: protocol.OpAppend, Message: &msg}))
	assert.Len(t, r.Messages(), 1)
}

func TestPeerJoinLeave(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)

	env, err := protocol.NewPeerJoined(r.Key(), model.Presence{ConnectionID: "conn-2", DisplayName: "lee"})
	require.NoError(t, err)
	ch.inject(t, env)
	require.Len(t, r.Others(), 1)

	env, err = protocol.NewPeerLeft(r.Key(), "conn-2")
	require.NoError(t, err)
	ch.inject(t, env)
	assert.Empty(t, r.Others())
}

func TestBroadcastNotSelfEchoed(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)

	var got []string
	r.OnEvent("reaction", func(sender string, ev protocol.AppEvent) {
		got = append(got, sender)
	})

	require.NoError(t, r.Broadcast(context.Background(), protocol.AppEvent{Name: "reaction"}))

	// Our own frame coming back is ignored; a peer's is dispatched.
	env, err := protocol.NewBroadcast(r.Key(), r.Self().ConnectionID, protocol.AppEvent{Name: "reaction"})
	require.NoError(t, err)
	ch.inject(t, env)
	env, err = protocol.NewBroadcast(r.Key(), "conn-2", protocol.AppEvent{Name: "reaction"})
	require.NoError(t, err)
	ch.inject(t, env)

	assert.Equal(t, []string{"conn-2"}, got)
}

func TestMalformedFrameDropped(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)

	ch.injectRaw([]byte("not json"))
	ch.injectRaw([]byte(`{"type":"teleport","room":"x"}`))
	// Effect with a body its op type forbids.
	ch.injectRaw([]byte(`{"type":"effect","room":"` + r.Key() + `","payload":{"op":{"op":"remove"}}}`))

	assert.Empty(t, r.Shapes())
	assert.Empty(t, r.Messages())
}

func TestFrameForOtherRoomDropped(t *testing.T) {
	ch := &stubChannel{}
	r := openTestRoom(t, ch, nil)

	msg := model.ChatMessage{ID: "m1", Text: "hi", SenderID: "conn-2", Kind: model.MessageText}
	ch.inject(t, effectEnv(t, "classroom-other-session-1-chat", 1, "conn-2", protocol.Op{Type: protocol.OpAppend, Message: &msg}))

	assert.Empty(t, r.Messages())
}

func TestWarmStartFromCacheThenSnapshotWins(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()

	// A previous session persisted state under this key.
	ch1 := &stubChannel{}
	r1 := openTestRoom(t, ch1, store)
	_, err := r1.SendMessage(ctx, "persisted")
	require.NoError(t, err)
	require.NoError(t, r1.Close())

	ch2 := &stubChannel{}
	r2 := openTestRoom(t, ch2, store)
	msgs := r2.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "persisted", msgs[0].Text)

	// The authority snapshot replaces cached state wholesale.
	env, err := protocol.NewSnapshot(r2.Key(), protocol.Snapshot{Seq: 5})
	require.NoError(t, err)
	ch2.inject(t, env)
	assert.Empty(t, r2.Messages())
}

func TestOperationsAfterClose(t *testing.T) {
	r := openTestRoom(t, &stubChannel{}, nil)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.SendMessage(context.Background(), "late")
	assert.ErrorIs(t, err, ErrRoomClosed)
	assert.ErrorIs(t, r.InsertShape(context.Background(), *rect("s", 0, 0)), ErrRoomClosed)
}
