package collab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/authority"
	"collab-backend/internal/model"
	"collab-backend/internal/protocol"
	"collab-backend/internal/transport"
)

// connect opens a client session against a live authority room over an
// in-process pipe, the same frame routing the websocket edge performs.
func connect(t *testing.T, room *authority.Room, name string) *Room {
	t.Helper()
	connID := model.NewConnectionID()
	clientEnd, serverEnd := transport.Pipe(connID, "authority")

	serverEnd.OnData(func(sender string, payload []byte) {
		env, err := protocol.Decode(payload)
		if err != nil {
			return
		}
		switch env.Type {
		case protocol.EventIntent:
			op, err := protocol.DecodeOp(env)
			if err != nil {
				return
			}
			room.HandleIntent(connID, op)
		case protocol.EventPresence:
			rec, err := protocol.DecodePresence(env)
			if err != nil {
				return
			}
			rec.ConnectionID = connID
			room.HandlePresence(connID, rec)
		case protocol.EventBroadcast:
			ev, err := protocol.DecodeAppEvent(env)
			if err != nil {
				return
			}
			room.HandleBroadcast(connID, ev)
		}
	})

	r, err := Open(Options{
		Key:  room.Key(),
		Kind: room.Kind(),
		Self: model.Presence{
			ConnectionID: connID,
			DisplayName:  name,
			Role:         model.RoleStudent,
		},
		Channel: clientEnd,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	require.NoError(t, room.Join(authority.Subscriber{
		ID:      connID,
		Channel: serverEnd,
		Presence: model.Presence{
			ConnectionID: connID,
			DisplayName:  name,
			Role:         model.RoleStudent,
		},
	}))
	return r
}

func TestTwoClientsConvergeOnShapes(t *testing.T) {
	hub := authority.NewHub(nil, nil, 0)
	room := hub.GetOrCreateRoom("classroom-a-session-1-whiteboard", model.RoomKindWhiteboard)
	ctx := context.Background()

	alice := connect(t, room, "alice")
	bob := connect(t, room, "bob")

	require.NoError(t, alice.InsertShape(ctx, *rect("s1", 1, 1)))
	require.NoError(t, bob.InsertShape(ctx, *rect("s2", 2, 2)))

	assert.Equal(t, alice.Shapes(), bob.Shapes())
	assert.Len(t, alice.Shapes(), 2)
}

func TestChatMessageReachesEveryoneOnce(t *testing.T) {
	hub := authority.NewHub(nil, nil, 0)
	room := hub.GetOrCreateRoom("classroom-a-session-1-chat", model.RoomKindChat)
	ctx := context.Background()

	alice := connect(t, room, "alice")
	bob := connect(t, room, "bob")

	msg, err := alice.SendMessage(ctx, "hello class")
	require.NoError(t, err)

	// Alice applied optimistically; her echo must not double up.
	require.Len(t, alice.Messages(), 1)
	require.Len(t, bob.Messages(), 1)
	assert.Equal(t, msg.ID, bob.Messages()[0].ID)
	assert.Equal(t, "alice", bob.Messages()[0].SenderName)
}

func TestUndoPropagatesToPeers(t *testing.T) {
	hub := authority.NewHub(nil, nil, 0)
	room := hub.GetOrCreateRoom("classroom-a-session-1-whiteboard", model.RoomKindWhiteboard)
	ctx := context.Background()

	alice := connect(t, room, "alice")
	bob := connect(t, room, "bob")

	require.NoError(t, alice.InsertShape(ctx, *rect("s1", 1, 1)))
	require.Len(t, bob.Shapes(), 1)

	done, err := alice.Undo(ctx)
	require.NoError(t, err)
	require.True(t, done)
	assert.Empty(t, bob.Shapes())

	// Bob cannot undo Alice's work; history is local.
	done, err = bob.Undo(ctx)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestLateJoinerCatchesUp(t *testing.T) {
	hub := authority.NewHub(nil, nil, 0)
	room := hub.GetOrCreateRoom("classroom-a-session-1-whiteboard", model.RoomKindWhiteboard)
	ctx := context.Background()

	alice := connect(t, room, "alice")
	require.NoError(t, alice.InsertShape(ctx, *rect("s1", 1, 1)))
	_, err := alice.SendMessage(ctx, "before join")
	require.NoError(t, err)

	carol := connect(t, room, "carol")
	assert.Len(t, carol.Shapes(), 1)
	assert.Len(t, carol.Messages(), 1)

	others := carol.Others()
	require.Len(t, others, 1)
	assert.Equal(t, "alice", others[0].DisplayName)
}

func TestPresenceFlowsBetweenClients(t *testing.T) {
	hub := authority.NewHub(nil, nil, 0)
	room := hub.GetOrCreateRoom("classroom-a-session-1-whiteboard", model.RoomKindWhiteboard)

	alice := connect(t, room, "alice")
	bob := connect(t, room, "bob")

	alice.SetPresence(LocalState{Cursor: &model.Cursor{X: 5, Y: 6}, IsActing: true})

	others := bob.Others()
	require.Len(t, others, 1)
	require.NotNil(t, others[0].Cursor)
	assert.Equal(t, 5.0, others[0].Cursor.X)
	assert.True(t, others[0].IsActing)

	// The next update omits the cursor, so peers forget it too.
	alice.SetPresence(LocalState{IsActing: true})
	others = bob.Others()
	require.Len(t, others, 1)
	assert.Nil(t, others[0].Cursor)
}

func TestReactionReachesPeersNotSelf(t *testing.T) {
	hub := authority.NewHub(nil, nil, 0)
	room := hub.GetOrCreateRoom("classroom-a-session-1-whiteboard", model.RoomKindWhiteboard)

	alice := connect(t, room, "alice")
	bob := connect(t, room, "bob")

	var aliceGot, bobGot int
	alice.OnEvent("reaction", func(string, protocol.AppEvent) { aliceGot++ })
	bob.OnEvent("reaction", func(string, protocol.AppEvent) { bobGot++ })

	require.NoError(t, alice.Broadcast(context.Background(), protocol.AppEvent{Name: "reaction"}))

	assert.Zero(t, aliceGot)
	assert.Equal(t, 1, bobGot)
}

func TestLeaveAnnouncedToPeers(t *testing.T) {
	hub := authority.NewHub(nil, nil, 0)
	room := hub.GetOrCreateRoom("classroom-a-session-1-whiteboard", model.RoomKindWhiteboard)

	alice := connect(t, room, "alice")
	bob := connect(t, room, "bob")
	require.Len(t, bob.Others(), 1)

	room.Leave(alice.Self().ConnectionID)
	assert.Empty(t, bob.Others())
}
