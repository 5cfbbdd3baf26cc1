package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatMessage(t *testing.T) {
	m := NewChatMessage("hello", "conn-1", "dana", "avatars/7", MessageText)
	require.NoError(t, m.Validate())
	assert.NotEmpty(t, m.ID)
	assert.NotZero(t, m.CreatedAt)
	assert.Equal(t, "dana", m.SenderName)
}

func TestChatMessageValidate(t *testing.T) {
	m := ChatMessage{ID: "m1", Text: "hi", SenderID: "c", Kind: MessageText}
	assert.NoError(t, m.Validate())

	noID := m
	noID.ID = ""
	assert.ErrorIs(t, noID.Validate(), ErrInvalidMessage)

	noSender := m
	noSender.SenderID = ""
	assert.ErrorIs(t, noSender.Validate(), ErrInvalidMessage)

	empty := m
	empty.Text = ""
	assert.ErrorIs(t, empty.Validate(), ErrInvalidMessage)

	// System notices may carry no text.
	system := ChatMessage{ID: "m2", SenderID: "c", Kind: MessageSystem}
	assert.NoError(t, system.Validate())

	badKind := m
	badKind.Kind = "sticker"
	assert.ErrorIs(t, badKind.Validate(), ErrInvalidMessage)
}

func TestNewEntryIDDistinct(t *testing.T) {
	a := NewEntryID()
	b := NewEntryID()
	assert.NotEqual(t, a, b)
}

func TestRoomKey(t *testing.T) {
	key := RoomKey("algebra-101", "7", RoomKindWhiteboard)
	assert.Equal(t, "classroom-algebra-101-session-7-whiteboard", key)
}
