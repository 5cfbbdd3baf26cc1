package model

import (
	"errors"
	"fmt"
	"time"
)

// MessageKind chat message variants
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageReaction MessageKind = "reaction"
	MessageSystem   MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	return k == MessageText || k == MessageReaction || k == MessageSystem
}

var ErrInvalidMessage = errors.New("invalid message")

// ChatMessage is one replicated chat log entry. The id doubles as the
// dedup key: it is compared directly, not (senderId, createdAt), so a
// retransmission is detected even when clock resolution collides.
// Messages are never mutated after creation.
type ChatMessage struct {
	ID              string      `json:"id"`
	Text            string      `json:"text"`
	SenderID        string      `json:"senderId"`
	SenderName      string      `json:"senderName"`
	SenderAvatarRef string      `json:"senderAvatarRef,omitempty"`
	CreatedAt       int64       `json:"createdAt"` // unix milliseconds
	Kind            MessageKind `json:"kind"`
}

// NewChatMessage builds a message with a fresh id and timestamp.
func NewChatMessage(text, senderID, senderName, avatarRef string, kind MessageKind) ChatMessage {
	return ChatMessage{
		ID:              NewEntryID(),
		Text:            text,
		SenderID:        senderID,
		SenderName:      senderName,
		SenderAvatarRef: avatarRef,
		CreatedAt:       time.Now().UnixMilli(),
		Kind:            kind,
	}
}

func (m *ChatMessage) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}
	if m.SenderID == "" {
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	if m.Kind != MessageSystem && m.Text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	return nil
}
