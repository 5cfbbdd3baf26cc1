package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"collab-backend/internal/model"
)

// =============================================================================
// Wire protocol - typed envelopes over the side data channel
// =============================================================================

// EventType discriminates envelope payloads.
type EventType string

const (
	EventIntent     EventType = "intent"      // client -> authority document op
	EventEffect     EventType = "effect"      // authority -> clients, committed op
	EventSnapshot   EventType = "snapshot"    // authority -> late joiner full state
	EventPresence   EventType = "presence"    // wholesale presence record
	EventPeerJoined EventType = "peer_joined" // membership
	EventPeerLeft   EventType = "peer_left"   // membership
	EventBroadcast  EventType = "broadcast"   // ephemeral app event, at-most-once
)

func (t EventType) Valid() bool {
	switch t {
	case EventIntent, EventEffect, EventSnapshot, EventPresence,
		EventPeerJoined, EventPeerLeft, EventBroadcast:
		return true
	}
	return false
}

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownEvent     = errors.New("unknown event type")
)

// Envelope is the single frame format on the wire. Payload holds the
// type-specific body; Seq is assigned by the authority on effects and
// snapshots, zero otherwise.
type Envelope struct {
	Type    EventType       `json:"type"`
	Room    string          `json:"room"`
	Sender  string          `json:"sender,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OpType document operation variants
type OpType string

const (
	OpInsert OpType = "insert" // map variant, overwrite by shape id
	OpRemove OpType = "remove" // map variant, delete by id
	OpAppend OpType = "append" // log variant, dedup by message id
)

// Op is a named document mutation intent. Clear has no wire primitive:
// it is issued as an enumerated batch of removes over the keys known to
// the issuing client.
type Op struct {
	Type     OpType             `json:"op"`
	Shape    *model.Shape       `json:"shape,omitempty"`
	Message  *model.ChatMessage `json:"message,omitempty"`
	TargetID string             `json:"targetId,omitempty"` // remove
}

// EntryID returns the replication key the op addresses.
func (o Op) EntryID() string {
	switch o.Type {
	case OpInsert:
		if o.Shape != nil {
			return o.Shape.ID
		}
	case OpRemove:
		return o.TargetID
	case OpAppend:
		if o.Message != nil {
			return o.Message.ID
		}
	}
	return ""
}

// Validate checks the op carries the body its type requires.
func (o Op) Validate() error {
	switch o.Type {
	case OpInsert:
		if o.Shape == nil {
			return fmt.Errorf("%w: insert without shape", ErrMalformedPayload)
		}
		return o.Shape.Validate()
	case OpRemove:
		if o.TargetID == "" {
			return fmt.Errorf("%w: remove without target id", ErrMalformedPayload)
		}
	case OpAppend:
		if o.Message == nil {
			return fmt.Errorf("%w: append without message", ErrMalformedPayload)
		}
		return o.Message.Validate()
	default:
		return fmt.Errorf("%w: unknown op %q", ErrMalformedPayload, o.Type)
	}
	return nil
}

// Effect is a committed op fanned out by the authority to every
// subscriber including the originator.
type Effect struct {
	Op     Op     `json:"op"`
	Origin string `json:"origin"`
}

// Snapshot is the full room state handed to a late joiner.
type Snapshot struct {
	Shapes   []model.Shape       `json:"shapes,omitempty"`
	Messages []model.ChatMessage `json:"messages,omitempty"`
	Peers    []model.Presence    `json:"peers,omitempty"`
	Seq      uint64              `json:"seq"`
}

// AppEvent is an ephemeral fire-and-forget application event carried by
// the event bus (reaction, "user is drawing", system notice).
type AppEvent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}
