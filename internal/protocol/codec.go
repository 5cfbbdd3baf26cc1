package protocol

import (
	"encoding/json"
	"fmt"

	"collab-backend/internal/model"
)

// Encode serializes an envelope for the channel.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses inbound bytes into an envelope. A decode failure means
// the frame is dropped by the caller; it is never fatal to the room.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !env.Type.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	return env, nil
}

func newEnvelope(t EventType, room, sender string, body any) (Envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Room: room, Sender: sender, Payload: payload}, nil
}

// NewIntent wraps a document op for the authority.
func NewIntent(room, sender string, op Op) (Envelope, error) {
	return newEnvelope(EventIntent, room, sender, op)
}

// NewEffect wraps a committed op for fan-out.
func NewEffect(room string, seq uint64, eff Effect) (Envelope, error) {
	env, err := newEnvelope(EventEffect, room, eff.Origin, eff)
	if err != nil {
		return Envelope{}, err
	}
	env.Seq = seq
	return env, nil
}

// NewSnapshot wraps the full room state for a late joiner.
func NewSnapshot(room string, snap Snapshot) (Envelope, error) {
	env, err := newEnvelope(EventSnapshot, room, "", snap)
	if err != nil {
		return Envelope{}, err
	}
	env.Seq = snap.Seq
	return env, nil
}

// NewPresence wraps a wholesale presence record.
func NewPresence(room string, p model.Presence) (Envelope, error) {
	return newEnvelope(EventPresence, room, p.ConnectionID, p)
}

// NewPeerJoined announces a new connection with its presence metadata.
func NewPeerJoined(room string, p model.Presence) (Envelope, error) {
	return newEnvelope(EventPeerJoined, room, p.ConnectionID, p)
}

// NewPeerLeft announces a departed connection.
func NewPeerLeft(room, connectionID string) (Envelope, error) {
	return newEnvelope(EventPeerLeft, room, connectionID, nil)
}

// NewBroadcast wraps an ephemeral app event.
func NewBroadcast(room, sender string, ev AppEvent) (Envelope, error) {
	return newEnvelope(EventBroadcast, room, sender, ev)
}

// DecodeOp extracts and validates the op body of an intent envelope.
func DecodeOp(env Envelope) (Op, error) {
	var op Op
	if err := json.Unmarshal(env.Payload, &op); err != nil {
		return Op{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := op.Validate(); err != nil {
		return Op{}, err
	}
	return op, nil
}

// DecodeEffect extracts the effect body of an effect envelope.
func DecodeEffect(env Envelope) (Effect, error) {
	var eff Effect
	if err := json.Unmarshal(env.Payload, &eff); err != nil {
		return Effect{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := eff.Op.Validate(); err != nil {
		return Effect{}, err
	}
	return eff, nil
}

// DecodeSnapshot extracts the snapshot body.
func DecodeSnapshot(env Envelope) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return snap, nil
}

// DecodePresence extracts a presence record.
func DecodePresence(env Envelope) (model.Presence, error) {
	var p model.Presence
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return model.Presence{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.ConnectionID == "" {
		return model.Presence{}, fmt.Errorf("%w: presence without connection id", ErrMalformedPayload)
	}
	return p, nil
}

// DecodeAppEvent extracts an ephemeral app event.
func DecodeAppEvent(env Envelope) (AppEvent, error) {
	var ev AppEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return AppEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if ev.Name == "" {
		return AppEvent{}, fmt.Errorf("%w: event without name", ErrMalformedPayload)
	}
	return ev, nil
}
