package authority

import (
	"context"
	"log"
	"sync"
	"time"

	"collab-backend/internal/model"
	"collab-backend/internal/observability"
	"collab-backend/internal/protocol"
	"collab-backend/internal/transport"
)

const archiveTimeout = 2 * time.Second

// Subscriber is one connected participant: the channel to reach it and
// the presence record fixed at join.
type Subscriber struct {
	ID       string
	Channel  transport.Channel
	Presence model.Presence
}

// Room is the authoritative copy of one shared room. Every intent
// commits here under one mutex, which is what makes "last writer" a
// well-defined order; committed effects fan out to every subscriber,
// the originator included, so clients converge without vector clocks.
//
// Fan-out happens on the caller's goroutine while the room lock is
// held. Subscriber handlers must therefore never call back into the
// room; the client side only mutates its own local state on receipt.
type Room struct {
	key  string
	kind model.RoomKind
	hub  *Hub

	mu          sync.RWMutex
	subscribers map[string]Subscriber
	shapes      map[string]model.Shape
	messages    []model.ChatMessage
	msgIndex    map[string]struct{}
	seq         uint64
	emptyAt     time.Time
}

func newRoom(key string, kind model.RoomKind, hub *Hub) *Room {
	return &Room{
		key:         key,
		kind:        kind,
		hub:         hub,
		subscribers: make(map[string]Subscriber),
		shapes:      make(map[string]model.Shape),
		msgIndex:    make(map[string]struct{}),
		emptyAt:     time.Now(),
	}
}

func (r *Room) Key() string          { return r.key }
func (r *Room) Kind() model.RoomKind { return r.kind }

// Join registers a subscriber, hands it the full current state and
// announces it to everyone else.
func (r *Room) Join(sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribers[sub.ID] = sub
	r.emptyAt = time.Time{}
	log.Printf("[Room %s] Joined: %s (%s), total: %d",
		r.key, sub.ID, sub.Presence.DisplayName, len(r.subscribers))

	env, err := protocol.NewSnapshot(r.key, r.snapshotLocked(sub.ID))
	if err != nil {
		return err
	}
	r.sendLocked(sub, env)

	joined, err := protocol.NewPeerJoined(r.key, sub.Presence)
	if err != nil {
		return err
	}
	r.broadcastLocked(joined, sub.ID)
	return nil
}

// Leave removes a subscriber and announces the departure. The room and
// its document stay alive; cleanup reaps it later if nobody returns.
func (r *Room) Leave(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[id]; !ok {
		return
	}
	delete(r.subscribers, id)
	if len(r.subscribers) == 0 {
		r.emptyAt = time.Now()
	}
	log.Printf("[Room %s] Left: %s, remaining: %d", r.key, id, len(r.subscribers))

	left, err := protocol.NewPeerLeft(r.key, id)
	if err != nil {
		return
	}
	r.broadcastLocked(left, "")
}

// HandleIntent commits one document op and fans the effect out to all
// subscribers. Duplicate appends are dropped; map ops always commit,
// arrival order under the lock is the definition of last-writer-wins.
func (r *Room) HandleIntent(sender string, op protocol.Op) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch op.Type {
	case protocol.OpInsert:
		r.shapes[op.Shape.ID] = *op.Shape
	case protocol.OpRemove:
		// Removing an absent id still commits: the remove is
		// idempotent and the effect lets peers drop optimistic copies.
		delete(r.shapes, op.TargetID)
	case protocol.OpAppend:
		if _, dup := r.msgIndex[op.Message.ID]; dup {
			observability.IncDuplicateDropped(r.kind.String())
			return
		}
		r.msgIndex[op.Message.ID] = struct{}{}
		r.messages = append(r.messages, *op.Message)
		r.archive(*op.Message)
	default:
		return
	}

	r.seq++
	observability.IncRoomOp(r.kind.String(), string(op.Type))

	env, err := protocol.NewEffect(r.key, r.seq, protocol.Effect{Op: op, Origin: sender})
	if err != nil {
		log.Printf("[Room %s] Failed to build effect: %v", r.key, err)
		return
	}
	r.broadcastLocked(env, "")
	r.hub.persistRoomState(r.key, r.snapshotLocked(""))
}

// restore seeds a freshly created room from persisted state. Only
// called before the room is published, so no locking.
func (r *Room) restore(snap protocol.Snapshot) {
	for _, s := range snap.Shapes {
		r.shapes[s.ID] = s
	}
	r.messages = append(r.messages, snap.Messages...)
	for _, m := range snap.Messages {
		r.msgIndex[m.ID] = struct{}{}
	}
	r.seq = snap.Seq
}

// HandlePresence relays a wholesale presence record to everyone except
// its origin and keeps it for future snapshots.
func (r *Room) HandlePresence(sender string, rec model.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscribers[sender]
	if !ok || rec.ConnectionID != sender {
		return
	}
	sub.Presence = rec
	r.subscribers[sender] = sub

	env, err := protocol.NewPresence(r.key, rec)
	if err != nil {
		return
	}
	r.broadcastLocked(env, sender)
}

// HandleBroadcast relays an ephemeral app event to everyone except its
// origin. Nothing is stored; missed means missed.
func (r *Room) HandleBroadcast(sender string, ev protocol.AppEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	env, err := protocol.NewBroadcast(r.key, sender, ev)
	if err != nil {
		return
	}
	r.broadcastLocked(env, sender)
}

// Snapshot returns the current authoritative state.
func (r *Room) Snapshot() protocol.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked("")
}

// SubscriberCount returns the number of connected participants.
func (r *Room) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

func (r *Room) emptySince(cutoff time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers) == 0 && !r.emptyAt.IsZero() && r.emptyAt.Before(cutoff)
}

// snapshotLocked builds the full state. exclude omits one connection
// from the peer list, so a joiner does not see itself as a peer.
func (r *Room) snapshotLocked(exclude string) protocol.Snapshot {
	snap := protocol.Snapshot{Seq: r.seq}
	for _, s := range r.shapes {
		snap.Shapes = append(snap.Shapes, s)
	}
	snap.Messages = make([]model.ChatMessage, len(r.messages))
	copy(snap.Messages, r.messages)
	for id, sub := range r.subscribers {
		if id == exclude {
			continue
		}
		snap.Peers = append(snap.Peers, sub.Presence)
	}
	return snap
}

// broadcastLocked fans an envelope out to every subscriber except
// skip. A failed send drops that one delivery; the subscriber's next
// snapshot reconciles it.
func (r *Room) broadcastLocked(env protocol.Envelope, skip string) {
	for id, sub := range r.subscribers {
		if id == skip {
			continue
		}
		r.sendLocked(sub, env)
	}
}

func (r *Room) sendLocked(sub Subscriber, env protocol.Envelope) {
	payload, err := protocol.Encode(env)
	if err != nil {
		log.Printf("[Room %s] Failed to encode %s: %v", r.key, env.Type, err)
		return
	}
	reliable := env.Type != protocol.EventBroadcast && env.Type != protocol.EventPresence
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := sub.Channel.Send(ctx, payload, reliable); err != nil {
		observability.IncSendFailure()
		log.Printf("[Room %s] Failed to send %s to %s: %v", r.key, env.Type, sub.ID, err)
	}
}

func (r *Room) archive(msg model.ChatMessage) {
	if r.hub.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := r.hub.archiver.SaveMessage(ctx, r.key, msg); err != nil {
			log.Printf("[Room %s] Failed to archive message %s: %v", r.key, msg.ID, err)
		}
	}()
}
