package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"collab-backend/internal/cache"
	"collab-backend/internal/model"
	"collab-backend/internal/observability"
	"collab-backend/internal/protocol"
	"collab-backend/internal/transport"
)

var (
	ErrNoIdentity   = errors.New("room: no identity")
	ErrEmptyMessage = errors.New("room: empty message")
	ErrRoomClosed   = errors.New("room: closed")
)

const persistTimeout = 2 * time.Second

// Options configures a room session.
type Options struct {
	Key      string
	Kind     model.RoomKind
	Self     model.Presence
	Channel  transport.Channel
	Cache    cache.Store // optional; nil disables warm starts
	CacheTTL time.Duration

	// PresenceWindow throttles outbound presence; <= 0 publishes
	// immediately, which tests rely on.
	PresenceWindow time.Duration

	// OnEffect, when set, is invoked after a committed op mutates the
	// document, so a render layer can refresh. Called off-lock.
	OnEffect func(protocol.Effect)
}

// Room is one participant's session in a shared room. Local mutations
// apply optimistically, then travel to the authority as intents; the
// committed effects fan back to everyone, and the shared reducer makes
// both paths converge. Sends are single-shot: a failed send surfaces
// its error and is never retried here.
type Room struct {
	key  string
	kind model.RoomKind
	ch   transport.Channel

	store    cache.Store
	cacheTTL time.Duration

	doc      *Document
	history  *History
	ledger   *Ledger
	presence *PresenceStore
	bus      *Bus

	onEffect func(protocol.Effect)

	mu      sync.Mutex
	lastSeq uint64
	closed  bool

	self model.Presence
}

// Open joins a room over an already-connected channel. If a cache is
// configured and holds state for this key, the document warm-starts
// from it; the authority snapshot then replaces it wholesale.
func Open(opts Options) (*Room, error) {
	if opts.Key == "" {
		return nil, fmt.Errorf("room: missing key")
	}
	if opts.Self.ConnectionID == "" || opts.Self.DisplayName == "" {
		return nil, ErrNoIdentity
	}
	if opts.Channel == nil {
		return nil, fmt.Errorf("room: missing channel")
	}

	r := &Room{
		key:      opts.Key,
		kind:     opts.Kind,
		ch:       opts.Channel,
		store:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		doc:      NewDocument(),
		history:  NewHistory(),
		ledger:   NewLedger(),
		bus:      NewBus(),
		onEffect: opts.OnEffect,
		self:     opts.Self,
	}
	r.presence = NewPresenceStore(opts.Self, opts.PresenceWindow, r.publishPresence)

	r.hydrate()
	r.ch.OnData(r.handleInbound)
	return r, nil
}

func (r *Room) hydrate() {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	data, err := r.store.Get(ctx, r.cacheKey())
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("[Room] cache read failed for %s: %v", r.key, err)
		}
		return
	}
	var snap protocol.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[Room] discarding corrupt cache entry for %s: %v", r.key, err)
		return
	}
	r.doc.LoadSnapshot(snap)
	for _, m := range snap.Messages {
		r.ledger.Remember(m.ID)
	}
	r.setSeq(snap.Seq)
}

func (r *Room) cacheKey() string {
	return "room:" + r.key + ":log"
}

// SendMessage appends a chat message: optimistic local apply, then a
// single reliable send to the authority. The returned message carries
// the generated id and timestamp even when the send fails, so callers
// can mark it unconfirmed rather than lose it.
func (r *Room) SendMessage(ctx context.Context, text string) (model.ChatMessage, error) {
	if r.isClosed() {
		return model.ChatMessage{}, ErrRoomClosed
	}
	if text == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}
	msg := model.NewChatMessage(text, r.self.ConnectionID, r.self.DisplayName, r.self.AvatarRef, model.MessageText)
	op := protocol.Op{Type: protocol.OpAppend, Message: &msg}

	r.ledger.Remember(msg.ID)
	r.doc.Apply(op)
	r.persistLog()

	if err := r.sendIntent(ctx, op); err != nil {
		return msg, err
	}
	return msg, nil
}

// InsertShape adds or overwrites a shape and records the step for
// undo. Missing authorship fields are filled from our identity.
func (r *Room) InsertShape(ctx context.Context, shape model.Shape) error {
	if r.isClosed() {
		return ErrRoomClosed
	}
	if shape.ID == "" {
		shape.ID = model.NewEntryID()
	}
	if shape.AuthorID == "" {
		shape.AuthorID = r.self.ConnectionID
	}
	if shape.CreatedAt == 0 {
		shape.CreatedAt = time.Now().UnixMilli()
	}
	if err := shape.Validate(); err != nil {
		return err
	}

	op := protocol.Op{Type: protocol.OpInsert, Shape: &shape}
	inv, applied := r.doc.Apply(op)
	if applied && inv != nil {
		r.history.Record(Entry{Ops: []protocol.Op{op}, Inverses: []protocol.Op{*inv}})
	}
	return r.sendIntent(ctx, op)
}

// RemoveShape deletes a shape by id. Removing an id that is not
// present is a no-op and sends nothing.
func (r *Room) RemoveShape(ctx context.Context, id string) error {
	if r.isClosed() {
		return ErrRoomClosed
	}
	if id == "" {
		return fmt.Errorf("room: missing shape id")
	}
	op := protocol.Op{Type: protocol.OpRemove, TargetID: id}
	inv, applied := r.doc.Apply(op)
	if !applied {
		return nil
	}
	r.history.Record(Entry{Ops: []protocol.Op{op}, Inverses: []protocol.Op{*inv}})
	return r.sendIntent(ctx, op)
}

// ClearCanvas removes every shape this client currently knows about,
// as one undoable step. The clear enumerates keys first, so a shape
// inserted remotely after the enumeration survives.
func (r *Room) ClearCanvas(ctx context.Context) error {
	if r.isClosed() {
		return ErrRoomClosed
	}
	ids := r.doc.ShapeIDs()
	if len(ids) == 0 {
		return nil
	}

	var entry Entry
	var errs []error
	for _, id := range ids {
		op := protocol.Op{Type: protocol.OpRemove, TargetID: id}
		inv, applied := r.doc.Apply(op)
		if !applied {
			continue
		}
		entry.Ops = append(entry.Ops, op)
		entry.Inverses = append(entry.Inverses, *inv)
		if err := r.sendIntent(ctx, op); err != nil {
			errs = append(errs, err)
		}
	}
	r.history.Record(entry)
	return errors.Join(errs...)
}

// Undo rolls back this client's most recent step by replaying its
// inverse ops through the normal path; peers see them as ordinary
// mutations. Returns false when there is nothing to undo.
func (r *Room) Undo(ctx context.Context) (bool, error) {
	if r.isClosed() {
		return false, ErrRoomClosed
	}
	entry, ok := r.history.Undo()
	if !ok {
		return false, nil
	}
	var errs []error
	for i := len(entry.Inverses) - 1; i >= 0; i-- {
		op := entry.Inverses[i]
		r.doc.Apply(op)
		if err := r.sendIntent(ctx, op); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

// Redo re-applies the most recently undone step.
func (r *Room) Redo(ctx context.Context) (bool, error) {
	if r.isClosed() {
		return false, ErrRoomClosed
	}
	entry, ok := r.history.Redo()
	if !ok {
		return false, nil
	}
	var errs []error
	for _, op := range entry.Ops {
		r.doc.Apply(op)
		if err := r.sendIntent(ctx, op); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

func (r *Room) CanUndo() bool { return r.history.CanUndo() }
func (r *Room) CanRedo() bool { return r.history.CanRedo() }

// ClearHistory drops the local undo/redo stacks. The document is
// untouched and nothing goes on the wire.
func (r *Room) ClearHistory() { r.history.Clear() }

// SetPresence replaces our ephemeral presence fields wholesale and
// schedules a throttled broadcast.
func (r *Room) SetPresence(s LocalState) {
	if r.isClosed() {
		return
	}
	r.presence.SetLocal(s)
}

// Broadcast sends an ephemeral app event to the room, at most once,
// over the lossy path. It is not echoed back to our own bus.
func (r *Room) Broadcast(ctx context.Context, ev protocol.AppEvent) error {
	if r.isClosed() {
		return ErrRoomClosed
	}
	env, err := protocol.NewBroadcast(r.key, r.self.ConnectionID, ev)
	if err != nil {
		return err
	}
	payload, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	if err := r.ch.Send(ctx, payload, false); err != nil {
		observability.IncSendFailure()
		return fmt.Errorf("broadcast %q: %w", ev.Name, err)
	}
	return nil
}

// OnEvent subscribes a handler to inbound broadcast events by name and
// returns an unsubscribe func.
func (r *Room) OnEvent(name string, h EventHandler) func() {
	return r.bus.Subscribe(name, h)
}

func (r *Room) Shapes() []model.Shape         { return r.doc.Shapes() }
func (r *Room) Messages() []model.ChatMessage { return r.doc.Messages() }
func (r *Room) Self() model.Presence          { return r.presence.Self() }
func (r *Room) Others() []model.Presence      { return r.presence.Others() }
func (r *Room) Key() string                   { return r.key }
func (r *Room) Kind() model.RoomKind          { return r.kind }

// Seq returns the highest authority sequence number seen so far.
func (r *Room) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

// Close tears the session down. Idempotent.
func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.presence.Close()
	return r.ch.Close()
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) setSeq(seq uint64) {
	r.mu.Lock()
	if seq > r.lastSeq {
		r.lastSeq = seq
	}
	r.mu.Unlock()
}

func (r *Room) sendIntent(ctx context.Context, op protocol.Op) error {
	env, err := protocol.NewIntent(r.key, r.self.ConnectionID, op)
	if err != nil {
		return err
	}
	payload, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	if err := r.ch.Send(ctx, payload, true); err != nil {
		observability.IncSendFailure()
		log.Printf("[Room] intent send failed on %s: %v", r.key, err)
		return fmt.Errorf("send %s: %w", op.Type, err)
	}
	return nil
}

func (r *Room) publishPresence(p model.Presence) {
	env, err := protocol.NewPresence(r.key, p)
	if err != nil {
		return
	}
	payload, err := protocol.Encode(env)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.ch.Send(ctx, payload, false); err != nil {
		// Presence is ephemeral; the next window resends current state.
		observability.IncSendFailure()
	}
}

// persistLog writes the current log (and shapes) to the local cache.
// Failures are logged and swallowed: the cache is a warm-start
// convenience, never load-bearing.
func (r *Room) persistLog() {
	if r.store == nil {
		return
	}
	snap := protocol.Snapshot{
		Shapes:   r.doc.Shapes(),
		Messages: r.doc.Messages(),
		Seq:      r.Seq(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[Room] cache encode failed for %s: %v", r.key, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.store.Set(ctx, r.cacheKey(), data, r.cacheTTL); err != nil {
		observability.IncCacheWriteFailure()
		log.Printf("[Room] cache write failed for %s: %v", r.key, err)
	}
}

// handleInbound routes one frame from the channel. Malformed frames
// and frames for other rooms are dropped with a log line; they never
// take the session down.
func (r *Room) handleInbound(sender string, payload []byte) {
	if r.isClosed() {
		return
	}
	env, err := protocol.Decode(payload)
	if err != nil {
		observability.IncMalformedDropped()
		log.Printf("[Room] dropping frame on %s: %v", r.key, err)
		return
	}
	if env.Room != r.key {
		log.Printf("[Room] dropping frame for %q received on %s", env.Room, r.key)
		return
	}

	switch env.Type {
	case protocol.EventEffect:
		r.handleEffect(env)
	case protocol.EventSnapshot:
		r.handleSnapshot(env)
	case protocol.EventPresence, protocol.EventPeerJoined:
		rec, err := protocol.DecodePresence(env)
		if err != nil {
			observability.IncMalformedDropped()
			return
		}
		r.presence.ApplyRemote(rec)
	case protocol.EventPeerLeft:
		r.presence.RemovePeer(env.Sender)
	case protocol.EventBroadcast:
		if env.Sender == r.self.ConnectionID {
			return
		}
		ev, err := protocol.DecodeAppEvent(env)
		if err != nil {
			observability.IncMalformedDropped()
			return
		}
		r.bus.Dispatch(env.Sender, ev)
	default:
		log.Printf("[Room] unexpected %s frame on %s", env.Type, r.key)
	}
}

func (r *Room) handleEffect(env protocol.Envelope) {
	eff, err := protocol.DecodeEffect(env)
	if err != nil {
		observability.IncMalformedDropped()
		log.Printf("[Room] dropping effect on %s: %v", r.key, err)
		return
	}
	r.setSeq(env.Seq)

	if eff.Op.Type == protocol.OpAppend {
		// The ledger makes appends exactly-once: our own echo and any
		// retransmission were remembered on first apply.
		if !r.ledger.ShouldApply(eff.Op.EntryID()) {
			observability.IncDuplicateDropped(r.kind.String())
			return
		}
	}

	// Map ops re-apply unconditionally: last committed writer wins, and
	// replaying our own echo is idempotent.
	_, applied := r.doc.Apply(eff.Op)
	if applied && eff.Op.Type == protocol.OpAppend {
		r.persistLog()
	}
	if applied && r.onEffect != nil {
		r.onEffect(eff)
	}
}

func (r *Room) handleSnapshot(env protocol.Envelope) {
	snap, err := protocol.DecodeSnapshot(env)
	if err != nil {
		observability.IncMalformedDropped()
		log.Printf("[Room] dropping snapshot on %s: %v", r.key, err)
		return
	}
	r.doc.LoadSnapshot(snap)
	for _, m := range snap.Messages {
		r.ledger.Remember(m.ID)
	}
	r.setSeq(snap.Seq)
	for _, p := range snap.Peers {
		r.presence.ApplyRemote(p)
	}
	r.persistLog()
}
