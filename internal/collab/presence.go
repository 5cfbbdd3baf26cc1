package collab

import (
	"sort"
	"sync"
	"time"

	"collab-backend/internal/model"
)

// LocalState is the mutable part of our own presence. SetLocal replaces
// these fields wholesale: a cursor not carried by an update is
// forgotten, not retained. Identity fields are fixed at join.
type LocalState struct {
	Cursor   *model.Cursor
	IsActing bool
}

// PresenceStore holds our own presence record and the last record seen
// per peer connection. Peer records are replaced wholesale and vanish
// with the connection; nothing here is persisted.
type PresenceStore struct {
	window  time.Duration
	publish func(model.Presence)

	mu      sync.Mutex
	self    model.Presence
	peers   map[string]model.Presence
	timer   *time.Timer
	pending bool
	closed  bool
}

// NewPresenceStore seeds the store with the identity fixed at join.
// publish is invoked, off-lock, whenever the local record should go
// out; window throttles it so a cursor stream coalesces to the latest
// record per window. window <= 0 publishes immediately.
func NewPresenceStore(self model.Presence, window time.Duration, publish func(model.Presence)) *PresenceStore {
	return &PresenceStore{
		window:  window,
		publish: publish,
		self:    self,
		peers:   make(map[string]model.Presence),
	}
}

// SetLocal replaces the ephemeral fields of our record and schedules a
// broadcast. Rapid calls within one window collapse to the final state.
func (p *PresenceStore) SetLocal(s LocalState) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.self.Cursor = s.Cursor
	p.self.IsActing = s.IsActing

	if p.window <= 0 {
		snap := p.self
		p.mu.Unlock()
		if p.publish != nil {
			p.publish(snap)
		}
		return
	}
	if !p.pending {
		p.pending = true
		p.timer = time.AfterFunc(p.window, p.flush)
	}
	p.mu.Unlock()
}

func (p *PresenceStore) flush() {
	p.mu.Lock()
	p.pending = false
	if p.closed {
		p.mu.Unlock()
		return
	}
	snap := p.self
	pub := p.publish
	p.mu.Unlock()
	if pub != nil {
		pub(snap)
	}
}

// ApplyRemote replaces a peer's record wholesale. Records for our own
// connection id are ignored; we are the authority on ourselves.
func (p *PresenceStore) ApplyRemote(rec model.Presence) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.ConnectionID == "" || rec.ConnectionID == p.self.ConnectionID {
		return
	}
	p.peers[rec.ConnectionID] = rec
}

// RemovePeer drops a departed connection's record.
func (p *PresenceStore) RemovePeer(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.peers, connectionID)
}

// Self returns a copy of our own record.
func (p *PresenceStore) Self() model.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.self
}

// Others returns the peer records ordered by connection id.
func (p *PresenceStore) Others() []model.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Presence, 0, len(p.peers))
	for _, rec := range p.peers {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// Close stops the throttle timer; later SetLocal calls are no-ops.
func (p *PresenceStore) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
	}
}
