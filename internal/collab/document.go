package collab

import (
	"sort"
	"sync"

	"collab-backend/internal/model"
	"collab-backend/internal/protocol"
)

// Document is the replicated room state: a keyed shape map for the
// whiteboard and an append-only message log for chat. Local intents
// and authority effects flow through the same reducer, so an
// optimistic apply and its later echo converge on identical state.
type Document struct {
	mu       sync.RWMutex
	shapes   map[string]model.Shape
	messages []model.ChatMessage
	msgIndex map[string]struct{}
}

func NewDocument() *Document {
	return &Document{
		shapes:   make(map[string]model.Shape),
		msgIndex: make(map[string]struct{}),
	}
}

// Apply runs one op through the reducer. It returns the inverse op
// that undoes the mutation (nil for appends, the log is never undone)
// and whether anything changed.
func (d *Document) Apply(op protocol.Op) (inverse *protocol.Op, applied bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.apply(op)
}

func (d *Document) apply(op protocol.Op) (*protocol.Op, bool) {
	switch op.Type {
	case protocol.OpInsert:
		if op.Shape == nil {
			return nil, false
		}
		prev, existed := d.shapes[op.Shape.ID]
		d.shapes[op.Shape.ID] = *op.Shape
		if existed {
			restored := prev
			return &protocol.Op{Type: protocol.OpInsert, Shape: &restored}, true
		}
		return &protocol.Op{Type: protocol.OpRemove, TargetID: op.Shape.ID}, true

	case protocol.OpRemove:
		prev, existed := d.shapes[op.TargetID]
		if !existed {
			return nil, false
		}
		delete(d.shapes, op.TargetID)
		restored := prev
		return &protocol.Op{Type: protocol.OpInsert, Shape: &restored}, true

	case protocol.OpAppend:
		if op.Message == nil {
			return nil, false
		}
		if _, dup := d.msgIndex[op.Message.ID]; dup {
			return nil, false
		}
		d.msgIndex[op.Message.ID] = struct{}{}
		d.messages = append(d.messages, *op.Message)
		return nil, true
	}
	return nil, false
}

// LoadSnapshot replaces the document wholesale with authority state.
func (d *Document) LoadSnapshot(snap protocol.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shapes = make(map[string]model.Shape, len(snap.Shapes))
	for _, s := range snap.Shapes {
		d.shapes[s.ID] = s
	}
	d.messages = make([]model.ChatMessage, len(snap.Messages))
	copy(d.messages, snap.Messages)
	d.msgIndex = make(map[string]struct{}, len(snap.Messages))
	for _, m := range snap.Messages {
		d.msgIndex[m.ID] = struct{}{}
	}
}

// Shapes returns a copy of the shape map's values, ordered by creation
// time then id so renders are stable.
func (d *Document) Shapes() []model.Shape {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Shape, 0, len(d.shapes))
	for _, s := range d.shapes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Shape looks up one shape by id.
func (d *Document) Shape(id string) (model.Shape, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.shapes[id]
	return s, ok
}

// ShapeIDs returns the ids currently present, the enumeration a clear
// operates on. Inserts that land after the enumeration survive the
// clear; that is the accepted behavior, not a bug to paper over.
func (d *Document) ShapeIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.shapes))
	for id := range d.shapes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Messages returns a copy of the log in append order.
func (d *Document) Messages() []model.ChatMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.ChatMessage, len(d.messages))
	copy(out, d.messages)
	return out
}

// HasMessage reports whether a message id is already in the log.
func (d *Document) HasMessage(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.msgIndex[id]
	return ok
}

// Len returns (shape count, message count).
func (d *Document) Len() (int, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.shapes), len(d.messages)
}
