package collab

import (
	"sync"

	"collab-backend/internal/protocol"
)

// Entry is one undoable step: the ops the user issued and the inverse
// ops that roll them back. A clear records all its removes as a single
// entry so one undo restores the whole canvas.
type Entry struct {
	Ops      []protocol.Op
	Inverses []protocol.Op
}

// History is the local undo/redo stack. It tracks only this client's
// own mutations; undoing replays inverses through the normal op path,
// so remote peers see an undo as just more ops.
type History struct {
	mu    sync.Mutex
	undo  []Entry
	redo  []Entry
	limit int
}

const defaultHistoryLimit = 100

func NewHistory() *History {
	return &History{limit: defaultHistoryLimit}
}

// Record pushes a completed step and clears the redo stack: a new
// mutation forks away from any undone future.
func (h *History) Record(e Entry) {
	if len(e.Ops) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = append(h.undo, e)
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = nil
}

// Undo pops the most recent step and moves it to the redo stack.
func (h *History) Undo() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undo) == 0 {
		return Entry{}, false
	}
	e := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, e)
	return e, true
}

// Redo pops the most recently undone step and moves it back.
func (h *History) Redo() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.redo) == 0 {
		return Entry{}, false
	}
	e := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, e)
	return e, true
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// Clear drops both stacks without touching the document.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = nil
	h.redo = nil
}
