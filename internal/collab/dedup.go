package collab

import "sync"

// Ledger tracks message ids already applied by this process so a
// retransmission or fan-out echo is never applied twice. Ids are never
// reused, so membership alone is sufficient.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// ShouldApply reports true exactly once per distinct id and remembers
// the id as applied.
func (l *Ledger) ShouldApply(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}
	return true
}

// Remember marks an id as applied without consulting it, used on the
// optimistic local path so the later echo is dropped.
func (l *Ledger) Remember(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[id] = struct{}{}
}

// Seen reports whether the id was already applied.
func (l *Ledger) Seen(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}
