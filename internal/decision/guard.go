package decision

import (
	"sync"
	"time"
)

// EntryGuard enforces one in-flight trade per window pair plus a cooldown
// after each accepted entry. Safe for concurrent use.
type EntryGuard struct {
	mu        sync.Mutex
	inFlight  map[string]bool      // pair key -> trade running
	lastEntry map[string]time.Time // pair key -> last accepted entry
	cooldown  time.Duration
}

func NewEntryGuard(cooldown time.Duration) *EntryGuard {
	return &EntryGuard{
		inFlight:  make(map[string]bool),
		lastEntry: make(map[string]time.Time),
		cooldown:  cooldown,
	}
}

// TryAcquire claims the pair for a new trade. Returns false while a trade
// is running on the pair or the cooldown from the previous entry has not
// elapsed.
func (g *EntryGuard) TryAcquire(pairKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[pairKey] {
		return false
	}
	if last, ok := g.lastEntry[pairKey]; ok && time.Since(last) < g.cooldown {
		return false
	}
	g.inFlight[pairKey] = true
	g.lastEntry[pairKey] = time.Now()
	return true
}

// Release frees the pair once its trade reaches a terminal state. The
// cooldown keeps running from the entry time.
func (g *EntryGuard) Release(pairKey string) {
	g.mu.Lock()
	delete(g.inFlight, pairKey)
	g.mu.Unlock()
}

// Forget drops all bookkeeping for an expired pair.
func (g *EntryGuard) Forget(pairKey string) {
	g.mu.Lock()
	delete(g.inFlight, pairKey)
	delete(g.lastEntry, pairKey)
	g.mu.Unlock()
}

func (g *EntryGuard) InFlight(pairKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight[pairKey]
}
