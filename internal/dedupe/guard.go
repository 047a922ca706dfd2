// Package dedupe tracks message IDs already handled in the current run.
package dedupe

import "sync"

// Guard is an in-memory set of seen message IDs. It lives for one run and is
// not persisted; cross-run protection comes from the record store's content
// hash.
type Guard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{seen: make(map[string]struct{})}
}

// Seen reports whether id was marked earlier in this run.
func (g *Guard) Seen(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[id]
	return ok
}

// Mark records id as handled.
func (g *Guard) Mark(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[id] = struct{}{}
}

// CheckAndMark marks id and reports whether it had already been seen.
func (g *Guard) CheckAndMark(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[id]; ok {
		return true
	}
	g.seen[id] = struct{}{}
	return false
}

// Len returns the number of marked IDs.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
