// Package block maintains the symmetric "blocked" relation between user
// identity pairs. The durable store is authoritative; this in-memory graph is
// the matcher's O(1) eligibility cache and is reloaded from the store at
// startup.
package block

import "sync"

// Graph is a goroutine-safe set of blocked identity pairs. Both orderings of
// a pair are treated as equivalent: a single recorded edge makes the pair
// mutually ineligible for matching regardless of who blocked whom.
type Graph struct {
	mu    sync.RWMutex
	edges map[[2]string]struct{}
}

// NewGraph creates an empty block graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[[2]string]struct{})}
}

// key normalizes a pair so (a,b) and (b,a) map to the same entry.
func key(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Block records a block between a and b. Idempotent.
func (g *Graph) Block(a, b string) {
	g.mu.Lock()
	g.edges[key(a, b)] = struct{}{}
	g.mu.Unlock()
}

// Unblock removes the block between a and b. No-op if no edge exists.
func (g *Graph) Unblock(a, b string) {
	g.mu.Lock()
	delete(g.edges, key(a, b))
	g.mu.Unlock()
}

// IsBlocked reports whether a block exists between a and b in either
// direction.
func (g *Graph) IsBlocked(a, b string) bool {
	g.mu.RLock()
	_, ok := g.edges[key(a, b)]
	g.mu.RUnlock()
	return ok
}

// Len returns the number of recorded edges.
func (g *Graph) Len() int {
	g.mu.RLock()
	n := len(g.edges)
	g.mu.RUnlock()
	return n
}

// Load replaces the graph contents with the given edges. Used at startup to
// prime the cache from the durable store before matches are served.
func (g *Graph) Load(pairs [][2]string) {
	g.mu.Lock()
	g.edges = make(map[[2]string]struct{}, len(pairs))
	for _, p := range pairs {
		g.edges[key(p[0], p[1])] = struct{}{}
	}
	g.mu.Unlock()
}
