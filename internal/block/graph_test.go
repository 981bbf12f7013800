package block

import "testing"

func TestBlock_Symmetric(t *testing.T) {
	g := NewGraph()
	g.Block("alice", "bob")

	if !g.IsBlocked("alice", "bob") {
		t.Error("expected (alice, bob) blocked")
	}
	if !g.IsBlocked("bob", "alice") {
		t.Error("expected (bob, alice) blocked")
	}
	if g.IsBlocked("alice", "carol") {
		t.Error("unrelated pair should not be blocked")
	}
}

func TestBlock_Idempotent(t *testing.T) {
	g := NewGraph()
	g.Block("alice", "bob")
	g.Block("bob", "alice")

	if g.Len() != 1 {
		t.Errorf("expected a single edge, got %d", g.Len())
	}
}

func TestUnblock(t *testing.T) {
	g := NewGraph()
	g.Block("alice", "bob")
	g.Unblock("bob", "alice")

	if g.IsBlocked("alice", "bob") {
		t.Error("expected pair unblocked")
	}

	// Unblocking a pair that was never blocked is a no-op.
	g.Unblock("alice", "carol")
	if g.Len() != 0 {
		t.Errorf("expected empty graph, got %d", g.Len())
	}
}

func TestLoad_ReplacesContents(t *testing.T) {
	g := NewGraph()
	g.Block("stale", "edge")

	g.Load([][2]string{
		{"alice", "bob"},
		{"bob", "alice"}, // duplicate in reverse order collapses
		{"carol", "dave"},
	})

	if g.Len() != 2 {
		t.Errorf("expected 2 edges after load, got %d", g.Len())
	}
	if g.IsBlocked("stale", "edge") {
		t.Error("load should discard prior contents")
	}
	if !g.IsBlocked("bob", "alice") || !g.IsBlocked("dave", "carol") {
		t.Error("loaded edges should be blocked in both orders")
	}
}
