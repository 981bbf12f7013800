package session

import (
	"errors"
	"testing"
	"time"
)

type fakeSender struct {
	sent   [][]byte
	closed bool
}

func (f *fakeSender) Send(data []byte) error { f.sent = append(f.sent, data); return nil }
func (f *fakeSender) Close() error           { f.closed = true; return nil }

func TestRegister_Lookup(t *testing.T) {
	r := NewRegistry()

	s, err := r.Register("0xalice", &fakeSender{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "0xalice" {
		t.Errorf("unexpected session ID %q", s.ID)
	}
	if r.Lookup("0xalice") != s {
		t.Error("Lookup should return the registered session")
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}
}

func TestRegister_DuplicateRefused(t *testing.T) {
	r := NewRegistry()
	first, _ := r.Register("0xalice", &fakeSender{})

	_, err := r.Register("0xalice", &fakeSender{})
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}

	// The original session must be untouched.
	if r.Lookup("0xalice") != first {
		t.Error("duplicate register must not displace the existing session")
	}
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Register("0xalice", &fakeSender{})

	if got := r.Unregister("0xalice"); got != s {
		t.Error("Unregister should return the removed session")
	}
	if r.Lookup("0xalice") != nil {
		t.Error("session should be gone after Unregister")
	}
	if got := r.Unregister("0xalice"); got != nil {
		t.Error("second Unregister should return nil")
	}
}

func TestRoomIDRoundTrip(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Register("0xalice", &fakeSender{})

	if s.RoomID() != "" {
		t.Error("fresh session should have no room")
	}
	s.SetRoomID("room-1")
	if s.RoomID() != "room-1" {
		t.Errorf("unexpected room id %q", s.RoomID())
	}
	s.SetRoomID("")
	if s.RoomID() != "" {
		t.Error("room reference should be cleared")
	}
}

func TestListStale(t *testing.T) {
	r := NewRegistry()
	stale, _ := r.Register("0xstale", &fakeSender{})
	r.Register("0xfresh", &fakeSender{})

	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	got := r.ListStale(time.Now().Add(-time.Minute))
	if len(got) != 1 || got[0] != "0xstale" {
		t.Errorf("expected [0xstale], got %v", got)
	}
}

func TestTouch(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Register("0xalice", &fakeSender{})

	s.mu.Lock()
	s.lastActive = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	r.Touch("0xalice")
	if time.Since(s.LastActive()) > time.Minute {
		t.Error("Touch should refresh last activity")
	}

	// Touch on an unknown identity is a no-op.
	r.Touch("0xunknown")
}

func TestAll_Snapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("0xalice", &fakeSender{})
	r.Register("0xbob", &fakeSender{})

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
}
