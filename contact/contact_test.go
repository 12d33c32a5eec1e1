package contact

import (
	"net"
	"testing"
	"time"

	"mldht/id"
)

func newTestContact(t *testing.T) *Contact {
	t.Helper()
	nid, err := id.Random()
	if err != nil {
		t.Fatalf("id.Random: %v", err)
	}
	addr := net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 6881}
	return New(nid, addr, nil)
}

func TestInitialStateIsGood(t *testing.T) {
	c := newTestContact(t)
	defer c.Close()
	if c.State() != Good {
		t.Fatalf("new contact should start Good, got %v", c.State())
	}
}

func TestCurseProgression(t *testing.T) {
	c := newTestContact(t)
	defer c.Close()
	c.Curse()
	if c.State() != Questionable {
		t.Fatalf("badCount=1 should be Questionable, got %v", c.State())
	}
	c.Curse()
	if c.State() != Questionable {
		t.Fatalf("badCount=2 should still be Questionable, got %v", c.State())
	}
	c.Curse()
	if c.State() != Bad {
		t.Fatalf("badCount=3 should be Bad, got %v", c.State())
	}
	if c.Routable() {
		t.Fatalf("a Bad contact should not be Routable")
	}
}

func TestThankResetsBadCount(t *testing.T) {
	c := newTestContact(t)
	defer c.Close()
	c.Curse()
	c.Curse()
	before := c.LastSeen
	time.Sleep(time.Millisecond)
	c.Thank()
	if c.State() != Good {
		t.Fatalf("Thank should reset state to Good, got %v", c.State())
	}
	if !c.LastSeen.After(before) {
		t.Fatalf("Thank should advance LastSeen")
	}
}

func TestCurseDoesNotAdvanceLastSeen(t *testing.T) {
	c := newTestContact(t)
	defer c.Close()
	before := c.LastSeen
	c.Curse()
	if c.LastSeen != before {
		t.Fatalf("Curse must not advance LastSeen")
	}
}

func TestCloseCancelsReping(t *testing.T) {
	fired := make(chan struct{}, 1)
	nid, _ := id.Random()
	c := New(nid, net.UDPAddr{}, func(*Contact) { fired <- struct{}{} })
	c.Close()
	select {
	case <-fired:
		t.Fatalf("re-ping callback fired after Close")
	case <-time.After(50 * time.Millisecond):
	}
}
