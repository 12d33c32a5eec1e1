package mldht

import (
	"net"
	"testing"

	"mldht/bucket"
	"mldht/id"
)

// idAt returns an ID equal to target with byte 19 (the least significant)
// XORed with delta, so the resulting ID's distance to target is exactly
// delta under the XOR metric.
func idAt(target id.ID, delta byte) id.ID {
	out := target
	out[id.Len-1] ^= delta
	return out
}

func TestClosestRespondersTrimsToK(t *testing.T) {
	target, err := id.Random()
	if err != nil {
		t.Fatalf("id.Random: %v", err)
	}

	var responders []respondingNode
	for i := 0; i < bucket.Capacity+5; i++ {
		responders = append(responders, respondingNode{
			id:    idAt(target, byte(i+1)),
			addr:  net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 4000 + i},
			token: "tok",
		})
	}

	got := closestResponders(target, responders)
	if len(got) != bucket.Capacity {
		t.Fatalf("len(got) = %d, want %d", len(got), bucket.Capacity)
	}
	for i, r := range got {
		wantDelta := byte(i + 1)
		if r.id != idAt(target, wantDelta) {
			t.Fatalf("got[%d] is not the %d-th closest responder", i, i+1)
		}
	}
}

func TestClosestRespondersPassesThroughUnderK(t *testing.T) {
	target, err := id.Random()
	if err != nil {
		t.Fatalf("id.Random: %v", err)
	}
	responders := []respondingNode{
		{id: idAt(target, 3), addr: net.UDPAddr{Port: 1}, token: "a"},
		{id: idAt(target, 1), addr: net.UDPAddr{Port: 2}, token: "b"},
	}

	got := closestResponders(target, responders)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].token != "b" || got[1].token != "a" {
		t.Fatalf("expected ascending-distance order, got %+v", got)
	}
}
