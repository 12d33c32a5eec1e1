package bucket

import (
	"net"
	"testing"
	"time"

	"mldht/contact"
	"mldht/id"
)

func newContact(t *testing.T, hex string) *contact.Contact {
	t.Helper()
	nid, err := id.FromHex(hex)
	if err != nil {
		t.Fatalf("FromHex(%s): %v", hex, err)
	}
	return contact.New(nid, net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 6881}, nil)
}

func fullRangeBucket() *Bucket {
	return New(id.Zero, id.Max, true, nil)
}

func TestInsertFillsFreeSlots(t *testing.T) {
	b := fullRangeBucket()
	defer b.Close()
	for i := 0; i < Capacity; i++ {
		c := newContact(t, padHex(t, i))
		if res := b.Insert(c); res != Inserted {
			t.Fatalf("insert %d: want Inserted, got %v", i, res)
		}
	}
	if b.Len() != Capacity {
		t.Fatalf("Len = %d, want %d", b.Len(), Capacity)
	}
}

func TestInsertExistingRefreshes(t *testing.T) {
	b := fullRangeBucket()
	defer b.Close()
	c := newContact(t, padHex(t, 0))
	b.Insert(c)
	before := c.LastSeen
	time.Sleep(time.Millisecond)
	if res := b.Insert(c); res != Inserted {
		t.Fatalf("re-insert: want Inserted, got %v", res)
	}
	if b.Len() != 1 {
		t.Fatalf("re-insert should not grow the bucket, Len = %d", b.Len())
	}
	if !c.LastSeen.After(before) {
		t.Fatalf("re-insert should refresh LastSeen")
	}
}

func TestInsertOverCapacityNeedsSplitWhenSplittable(t *testing.T) {
	b := fullRangeBucket()
	defer b.Close()
	for i := 0; i < Capacity; i++ {
		b.Insert(newContact(t, padHex(t, i)))
	}
	extra := newContact(t, padHex(t, Capacity))
	if res := b.Insert(extra); res != NeedSplit {
		t.Fatalf("full splittable bucket: want NeedSplit, got %v", res)
	}
	if b.Len() != Capacity {
		t.Fatalf("rejected-for-split insert must not touch the bucket, Len = %d", b.Len())
	}
}

func TestInsertOverCapacityRejectedWhenNotSplittable(t *testing.T) {
	b := New(id.Zero, id.Max, false, nil)
	defer b.Close()
	for i := 0; i < Capacity; i++ {
		b.Insert(newContact(t, padHex(t, i)))
	}
	extra := newContact(t, padHex(t, Capacity))
	if res := b.Insert(extra); res != Rejected {
		t.Fatalf("full non-splittable bucket: want Rejected, got %v", res)
	}
}

func TestInsertEvictsOldestBadContact(t *testing.T) {
	b := New(id.Zero, id.Max, false, nil)
	defer b.Close()
	var bad *contact.Contact
	for i := 0; i < Capacity; i++ {
		c := newContact(t, padHex(t, i))
		if i == 3 {
			c.Curse()
			c.Curse()
			c.Curse()
			bad = c
		}
		b.Insert(c)
	}
	extra := newContact(t, padHex(t, Capacity))
	if res := b.Insert(extra); res != Inserted {
		t.Fatalf("insert replacing a bad contact: want Inserted, got %v", res)
	}
	for _, c := range b.Contacts() {
		if c.ID == bad.ID {
			t.Fatalf("bad contact should have been evicted")
		}
	}
	if b.Len() != Capacity {
		t.Fatalf("eviction+insert should keep Len at capacity, got %d", b.Len())
	}
}

func TestSplitPartitionsRangeAndContacts(t *testing.T) {
	b := fullRangeBucket()
	for i := 0; i < Capacity; i++ {
		b.Insert(newContact(t, padHex(t, i)))
	}
	left, right := b.Split(id.Zero)
	defer left.Close()
	defer right.Close()

	llo, lhi := left.Range()
	rlo, rhi := right.Range()
	if llo != id.Zero || rhi != id.Max {
		t.Fatalf("split halves should tile [lo,hi] exactly")
	}
	if lhi == rlo {
		t.Fatalf("split halves must not overlap at the boundary")
	}

	total := left.Len() + right.Len()
	if total != Capacity {
		t.Fatalf("split should preserve all contacts, got %d want %d", total, Capacity)
	}
	for _, c := range left.Contacts() {
		if !left.Contains(c.ID) {
			t.Fatalf("contact %x landed in the wrong half", c.ID)
		}
	}
	for _, c := range right.Contacts() {
		if !right.Contains(c.ID) {
			t.Fatalf("contact %x landed in the wrong half", c.ID)
		}
	}
}

func TestSplitSplittableFollowsLocalID(t *testing.T) {
	b := fullRangeBucket()
	localID := id.Max // lands in the upper half
	left, right := b.Split(localID)
	defer left.Close()
	defer right.Close()
	if left.Splittable() {
		t.Fatalf("half not containing the local id must not be splittable")
	}
	if !right.Splittable() {
		t.Fatalf("half containing the local id must be splittable")
	}
}

func TestRandomTargetStaysInRange(t *testing.T) {
	lo, err := id.FromHex("1000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	hi, err := id.FromHex("2000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	b := New(lo, hi, false, nil)
	defer b.Close()
	for i := 0; i < 20; i++ {
		target, err := b.RandomTarget()
		if err != nil {
			t.Fatalf("RandomTarget: %v", err)
		}
		if !id.ContainsRange(lo, hi, target) {
			t.Fatalf("RandomTarget %x outside [%x,%x]", target, lo, hi)
		}
	}
}

// padHex builds a distinct, deterministic 40-hex-digit id for test contact i.
func padHex(t *testing.T, i int) string {
	t.Helper()
	digits := make([]byte, 40)
	for j := range digits {
		digits[j] = '0'
	}
	digits[39] = "0123456789abcdef"[i%16]
	return string(digits)
}
