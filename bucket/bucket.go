// Package bucket implements a single Kademlia k-bucket: a capacity-bound
// slice of the 160-bit ID space holding the contacts a routing table
// currently knows about in that range.
package bucket

import (
	"sync"
	"time"

	"mldht/contact"
	"mldht/id"
)

// Capacity is the maximum number of contacts a bucket holds before it
// must split (if splittable) or start rejecting new contacts.
const Capacity = 8

// RefreshInterval is the period of a bucket's refresh timer: each time
// it fires, the bucket asks for a lookup targeting a random id inside
// its range. Activity in the bucket does not reset the timer.
const RefreshInterval = 15 * time.Minute

// Result is the outcome of an Insert call.
type Result int

const (
	// Inserted means the contact is now present in the bucket, either
	// because it was new, already present (and refreshed), or replaced
	// an evicted bad contact.
	Inserted Result = iota
	// NeedSplit means the bucket is full of good/questionable contacts,
	// contains no bad contact to evict, and is splittable: the caller
	// must Split it and retry the insert against one of the halves.
	NeedSplit
	// Rejected means the bucket is full, has no evictable bad contact,
	// and cannot split: the new contact is dropped, the bucket
	// unchanged.
	Rejected
)

// Bucket owns the contacts whose ids fall in [lo, hi]. Only the bucket
// containing the local node's own id is splittable; all others have a
// fixed range for their lifetime.
type Bucket struct {
	lo, hi id.ID

	mu         sync.Mutex
	contacts   map[id.ID]*contact.Contact
	splittable bool
	closed     bool

	refreshTimer *time.Timer
	onRefreshDue func(b *Bucket)
}

// New creates a bucket covering [lo, hi] and arms its first refresh
// timer. onRefreshDue may be nil, in which case the bucket never
// originates refresh lookups (useful in tests).
func New(lo, hi id.ID, splittable bool, onRefreshDue func(b *Bucket)) *Bucket {
	b := &Bucket{
		lo:           lo,
		hi:           hi,
		contacts:     make(map[id.ID]*contact.Contact),
		splittable:   splittable,
		onRefreshDue: onRefreshDue,
	}
	b.startRefreshLocked()
	return b
}

// Range returns the bucket's inclusive id range.
func (b *Bucket) Range() (lo, hi id.ID) {
	return b.lo, b.hi
}

// Contains reports whether target falls inside the bucket's range.
func (b *Bucket) Contains(target id.ID) bool {
	return id.ContainsRange(b.lo, b.hi, target)
}

// Splittable reports whether the bucket may still be split (true only
// for the bucket currently holding the local node's id).
func (b *Bucket) Splittable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.splittable
}

// SetSplittable updates whether the bucket may split. The routing table
// does not call it; Split sets each child's flag itself.
func (b *Bucket) SetSplittable(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.splittable = v
}

// Len reports the number of contacts currently held.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contacts)
}

// Contacts returns a snapshot of every contact in the bucket, good, bad
// and questionable alike. Callers that need only routable contacts
// should filter with Contact.Routable.
func (b *Bucket) Contacts() []*contact.Contact {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*contact.Contact, 0, len(b.contacts))
	for _, c := range b.contacts {
		out = append(out, c)
	}
	return out
}

// Insert adds c to the bucket, following the rules in order: refresh an
// existing entry, fill a free slot, evict the stalest bad contact, or
// signal that the caller must split (if splittable) or drop c.
func (b *Bucket) Insert(c *contact.Contact) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.contacts[c.ID]; ok {
		existing.Touch()
		return Inserted
	}
	if len(b.contacts) < Capacity {
		b.contacts[c.ID] = c
		return Inserted
	}

	var oldestBad *contact.Contact
	for _, existing := range b.contacts {
		if existing.State() != contact.Bad {
			continue
		}
		if oldestBad == nil || existing.LastSeen.Before(oldestBad.LastSeen) {
			oldestBad = existing
		}
	}
	if oldestBad != nil {
		delete(b.contacts, oldestBad.ID)
		oldestBad.Close()
		b.contacts[c.ID] = c
		return Inserted
	}

	if b.splittable {
		return NeedSplit
	}
	return Rejected
}

// Remove drops a contact by id, if present, and closes it.
func (b *Bucket) Remove(nodeID id.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.contacts[nodeID]; ok {
		delete(b.contacts, nodeID)
		c.Close()
	}
}

// Split divides the bucket in half at its midpoint, redistributing its
// contacts between the two halves. localID decides which half (if
// either) remains splittable: the one still containing the local node's
// own id. The parent's refresh timer is stopped; both children start
// their own.
func (b *Bucket) Split(localID id.ID) (left, right *Bucket) {
	b.mu.Lock()
	loRight, hiLeft := id.Midpoint(b.lo, b.hi)
	lo, hi := b.lo, b.hi
	contacts := make([]*contact.Contact, 0, len(b.contacts))
	for _, c := range b.contacts {
		contacts = append(contacts, c)
	}
	if b.refreshTimer != nil {
		b.refreshTimer.Stop()
	}
	b.closed = true
	onRefreshDue := b.onRefreshDue
	b.mu.Unlock()

	left = New(lo, hiLeft, id.ContainsRange(lo, hiLeft, localID), onRefreshDue)
	right = New(loRight, hi, id.ContainsRange(loRight, hi, localID), onRefreshDue)
	for _, c := range contacts {
		if id.ContainsRange(lo, hiLeft, c.ID) {
			left.contacts[c.ID] = c
		} else {
			right.contacts[c.ID] = c
		}
	}
	return left, right
}

func (b *Bucket) startRefreshLocked() {
	if b.onRefreshDue == nil {
		return
	}
	b.refreshTimer = time.AfterFunc(RefreshInterval, b.fireRefresh)
}

func (b *Bucket) fireRefresh() {
	b.mu.Lock()
	due := b.onRefreshDue
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	if due != nil {
		due(b)
	}
	b.mu.Lock()
	if !b.closed {
		b.startRefreshLocked()
	}
	b.mu.Unlock()
}

// RandomTarget returns a pseudo-random id within the bucket's range,
// suitable for the find_node lookup a refresh originates.
func (b *Bucket) RandomTarget() (id.ID, error) {
	b.mu.Lock()
	lo, hi := b.lo, b.hi
	b.mu.Unlock()
	return id.RandomInRange(lo, hi)
}

// Close stops the refresh timer and closes every held contact. Used
// when a bucket is being discarded outright (not split).
func (b *Bucket) Close() {
	b.mu.Lock()
	b.closed = true
	if b.refreshTimer != nil {
		b.refreshTimer.Stop()
	}
	contacts := make([]*contact.Contact, 0, len(b.contacts))
	for _, c := range b.contacts {
		contacts = append(contacts, c)
	}
	b.mu.Unlock()
	for _, c := range contacts {
		c.Close()
	}
}
