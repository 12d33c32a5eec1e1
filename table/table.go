// Package table implements the DHT's routing table: the ordered list of
// k-buckets tiling the 160-bit id space, and the operations a node uses
// to observe new contacts and answer find_node/get_peers with the
// closest known nodes to a target.
package table

import (
	"expvar"
	"net"
	"sort"
	"sync"

	"mldht/bucket"
	"mldht/contact"
	"mldht/id"
)

// splitGuard bounds how many times Observe may split the home bucket
// while inserting a single contact. The id space is 160 bits deep, so
// no chain of splits can exceed that without a logic bug.
const splitGuard = id.Len * 8

var (
	nodesObserved = expvar.NewInt("mldht.table.nodesObserved")
	nodesKilled   = expvar.NewInt("mldht.table.nodesKilled")
)

// Table is the routing table for a single local node. Its buckets
// always tile [id.Zero, id.Max] exactly: adjacent buckets share a
// boundary, and every id falls in exactly one.
type Table struct {
	mu      sync.Mutex
	localID id.ID
	buckets []*bucket.Bucket // ascending by range, always tiling the full space

	byAddr map[string]*contact.Contact // addr.String() -> contact
	byID   map[id.ID]string            // node id -> addr.String()

	onRefreshDue func(target id.ID)
	onStale      func(c *contact.Contact)
}

// New creates a routing table with a single bucket spanning the whole
// id space. onRefreshDue is called (on a bucket's timer goroutine) when
// a bucket goes stale and should be refreshed via a find_node lookup
// for the returned target. onStale is called (on a contact's timer
// goroutine) when a contact is due for a liveness re-ping. Either may
// be nil.
func New(localID id.ID, onRefreshDue func(target id.ID), onStale func(c *contact.Contact)) *Table {
	t := &Table{
		localID:      localID,
		byAddr:       make(map[string]*contact.Contact),
		byID:         make(map[id.ID]string),
		onRefreshDue: onRefreshDue,
		onStale:      onStale,
	}
	root := bucket.New(id.Zero, id.Max, true, t.bucketRefreshDue)
	t.buckets = []*bucket.Bucket{root}
	return t
}

func (t *Table) bucketRefreshDue(b *bucket.Bucket) {
	if t.onRefreshDue == nil {
		return
	}
	target, err := b.RandomTarget()
	if err != nil {
		return
	}
	t.onRefreshDue(target)
}

// locateLocked returns the index of the bucket containing target.
// Bucket ranges are an exact, non-overlapping tiling, so exactly one
// always matches.
func (t *Table) locateLocked(target id.ID) int {
	for i, b := range t.buckets {
		if b.Contains(target) {
			return i
		}
	}
	// Unreachable: the buckets always tile [Zero, Max].
	return len(t.buckets) - 1
}

// Locate returns the bucket that would hold target.
func (t *Table) Locate(target id.ID) *bucket.Bucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buckets[t.locateLocked(target)]
}

// Observe records that nodeID was seen alive at addr, inserting it into
// the routing table. It is a no-op for the local node's own id. When
// the target bucket is full and splittable, it is split (possibly
// repeatedly, bounded by the depth of the id space) until the new
// contact fits or lands in a non-splittable, full bucket and is
// dropped.
func (t *Table) Observe(nodeID id.ID, addr net.UDPAddr) bool {
	if nodeID == t.localID {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	addrKey := addr.String()
	c := t.byAddr[addrKey]
	if c == nil || c.ID != nodeID {
		c = contact.New(nodeID, addr, t.onStale)
	}

	idx := t.locateLocked(nodeID)
	b := t.buckets[idx]
	for i := 0; i < splitGuard; i++ {
		switch b.Insert(c) {
		case bucket.Inserted:
			t.byAddr[addrKey] = c
			t.byID[nodeID] = addrKey
			nodesObserved.Add(1)
			return true
		case bucket.Rejected:
			return false
		case bucket.NeedSplit:
			left, right := b.Split(t.localID)
			rest := append([]*bucket.Bucket{left, right}, t.buckets[idx+1:]...)
			t.buckets = append(t.buckets[:idx], rest...)
			idx = t.locateLocked(nodeID)
			b = t.buckets[idx]
		}
	}
	return false
}

// Thank records a successful RPC round trip with nodeID, if it is
// currently tracked, resetting its bad count. Callers should Observe
// the node first so a first-time reply still gets recorded.
func (t *Table) Thank(nodeID id.ID) {
	t.mu.Lock()
	c := t.contactLocked(nodeID)
	t.mu.Unlock()
	if c != nil {
		c.Thank()
	}
}

// Curse records a failed RPC round trip (timeout or transport error)
// with nodeID, if it is currently tracked. It is a no-op for a node
// the table never learned about, since there is nothing to penalize.
func (t *Table) Curse(nodeID id.ID) {
	t.mu.Lock()
	c := t.contactLocked(nodeID)
	t.mu.Unlock()
	if c != nil {
		c.Curse()
	}
}

func (t *Table) contactLocked(nodeID id.ID) *contact.Contact {
	addrKey, ok := t.byID[nodeID]
	if !ok {
		return nil
	}
	return t.byAddr[addrKey]
}

// Remove evicts nodeID from the routing table, if present.
func (t *Table) Remove(nodeID id.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	addrKey, ok := t.byID[nodeID]
	if !ok {
		return
	}
	delete(t.byID, nodeID)
	delete(t.byAddr, addrKey)
	t.buckets[t.locateLocked(nodeID)].Remove(nodeID)
	nodesKilled.Add(1)
}

// Len reports the total number of contacts known across every bucket.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.buckets {
		n += b.Len()
	}
	return n
}

// BucketCount reports how many buckets currently tile the id space.
func (t *Table) BucketCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// KClosest returns up to k routable contacts closest to target under
// the XOR metric, ascending by distance, with no duplicates.
func (t *Table) KClosest(target id.ID, k int) []*contact.Contact {
	t.mu.Lock()
	var all []*contact.Contact
	for _, b := range t.buckets {
		for _, c := range b.Contacts() {
			if c.Routable() {
				all = append(all, c)
			}
		}
	}
	t.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return id.CloserTo(target, all[i].ID, all[j].ID)
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// Close stops every bucket's refresh timer and every contact's re-ping
// timer, releasing all resources owned by the table.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range t.buckets {
		b.Close()
	}
}
