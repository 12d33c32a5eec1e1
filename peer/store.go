// Package peer implements the DHT's peer store: a time-bounded mapping
// from infohash to the set of addresses that have announced as a
// source for it.
package peer

import (
	"container/ring"
	"net"
	"sync"
	"time"

	"mldht/id"

	"github.com/golang/groupcache/lru"
)

// DefaultTTL is how long an announced peer record lives without being
// renewed by a re-announce.
const DefaultTTL = time.Hour

// Fanout is how many addresses Get returns per call, rotating through
// the known set so repeated callers eventually see all of them.
const Fanout = 8

// Store maps infohash -> set of announced peer addresses, each with its
// own expiry. It is safe for concurrent use: record expiry fires on its
// own goroutine via time.AfterFunc.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache // key: string(infohash[:]) -> *infohashPeers
	ttl   time.Duration

	// onNew/onDelete fire peer:new and peer:delete. Either may be nil.
	onNew    func(ih id.ID, addr net.UDPAddr)
	onDelete func(ih id.ID, addr net.UDPAddr)
}

type record struct {
	addr  net.UDPAddr
	timer *time.Timer
	elem  *ring.Ring
}

type infohashPeers struct {
	set  map[string]*record // key: addr.String()
	ring *ring.Ring         // rotates over the same records, for fair Get()
}

// Options configures a Store. A zero value Options uses the defaults.
type Options struct {
	MaxInfoHashes int // 0 means unbounded
	TTL           time.Duration
	OnNew         func(ih id.ID, addr net.UDPAddr)
	OnDelete      func(ih id.ID, addr net.UDPAddr)
}

// NewStore creates a peer store. maxInfoHashes caps the number of
// distinct infohashes tracked (0 = unbounded, per spec.md §5's resource
// bounds note that operators "may impose a cap"); the least-recently
// used infohash is evicted first, where Add, Get and Count all count as
// a use.
func NewStore(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		ttl:      ttl,
		onNew:    opts.OnNew,
		onDelete: opts.OnDelete,
	}
	s.cache = lru.New(opts.MaxInfoHashes)
	s.cache.OnEvicted = func(key lru.Key, value interface{}) {
		ihp := value.(*infohashPeers)
		for _, rec := range ihp.set {
			rec.timer.Stop()
		}
	}
	return s
}

func keyFor(ih id.ID) string { return string(ih[:]) }

// Add records addr as a peer for ih, renewing its TTL if already
// present. It reports true exactly when a fresh record was created
// (the only case that should emit peer:new).
func (s *Store) Add(ih id.ID, addr net.UDPAddr) (isNew bool) {
	s.mu.Lock()
	ihp := s.getOrCreateLocked(ih)
	addrKey := addr.String()
	if rec, exists := ihp.set[addrKey]; exists {
		rec.timer.Reset(s.ttl)
		s.mu.Unlock()
		return false
	}
	rec := &record{addr: addr}
	rec.timer = time.AfterFunc(s.ttl, func() { s.expire(ih, addrKey) })
	ihp.set[addrKey] = rec
	rec.elem = pushRing(&ihp.ring, addrKey)
	s.mu.Unlock()

	if s.onNew != nil {
		s.onNew(ih, addr)
	}
	return true
}

func (s *Store) getOrCreateLocked(ih id.ID) *infohashPeers {
	key := keyFor(ih)
	if v, ok := s.cache.Get(key); ok {
		return v.(*infohashPeers)
	}
	ihp := &infohashPeers{set: make(map[string]*record)}
	s.cache.Add(key, ihp)
	return ihp
}

func pushRing(r **ring.Ring, value string) *ring.Ring {
	e := &ring.Ring{Value: value}
	if *r == nil {
		*r = e
	} else {
		(*r).Prev().Link(e)
	}
	return e
}

func (s *Store) expire(ih id.ID, addrKey string) {
	s.mu.Lock()
	v, ok := s.cache.Get(keyFor(ih))
	if !ok {
		s.mu.Unlock()
		return
	}
	ihp := v.(*infohashPeers)
	rec, ok := ihp.set[addrKey]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(ihp.set, addrKey)
	unlinkRing(&ihp.ring, rec.elem)
	addr := rec.addr
	s.mu.Unlock()

	if s.onDelete != nil {
		s.onDelete(ih, addr)
	}
}

func unlinkRing(r **ring.Ring, e *ring.Ring) {
	if *r == e {
		if e.Next() == e {
			*r = nil
		} else {
			*r = e.Next()
		}
	}
	e.Prev().Unlink(1)
}

// Get returns up to Fanout known addresses for ih, rotating through the
// full set across repeated calls so long-lived callers eventually
// observe every known peer.
func (s *Store) Get(ih id.ID) []net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(keyFor(ih))
	if !ok {
		return nil
	}
	ihp := v.(*infohashPeers)
	if ihp.ring == nil {
		return nil
	}
	n := Fanout
	if n > len(ihp.set) {
		n = len(ihp.set)
	}
	out := make([]net.UDPAddr, 0, n)
	cur := ihp.ring
	for i := 0; i < n; i++ {
		out = append(out, ihp.set[cur.Value.(string)].addr)
		cur = cur.Next()
	}
	ihp.ring = cur
	return out
}

// Count reports how many peer records are currently tracked for ih.
func (s *Store) Count(ih id.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(keyFor(ih))
	if !ok {
		return 0
	}
	return len(v.(*infohashPeers).set)
}
