// Package ratelimit implements the inbound packet throttling a node
// applies before doing any protocol work: a global per-second token
// bucket, and a per-client per-minute cap so a single noisy host can't
// crowd out everyone else.
package ratelimit

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// TokenBucket enforces a global packets-per-second ceiling. A negative
// rate disables limiting entirely; a caller should check Disabled
// before wiring up the refill ticker.
type TokenBucket struct {
	mu     sync.Mutex
	rate   int64
	tokens int64
}

// NewTokenBucket creates a bucket starting full. rate <= 0 disables
// limiting (Take always succeeds).
func NewTokenBucket(rate int64) *TokenBucket {
	return &TokenBucket{rate: rate, tokens: rate}
}

// Disabled reports whether the configured rate turns off limiting.
func (b *TokenBucket) Disabled() bool {
	return b.rate <= 0
}

// Take consumes one token, reporting whether one was available.
// Disabled buckets always report true.
func (b *TokenBucket) Take() bool {
	if b.Disabled() {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Refill adds back a tenth of the configured rate, the same cadence
// dht.go's loop used (a ticker firing 10 times a second), without
// exceeding the configured ceiling.
func (b *TokenBucket) Refill() {
	if b.Disabled() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens += b.rate / 10
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
}

// ClientThrottle caps how many packets a single client IP may send per
// minute, remembering the most recently active clients bounded by an
// LRU so memory doesn't grow without bound under a sustained attack
// from many distinct addresses.
type ClientThrottle struct {
	mu         sync.Mutex
	perMinute  int
	cache      *lru.Cache
	stop       chan struct{}
	stopOnce   sync.Once
	resetEvery time.Duration
}

type clientCounter struct {
	count int
}

// NewClientThrottle creates a throttle allowing perMinute packets per
// client, remembering up to trackedClients distinct IPs. perMinute <= 0
// disables limiting.
func NewClientThrottle(perMinute int, trackedClients int) *ClientThrottle {
	t := &ClientThrottle{
		perMinute:  perMinute,
		cache:      lru.New(trackedClients),
		stop:       make(chan struct{}),
		resetEvery: time.Minute,
	}
	go t.resetLoop()
	return t
}

func (t *ClientThrottle) resetLoop() {
	ticker := time.NewTicker(t.resetEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			t.cache.Clear()
			t.mu.Unlock()
		case <-t.stop:
			return
		}
	}
}

// CheckAllow records one packet from ip and reports whether it is
// still within the per-minute budget.
func (t *ClientThrottle) CheckAllow(ip string) bool {
	if t.perMinute <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.cache.Get(ip)
	var c *clientCounter
	if ok {
		c = v.(*clientCounter)
	} else {
		c = &clientCounter{}
		t.cache.Add(ip, c)
	}
	c.count++
	return c.count <= t.perMinute
}

// Stop releases the throttle's reset goroutine.
func (t *ClientThrottle) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}
