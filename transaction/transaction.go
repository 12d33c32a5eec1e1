// Package transaction correlates outbound KRPC queries with their
// responses over unreliable UDP: it allocates transaction ids, tracks a
// per-transaction timeout, and guarantees each continuation runs exactly
// once, whichever of a late response or the timeout gets there first.
package transaction

import (
	"crypto/rand"
	"net"
	"sync"
	"time"
)

// DefaultTimeout is how long a query waits for a reply before the
// transaction resolves as timed out.
const DefaultTimeout = 5 * time.Second

// maxIDAttempts bounds how many 2-byte transaction ids are tried before
// falling back to a longer, effectively collision-free id. The wire
// format treats 't' as an opaque byte string of any length, so growing
// it is transparent to the protocol.
const maxIDAttempts = 8

// Continuation is invoked exactly once to resolve a transaction: with a
// non-nil err on timeout/cancel/remote-error, or with err == nil and the
// decoded response otherwise.
type Continuation func(err error, resp interface{}, from net.UDPAddr)

type entry struct {
	continuation Continuation
	timer        *time.Timer
}

// Registry is the owner of all outstanding transactions for a node. It
// is safe for concurrent use: Register is called from whichever
// goroutine originates a query, Resolve from the event loop, and a
// transaction's timeout fires on its own goroutine.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]*entry)}
}

// Register allocates a new transaction id, schedules its timeout, and
// returns the id to embed in the outbound query's 't' field.
func (r *Registry) Register(cont Continuation, timeout time.Duration) (string, error) {
	r.mu.Lock()
	tid, err := r.allocateIDLocked()
	if err != nil {
		r.mu.Unlock()
		return "", err
	}
	e := &entry{continuation: cont}
	r.pending[tid] = e
	r.mu.Unlock()

	e.timer = time.AfterFunc(timeout, func() { r.fireTimeout(tid) })
	return tid, nil
}

// allocateIDLocked must be called with r.mu held.
func (r *Registry) allocateIDLocked() (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		tid, err := randomID(2)
		if err != nil {
			return "", err
		}
		if _, taken := r.pending[tid]; !taken {
			return tid, nil
		}
	}
	// Collisions in 2 bytes maxIDAttempts times running is astronomically
	// unlikely; widen the id space rather than fail outright.
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		tid, err := randomID(3)
		if err != nil {
			return "", err
		}
		if _, taken := r.pending[tid]; !taken {
			return tid, nil
		}
	}
	return "", ErrIDSpaceExhausted
}

func randomID(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Registry) fireTimeout(tid string) {
	r.mu.Lock()
	e, ok := r.pending[tid]
	if ok {
		delete(r.pending, tid)
	}
	r.mu.Unlock()
	if !ok {
		// A response already resolved this transaction; timeout loses.
		return
	}
	e.continuation(ErrTimeout, nil, net.UDPAddr{})
}

// Resolve correlates an inbound response with its transaction. It
// returns false if tid is unknown (already resolved, timed out, or
// never registered), in which case the caller should silently drop the
// packet per the protocol engine's dispatch rules.
func (r *Registry) Resolve(tid string, resp interface{}, from net.UDPAddr) bool {
	r.mu.Lock()
	e, ok := r.pending[tid]
	if ok {
		delete(r.pending, tid)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.timer.Stop()
	e.continuation(nil, resp, from)
	return true
}

// ResolveError correlates an inbound protocol error reply ('y'='e')
// with its transaction, surfacing it as a RemoteError.
func (r *Registry) ResolveError(tid string, remoteErr *RemoteError, from net.UDPAddr) bool {
	r.mu.Lock()
	e, ok := r.pending[tid]
	if ok {
		delete(r.pending, tid)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.timer.Stop()
	e.continuation(remoteErr, nil, from)
	return true
}

// Cancel silently drops a transaction without invoking its
// continuation. Used when a caller is no longer interested in the
// reply (e.g. an iterative lookup that already converged).
func (r *Registry) Cancel(tid string) {
	r.mu.Lock()
	e, ok := r.pending[tid]
	if ok {
		delete(r.pending, tid)
	}
	r.mu.Unlock()
	if ok {
		e.timer.Stop()
	}
}

// CancelAll resolves every outstanding transaction with ErrCancelled
// and clears the registry. Called once, on node shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	snapshot := r.pending
	r.pending = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range snapshot {
		e.timer.Stop()
		e.continuation(ErrCancelled, nil, net.UDPAddr{})
	}
}

// Len returns the number of outstanding transactions, mostly useful for
// tests and diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
