// Package arena provides a fixed-size free list of byte slices so the
// packet-receive path can reuse buffers instead of allocating one per
// datagram.
package arena

import "expvar"

var (
	popBlocking  = expvar.NewInt("mldht.arena.popBlocking")
	popExhausted = expvar.NewInt("mldht.arena.popExhausted")
)

// Arena is a free list that provides quick access to pre-allocated byte
// slices, greatly reducing memory churn and effectively disabling GC for
// these allocations. After the arena is created, a slice of bytes can be
// requested by calling Pop(). The caller is responsible for calling Push(),
// which puts the block back in the queue for later use. The bytes given by
// Pop() are *not* zeroed, so the caller should only read positions that it
// knows to have been overwritten, typically by shortening the slice to the
// byte count returned by a Read or Write call.
type Arena chan []byte

// NewArena allocates numBlocks slices of blockSize bytes and fills the
// arena's free list with them.
func NewArena(blockSize int, numBlocks int) Arena {
	blocks := make(Arena, numBlocks)
	for i := 0; i < numBlocks; i++ {
		blocks <- make([]byte, blockSize)
	}
	return blocks
}

// Pop removes and returns a block from the free list. It blocks until one
// is available, which only happens if every block is checked out at once;
// that is tracked via the mldht.arena.popExhausted counter so a production
// node can be sized correctly.
func (a Arena) Pop() []byte {
	select {
	case x := <-a:
		return x
	default:
		popExhausted.Add(1)
	}
	popBlocking.Add(1)
	return <-a
}

// Push returns a block to the free list, restoring it to full capacity so
// the next Pop sees a clean slice to write into.
func (a Arena) Push(x []byte) {
	x = x[:cap(x)]
	a <- x
}
