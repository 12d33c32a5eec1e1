package id

import (
	"crypto/rand"
	"crypto/sha1"
	"io"
	"math/big"
)

// Random generates a node ID the way the protocol's RNG/hash collaborator
// is specified to: cryptographically secure random bytes, hashed with
// SHA-1 down to 20 bytes. Hashing random input (rather than using it
// directly) keeps node-ID generation independent of the RNG's output
// width if that ever changes.
func Random() (ID, error) {
	buf := make([]byte, 64)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return ID{}, err
	}
	sum := sha1.Sum(buf)
	return ID(sum), nil
}

// RandomInRange returns an ID drawn uniformly from [lo, hi], inclusive.
// Used by k-bucket refresh to pick a target that is guaranteed to fall
// within the bucket being refreshed.
func RandomInRange(lo, hi ID) (ID, error) {
	l, h := toBig(lo), toBig(hi)
	span := new(big.Int).Sub(h, l)
	span.Add(span, big.NewInt(1)) // inclusive upper bound
	if span.Sign() <= 0 {
		return lo, nil
	}
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return ID{}, err
	}
	n.Add(n, l)
	return fromBig(n), nil
}
