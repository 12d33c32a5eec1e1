// Package id implements the 160-bit identifier arithmetic shared by node
// IDs and infohashes: XOR distance, lexicographic ordering, and the exact
// interval splitting used to divide a k-bucket's range in half.
package id

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// Len is the length in bytes of a node ID or infohash, per BEP-5.
const Len = 20

// ID is a 160-bit opaque identifier: a node ID or an infohash.
type ID [Len]byte

// Zero is the all-zero identifier, the lower bound of the ID space.
var Zero ID

// Max is the all-ones identifier, the upper bound of the ID space.
var Max = func() ID {
	var m ID
	for i := range m {
		m[i] = 0xff
	}
	return m
}()

// FromBytes copies b into an ID. It panics if len(b) != Len, since a
// mismatched length indicates a caller bug, not recoverable input.
func FromBytes(b []byte) ID {
	if len(b) != Len {
		panic(fmt.Sprintf("id: FromBytes: want %d bytes, got %d", Len, len(b)))
	}
	var out ID
	copy(out[:], b)
	return out
}

// FromHex decodes a 40 hex character string into an ID.
func FromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, err
	}
	if len(b) != Len {
		return ID{}, fmt.Errorf("id: FromHex: expected %d bytes, got %d", Len, len(b))
	}
	return FromBytes(b), nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) Bytes() []byte {
	b := make([]byte, Len)
	copy(b, id[:])
	return b
}

// XOR returns the Kademlia distance metric d(a,b) = a XOR b.
func XOR(a, b ID) ID {
	var d ID
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Compare returns -1, 0 or 1 as a big-endian unsigned integer comparison
// of a and b, i.e. bytewise lexicographic order.
func Compare(a, b ID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether a sorts before b.
func Less(a, b ID) bool { return Compare(a, b) < 0 }

// ContainsRange reports whether lo <= id <= hi (inclusive), treating all
// three as big-endian unsigned integers.
func ContainsRange(lo, hi, target ID) bool {
	return Compare(lo, target) <= 0 && Compare(target, hi) <= 0
}

// CloserTo reports whether a is strictly closer to target than b is,
// under the XOR metric.
func CloserTo(target, a, b ID) bool {
	da, db := XOR(target, a), XOR(target, b)
	return Compare(da, db) < 0
}

func toBig(x ID) *big.Int {
	return new(big.Int).SetBytes(x[:])
}

func fromBig(x *big.Int) ID {
	var out ID
	// big.Int.FillBytes zero-pads on the left; x is always within
	// [0, 2^160) for every caller in this package.
	x.FillBytes(out[:])
	return out
}

// Midpoint splits the closed interval [lo, hi] into two disjoint closed
// sub-intervals and returns the boundary: hiLeft = floor((lo+hi)/2) and
// loRight = hiLeft + 1. The computation goes through math/big so the
// 160-bit add and shift are exact; a float64 intermediate would lose
// precision well before 160 bits.
//
// When hi == lo the interval is degenerate and cannot be split further:
// Midpoint returns (lo+1, lo): hiLeft == lo, i.e. the left half keeps
// everything and the right half is empty-but-representable.
func Midpoint(lo, hi ID) (loRight, hiLeft ID) {
	l, h := toBig(lo), toBig(hi)
	sum := new(big.Int).Add(l, h)
	hiLeftBig := new(big.Int).Rsh(sum, 1)
	loRightBig := new(big.Int).Add(hiLeftBig, big.NewInt(1))
	return fromBig(loRightBig), fromBig(hiLeftBig)
}

// CommonPrefixLen returns the number of leading bits shared between a
// and b, from 0 to 160.
func CommonPrefixLen(a, b ID) int {
	for i := range a {
		if a[i] != b[i] {
			x := a[i] ^ b[i]
			n := 0
			for x&0x80 == 0 {
				x <<= 1
				n++
			}
			return i*8 + n
		}
	}
	return Len * 8
}
