package id

import (
	"sort"
	"testing"
)

func mustHex(t *testing.T, s string) ID {
	t.Helper()
	x, err := FromHex(s)
	if err != nil {
		t.Fatalf("FromHex(%q): %v", s, err)
	}
	return x
}

func TestXORDistanceSelf(t *testing.T) {
	a := mustHex(t, "0102030405060708090a0b0c0d0e0f1011121314")
	if XOR(a, a) != Zero {
		t.Fatalf("XOR(a,a) should be zero distance")
	}
}

func TestCompareOrdering(t *testing.T) {
	a := mustHex(t, "000000000000000000000000000000000000000a")
	b := mustHex(t, "000000000000000000000000000000000000000b")
	if Compare(a, b) >= 0 {
		t.Fatalf("expected a < b")
	}
	if Compare(b, a) <= 0 {
		t.Fatalf("expected b > a")
	}
	if Compare(a, a) != 0 {
		t.Fatalf("expected a == a")
	}
}

func TestMidpointDegenerate(t *testing.T) {
	lo := mustHex(t, "000000000000000000000000000000000000000a")
	loRight, hiLeft := Midpoint(lo, lo)
	if hiLeft != lo {
		t.Fatalf("degenerate midpoint: hiLeft = %v, want %v", hiLeft, lo)
	}
	wantLoRight := mustHex(t, "000000000000000000000000000000000000000b")
	if loRight != wantLoRight {
		t.Fatalf("degenerate midpoint: loRight = %v, want %v", loRight, wantLoRight)
	}
}

func TestMidpointFullSpace(t *testing.T) {
	loRight, hiLeft := Midpoint(Zero, Max)
	if !ContainsRange(Zero, hiLeft, hiLeft) {
		t.Fatalf("hiLeft should be within the left half")
	}
	if !ContainsRange(loRight, Max, loRight) {
		t.Fatalf("loRight should be within the right half")
	}
	// The split must be exact: no gap, no overlap.
	var one ID
	one[Len-1] = 1
	hiLeftPlusOne := add1(hiLeft)
	if hiLeftPlusOne != loRight {
		t.Fatalf("gap/overlap at split boundary: hiLeft+1=%v loRight=%v", hiLeftPlusOne, loRight)
	}
}

func add1(x ID) ID {
	out := x
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	return out
}

func TestCommonPrefixLen(t *testing.T) {
	a := mustHex(t, "ffffffffffffffffffffffffffffffffffffffff")
	b := mustHex(t, "ffffffffffffffffffffffffffffffffffffffff")
	if CommonPrefixLen(a, b) != 160 {
		t.Fatalf("identical IDs should share all 160 bits")
	}
	b2 := mustHex(t, "7fffffffffffffffffffffffffffffffffffffff")
	if got := CommonPrefixLen(a, b2); got != 0 {
		t.Fatalf("top bit differs: want 0, got %d", got)
	}
}

func TestCloserToSorts(t *testing.T) {
	target := mustHex(t, "000000000000000000000000000000000000000a")
	ids := []ID{
		mustHex(t, "0000000000000000000000000000000000000050"),
		mustHex(t, "000000000000000000000000000000000000000c"),
		mustHex(t, "0000000000000000000000000000000000000000"),
	}
	sort.Slice(ids, func(i, j int) bool { return CloserTo(target, ids[i], ids[j]) })
	for i := 1; i < len(ids); i++ {
		di := XOR(target, ids[i-1])
		dj := XOR(target, ids[i])
		if Compare(di, dj) > 0 {
			t.Fatalf("not sorted by distance ascending: %v then %v", ids[i-1], ids[i])
		}
	}
}

func TestRandomInRange(t *testing.T) {
	lo := mustHex(t, "000000000000000000000000000000000000000a")
	hi := mustHex(t, "000000000000000000000000000000000000000f")
	for i := 0; i < 50; i++ {
		got, err := RandomInRange(lo, hi)
		if err != nil {
			t.Fatalf("RandomInRange: %v", err)
		}
		if !ContainsRange(lo, hi, got) {
			t.Fatalf("RandomInRange returned %v outside [%v,%v]", got, lo, hi)
		}
	}
}
