package ratelimit

import "testing"

func TestTokenBucketDisabledAlwaysAllows(t *testing.T) {
	b := NewTokenBucket(-1)
	if !b.Disabled() {
		t.Fatalf("negative rate should disable the bucket")
	}
	for i := 0; i < 100; i++ {
		if !b.Take() {
			t.Fatalf("disabled bucket should never refuse")
		}
	}
}

func TestTokenBucketDrainsAndRefills(t *testing.T) {
	b := NewTokenBucket(10)
	for i := 0; i < 10; i++ {
		if !b.Take() {
			t.Fatalf("take %d should succeed within the initial allowance", i)
		}
	}
	if b.Take() {
		t.Fatalf("bucket should be empty after draining its full allowance")
	}
	b.Refill()
	if !b.Take() {
		t.Fatalf("refill should grant at least one token")
	}
}

func TestTokenBucketRefillCapsAtRate(t *testing.T) {
	b := NewTokenBucket(10)
	for i := 0; i < 20; i++ {
		b.Refill()
	}
	taken := 0
	for b.Take() {
		taken++
	}
	if taken != 10 {
		t.Fatalf("refill should never exceed the configured rate, drained %d tokens, want 10", taken)
	}
}

func TestClientThrottleDisabledAlwaysAllows(t *testing.T) {
	th := NewClientThrottle(0, 10)
	defer th.Stop()
	for i := 0; i < 100; i++ {
		if !th.CheckAllow("1.2.3.4") {
			t.Fatalf("perMinute<=0 should disable the throttle")
		}
	}
}

func TestClientThrottleCapsPerIP(t *testing.T) {
	th := NewClientThrottle(3, 10)
	defer th.Stop()
	ip := "1.2.3.4"
	for i := 0; i < 3; i++ {
		if !th.CheckAllow(ip) {
			t.Fatalf("packet %d should be within budget", i)
		}
	}
	if th.CheckAllow(ip) {
		t.Fatalf("4th packet in the same minute should be refused")
	}
}

func TestClientThrottleTracksIndependentIPs(t *testing.T) {
	th := NewClientThrottle(1, 10)
	defer th.Stop()
	if !th.CheckAllow("1.1.1.1") {
		t.Fatalf("first packet from 1.1.1.1 should be allowed")
	}
	if !th.CheckAllow("2.2.2.2") {
		t.Fatalf("first packet from 2.2.2.2 should be allowed independently")
	}
}
