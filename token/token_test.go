package token

import (
	"net"
	"testing"
)

func TestIssueThenVerify(t *testing.T) {
	a, err := NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	defer a.Close()

	addr := net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 6881}
	tok := a.Issue(addr)
	if !a.Verify(addr, tok) {
		t.Fatalf("token issued for addr should verify against the same addr")
	}
}

func TestVerifyRejectsOtherAddress(t *testing.T) {
	a, err := NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	defer a.Close()

	x := net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 6881}
	y := net.UDPAddr{IP: net.ParseIP("5.6.7.8"), Port: 6881}
	tok := a.Issue(x)
	if a.Verify(y, tok) {
		t.Fatalf("token issued for x must not verify for y")
	}
}

func TestVerifyRejectsBogusToken(t *testing.T) {
	a, err := NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	defer a.Close()

	addr := net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 6881}
	if a.Verify(addr, []byte{0, 0, 0, 0}) {
		t.Fatalf("unissued token must not verify")
	}
}

func TestVerifyAcceptsPriorSecret(t *testing.T) {
	a, err := NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	defer a.Close()

	addr := net.UDPAddr{IP: net.ParseIP("9.9.9.9"), Port: 1}
	tok := a.Issue(addr)
	a.rotate()
	if !a.Verify(addr, tok) {
		t.Fatalf("token issued under the prior secret should still verify")
	}
	a.rotate()
	if a.Verify(addr, tok) {
		t.Fatalf("token issued two rotations ago should no longer verify")
	}
}
