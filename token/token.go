// Package token issues and verifies the short-lived opaque tokens that
// authenticate an announce_peer to the address it was handed to.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"net"
	"sync"
	"time"
)

// RotatePeriod is how often the signing secret is rotated. A token
// remains valid for up to two rotation periods: one under the current
// secret, one under the previous.
const RotatePeriod = 5 * time.Minute

const secretLen = 20

// Authority issues and verifies announce_peer tokens. It is safe for
// concurrent use, though in this node's single-owner event loop all
// calls happen from the same goroutine.
type Authority struct {
	mu      sync.Mutex
	current []byte
	prior   []byte
	period  time.Duration
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewAuthority creates an Authority rotating its secret every
// RotatePeriod. Call Close to stop the timer.
func NewAuthority() (*Authority, error) {
	return NewAuthorityPeriod(RotatePeriod)
}

// NewAuthorityPeriod is like NewAuthority but with a caller-chosen
// rotation period, for deployments that want a different exposure
// window for announce_peer tokens.
func NewAuthorityPeriod(period time.Duration) (*Authority, error) {
	if period <= 0 {
		period = RotatePeriod
	}
	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	a := &Authority{current: secret, period: period, stop: make(chan struct{})}
	a.wg.Add(1)
	go a.rotateLoop()
	return a, nil
}

func newSecret() ([]byte, error) {
	b := make([]byte, secretLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (a *Authority) rotateLoop() {
	defer a.wg.Done()
	t := time.NewTicker(a.period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			a.rotate()
		case <-a.stop:
			return
		}
	}
}

func (a *Authority) rotate() {
	secret, err := newSecret()
	if err != nil {
		// Keep the existing secret rather than going tokenless; a
		// failed read of the CSPRNG is already a symptom of a much
		// deeper problem than token rotation.
		return
	}
	a.mu.Lock()
	a.prior = a.current
	a.current = secret
	a.mu.Unlock()
}

// Close stops the rotation timer. Safe to call once.
func (a *Authority) Close() {
	close(a.stop)
	a.wg.Wait()
}

// Issue returns a token binding the caller to addr, valid for one
// rotation window (extendable to two by Verify accepting the prior
// secret too).
func (a *Authority) Issue(addr net.UDPAddr) []byte {
	a.mu.Lock()
	secret := a.current
	a.mu.Unlock()
	return sign(secret, addr)
}

// Verify reports whether token was issued for addr within the rotation
// window: it must match either the current or the immediately prior
// secret.
func (a *Authority) Verify(addr net.UDPAddr, tok []byte) bool {
	a.mu.Lock()
	current, prior := a.current, a.prior
	a.mu.Unlock()
	if hmac.Equal(tok, sign(current, addr)) {
		return true
	}
	if prior != nil && hmac.Equal(tok, sign(prior, addr)) {
		return true
	}
	return false
}

func sign(secret []byte, addr net.UDPAddr) []byte {
	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(addr.String()))
	return mac.Sum(nil)
}
