// Package logger gives every component a debug/info/error hook without
// pulling a concrete logging library into the core: callers attach their
// own DebugLogger implementation, or rely on StdLogger's leveled stdlib
// log output.
package logger

import "log"

type DebugLogger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Level filters which of a StdLogger's calls actually reach the
// underlying log.Logger. A node run against the public network logs a
// steady trickle of malformed packets and bad tokens at Debug; operators
// running unattended want Info or above.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
	LevelSilent
)

// StdLogger writes through the standard library logger, dropping any
// call below Level. The zero value logs everything, matching a
// from-scratch log.Logger with no filtering configured.
type StdLogger struct {
	Level Level
}

// NullLogger is a StdLogger preconfigured to drop everything; it exists
// for call sites, like tests, that want a DebugLogger with no output.
func NullLogger() *StdLogger { return &StdLogger{Level: LevelSilent} }

func (l *StdLogger) Debugf(format string, args ...interface{}) {
	if l.Level > LevelDebug {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

func (l *StdLogger) Infof(format string, args ...interface{}) {
	if l.Level > LevelInfo {
		return
	}
	log.Printf("[INFO] "+format, args...)
}

func (l *StdLogger) Errorf(format string, args ...interface{}) {
	if l.Level > LevelError {
		return
	}
	log.Printf("[ERROR] "+format, args...)
}

// named prefixes every message with a component tag, so a node wiring
// several subsystems through one StdLogger can still tell them apart in
// a shared log stream.
type named struct {
	component string
	inner     DebugLogger
}

// Named wraps inner so every call is prefixed with "[component] ".
func Named(component string, inner DebugLogger) DebugLogger {
	return &named{component: component, inner: inner}
}

func (n *named) Debugf(format string, args ...interface{}) {
	n.inner.Debugf("["+n.component+"] "+format, args...)
}

func (n *named) Infof(format string, args ...interface{}) {
	n.inner.Infof("["+n.component+"] "+format, args...)
}

func (n *named) Errorf(format string, args ...interface{}) {
	n.inner.Errorf("["+n.component+"] "+format, args...)
}
