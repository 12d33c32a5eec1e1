package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func captureLog(t *testing.T, f func()) string {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)
	f()
	return buf.String()
}

func TestStdLoggerDropsBelowLevel(t *testing.T) {
	l := &StdLogger{Level: LevelError}
	out := captureLog(t, func() {
		l.Debugf("debug %d", 1)
		l.Infof("info %d", 2)
		l.Errorf("error %d", 3)
	})
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Fatalf("expected Debug/Info suppressed at LevelError, got %q", out)
	}
	if !strings.Contains(out, "error 3") {
		t.Fatalf("expected Error to pass through, got %q", out)
	}
}

func TestNullLoggerSuppressesEverything(t *testing.T) {
	l := NullLogger()
	out := captureLog(t, func() {
		l.Debugf("x")
		l.Infof("x")
		l.Errorf("x")
	})
	if out != "" {
		t.Fatalf("expected no output from NullLogger, got %q", out)
	}
}

func TestNamedPrefixesComponent(t *testing.T) {
	l := Named("table", &StdLogger{Level: LevelDebug})
	out := captureLog(t, func() {
		l.Debugf("observed %s", "node")
	})
	if !strings.Contains(out, "[table]") {
		t.Fatalf("expected component tag in output, got %q", out)
	}
}
