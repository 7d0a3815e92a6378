package closer

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"

	"golang.org/x/exp/slog"
)

type mockCloser struct {
	err error
}

func (m *mockCloser) Close() error { return m.err }

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestLogCloseNoError(t *testing.T) {
	log, buf := bufferLogger()
	LogClose(&mockCloser{}, "mock", log)
	if buf.Len() != 0 {
		t.Errorf("expected no log record when Close succeeds, got %q", buf.String())
	}
}

func TestLogCloseWithError(t *testing.T) {
	log, buf := bufferLogger()
	LogClose(&mockCloser{err: errors.New("boom")}, "mock", log)
	if !strings.Contains(buf.String(), "boom") || !strings.Contains(buf.String(), "what=mock") {
		t.Errorf("expected close failure to be logged, got %q", buf.String())
	}
}

func TestLogCloseIgnoresClosedConn(t *testing.T) {
	log, buf := bufferLogger()
	err := &net.OpError{Op: "close", Net: "tcp", Err: net.ErrClosed}
	LogClose(&mockCloser{err: err}, "conn", log)
	if buf.Len() != 0 {
		t.Errorf("closed connection should not be logged, got %q", buf.String())
	}
}
