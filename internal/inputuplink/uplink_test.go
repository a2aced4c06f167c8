package inputuplink

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/dusklink/dusklink/internal/wire"
)

// syncBuffer is a concurrency-safe io.Writer for assertions across the
// ping-timer goroutine and the test goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func TestSubmitWritesInputSampleOnWire(t *testing.T) {
	buf := &syncBuffer{}
	u := New(buf)

	sample := wire.InputSample{Action: wire.ActionDown, PointerCount: 1, X: 0.25, Y: 0.75}
	if err := u.Submit(sample); err != nil {
		t.Fatalf("submit: %v", err)
	}

	out := buf.Bytes()
	if len(out) == 0 || wire.Type(out[0]) != wire.TypeInputSample {
		t.Fatalf("expected an InputSample message on the wire, got %v", out)
	}
}

func TestSubmitDoesNotCoalesceConsecutiveSamples(t *testing.T) {
	buf := &syncBuffer{}
	u := New(buf)

	for i := 0; i < 5; i++ {
		if err := u.Submit(wire.InputSample{Action: wire.ActionMove, PointerCount: 1, X: 0.1, Y: 0.1}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	// Each InputSample message for a single pointer is 1(type)+1(count)+8(x,y)+4(action) = 14 bytes.
	const msgLen = 14
	if len(buf.Bytes()) != 5*msgLen {
		t.Fatalf("expected 5 distinct messages of %d bytes each, got %d total bytes", msgLen, len(buf.Bytes()))
	}
}

func TestSendPingWritesPingMessage(t *testing.T) {
	buf := &syncBuffer{}
	u := New(buf)
	u.nowFunc = func() time.Time { return time.Unix(0, 42) }

	// Directly exercise the ping send rather than waiting a full second
	// for the real timer.
	if err := u.sendPing(); err != nil {
		t.Fatalf("sendPing: %v", err)
	}

	out := buf.Bytes()
	if len(out) == 0 || wire.Type(out[0]) != wire.TypePing {
		t.Fatalf("expected a Ping message, got %v", out)
	}
}

func TestStartAndStopDoNotDeadlock(t *testing.T) {
	buf := &syncBuffer{}
	u := New(buf)
	u.Start()
	u.Stop()
}
