package server

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dusklink/dusklink/internal/wire"
)

func mustNewServer(t *testing.T) *Server {
	t.Helper()
	s, err := New("127.0.0.1:0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go s.Serve()
	t.Cleanup(func() { s.Close() })
	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.listener.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectSendsDisplayConfigImmediately(t *testing.T) {
	s := mustNewServer(t)
	s.SetDisplayConfig(wire.DisplayConfig{Width: 1920, Height: 1080, Rotation: 0})

	conn := dial(t, s)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	typ, err := wire.ReadTypeByte(conn)
	if err != nil {
		t.Fatalf("read type: %v", err)
	}
	if typ != wire.TypeDisplayConfig {
		t.Fatalf("expected DisplayConfig as first message, got %v", typ)
	}
	cfg, err := wire.ReadDisplayConfigPayload(conn)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if cfg.Width != 1920 || cfg.Height != 1080 {
		t.Fatalf("unexpected display config: %+v", cfg)
	}

	waitForState(t, s, StateConnected)
}

func TestSecondConnectionEvictsFirst(t *testing.T) {
	s := mustNewServer(t)

	first := dial(t, s)
	waitForState(t, s, StateConnected)

	second := dial(t, s)
	waitForState(t, s, StateConnected)

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := first.Read(buf); err == nil {
		t.Fatalf("expected the evicted connection to be closed")
	}

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.ReadTypeByte(second); err != nil {
		t.Fatalf("expected the new connection to still be alive: %v", err)
	}
}

func TestPingGetsImmediatePong(t *testing.T) {
	s := mustNewServer(t)
	conn := dial(t, s)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Drain the initial DisplayConfig.
	if _, err := wire.ReadTypeByte(conn); err != nil {
		t.Fatalf("read initial type: %v", err)
	}
	if _, err := wire.ReadDisplayConfigPayload(conn); err != nil {
		t.Fatalf("read initial payload: %v", err)
	}

	payload := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := wire.WritePing(conn, payload); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	typ, err := wire.ReadTypeByte(conn)
	if err != nil {
		t.Fatalf("read pong type: %v", err)
	}
	if typ != wire.TypePong {
		t.Fatalf("expected Pong, got %v", typ)
	}
	got, err := wire.ReadOpaque8Payload(conn)
	if err != nil {
		t.Fatalf("read pong payload: %v", err)
	}
	if got != payload {
		t.Fatalf("pong payload mismatch: want %v got %v", payload, got)
	}
}

func TestInputSampleReachesSink(t *testing.T) {
	s := mustNewServer(t)

	var mu sync.Mutex
	var got *wire.InputSample
	done := make(chan struct{}, 1)
	s.SetInputSink(func(sample wire.InputSample) {
		mu.Lock()
		got = &sample
		mu.Unlock()
		done <- struct{}{}
	})

	conn := dial(t, s)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.ReadTypeByte(conn); err != nil {
		t.Fatalf("read initial type: %v", err)
	}
	if _, err := wire.ReadDisplayConfigPayload(conn); err != nil {
		t.Fatalf("read initial payload: %v", err)
	}

	sample := wire.InputSample{Action: wire.ActionDown, PointerCount: 1, X: 0.5, Y: 0.5}
	if err := wire.WriteInputSample(conn, sample); err != nil {
		t.Fatalf("write input sample: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for input sink")
	}

	mu.Lock()
	defer mu.Unlock()
	if got == nil || *got != sample {
		t.Fatalf("sink did not receive the expected sample: %+v", got)
	}
}

func TestSendFrameWithoutConnectionFails(t *testing.T) {
	s := mustNewServer(t)
	if err := s.SendFrame([]byte{0x00, 0x00, 0x00, 0x01, 0x26}, 0, true); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestUpdateRotationRejectsInvalid(t *testing.T) {
	s := mustNewServer(t)
	if err := s.UpdateRotation(45); err == nil {
		t.Fatalf("expected error for invalid rotation")
	}
}

func waitForState(t *testing.T, s *Server, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, currently %v", want, s.State())
}
