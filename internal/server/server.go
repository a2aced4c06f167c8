// Package server implements the Host's TCP listener and single-connection
// session state machine: STOPPED -> LISTENING -> CONNECTED ->
// DISCONNECTED -> LISTENING, evicting any existing connection the moment a
// new one arrives.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dusklink/dusklink/internal/wire"
)

// State is the server's externally observable connection state.
type State int32

const (
	StateStopped State = iota
	StateListening
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// InputSink receives every InputSample the Client submits.
type InputSink func(wire.InputSample)

var (
	ErrNotConnected = errors.New("server: no client connected")
	ErrClosed       = errors.New("server: closed")
)

// Server accepts a single active TCP connection at a time, evicting the
// previous one the instant a new connection is accepted.
type Server struct {
	listener net.Listener

	mu          sync.Mutex
	state       atomic.Int32
	conn        *net.TCPConn
	connEpoch   uint64
	sessionID   string
	display     wire.DisplayConfig
	inputSink   InputSink
	sendMu      sync.Mutex // serializes the send path: one frame at a time
	stopOnce    sync.Once
}

// New starts listening on addr (e.g. ":8888"). The server begins in
// StateListening immediately.
func New(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{listener: ln}
	s.state.Store(int32(StateListening))
	return s, nil
}

// SetInputSink registers the callback invoked for every received
// InputSample.
func (s *Server) SetInputSink(sink InputSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputSink = sink
}

// State returns the server's current state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// SessionID returns the UUID assigned to the active connection, or "" if
// no client is currently connected. Intended for diagnostics and log
// correlation, not for protocol use.
func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.sessionID
}

// Serve accepts connections until Close is called. Each new connection
// evicts whatever connection preceded it.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.State() == StateStopped {
				return nil
			}
			return err
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}
		s.adopt(tcpConn)
	}
}

// adopt evicts any current connection and takes over tcpConn as the
// single active session, sending the initial DisplayConfig and starting
// the receive loop.
func (s *Server) adopt(tcpConn *net.TCPConn) {
	if err := disableNagle(tcpConn); err != nil {
		slog.Warn("failed to disable Nagle coalescing", "error", err)
	}

	sessionID := uuid.NewString()

	s.mu.Lock()
	if s.conn != nil {
		slog.Info("evicting existing connection for new arrival",
			"remote", tcpConn.RemoteAddr(), "session", sessionID)
		s.conn.Close()
	}
	s.conn = tcpConn
	s.connEpoch++
	epoch := s.connEpoch
	s.sessionID = sessionID
	display := s.display
	s.mu.Unlock()

	s.state.Store(int32(StateConnected))
	slog.Info("client connected", "remote", tcpConn.RemoteAddr(), "session", sessionID)

	if err := wire.WriteDisplayConfig(tcpConn, display); err != nil {
		slog.Warn("failed to send initial display config", "error", err)
	}

	go s.receiveLoop(tcpConn, epoch)
}

// receiveLoop is the single reader for tcpConn: it parses the type
// discriminator and fixed payload for InputSample and Ping messages,
// forwarding InputSample to the registered sink and echoing Ping as Pong
// immediately on this same context.
func (s *Server) receiveLoop(tcpConn *net.TCPConn, epoch uint64) {
	defer s.onDisconnect(tcpConn, epoch)

	for {
		typ, err := wire.ReadTypeByte(tcpConn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("receive loop ended", "error", err)
			}
			return
		}

		switch typ {
		case wire.TypeInputSample:
			sample, err := wire.ReadInputSamplePayload(tcpConn)
			if err != nil {
				slog.Warn("framing error reading input sample, closing connection", "error", err)
				return
			}
			s.mu.Lock()
			sink := s.inputSink
			s.mu.Unlock()
			if sink != nil {
				sink(sample)
			}
		case wire.TypePing:
			payload, err := wire.ReadOpaque8Payload(tcpConn)
			if err != nil {
				slog.Warn("framing error reading ping, closing connection", "error", err)
				return
			}
			s.sendMu.Lock()
			err = wire.WritePong(tcpConn, payload)
			s.sendMu.Unlock()
			if err != nil {
				slog.Warn("failed to send pong", "error", err)
				return
			}
		default:
			// Messages the server doesn't expect from the client are
			// ignored for forward compatibility.
			slog.Debug("ignoring unexpected message type from client", "type", typ)
		}
	}
}

func (s *Server) onDisconnect(tcpConn *net.TCPConn, epoch uint64) {
	tcpConn.Close()

	s.mu.Lock()
	current := s.conn == tcpConn && s.connEpoch == epoch
	sessionID := s.sessionID
	if current {
		s.conn = nil
		s.sessionID = ""
	}
	s.mu.Unlock()

	if !current {
		// A newer connection already evicted this one; that transition
		// already happened, nothing further to do here.
		return
	}

	if s.State() != StateStopped {
		s.state.Store(int32(StateDisconnected))
		slog.Info("client disconnected", "remote", tcpConn.RemoteAddr(), "session", sessionID)
		s.state.Store(int32(StateListening))
	}
}

// SendFrame serializes one encoded frame onto the active connection, if
// any. Keyframes are never dropped; non-keyframe drops under backpressure
// are permitted by the contract for a future P-frame extension, though
// with all-intra encoding every frame is a keyframe so this never
// triggers in practice today.
func (s *Server) SendFrame(data []byte, captureTimestampNs int64, isKeyframe bool) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if isKeyframe {
		s.sendMu.Lock()
	} else if !s.sendMu.TryLock() {
		// Backpressure: the send path is busy with another frame. A
		// non-keyframe may be dropped here; a keyframe never takes this
		// branch.
		return nil
	}
	defer s.sendMu.Unlock()

	return wire.WriteVideoFrame(conn, data)
}

// UpdateRotation rewrites the server's DisplayConfig rotation and
// re-sends it to the active connection so the client can rotate its
// presentation without reconnecting.
func (s *Server) UpdateRotation(rotation int32) error {
	if !wire.ValidRotation(rotation) {
		return errors.New("server: invalid rotation")
	}
	s.mu.Lock()
	s.display.Rotation = rotation
	display := s.display
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return wire.WriteDisplayConfig(conn, display)
}

// SetDisplayConfig sets the authoritative display config sent to every
// new connection (and immediately to the current one, if any).
func (s *Server) SetDisplayConfig(cfg wire.DisplayConfig) error {
	s.mu.Lock()
	s.display = cfg
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return wire.WriteDisplayConfig(conn, cfg)
}

// Close stops the listener, evicts any active connection, and transitions
// to StateStopped permanently.
func (s *Server) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateStopped))
		err = s.listener.Close()
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
	return err
}
