package clientio

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/dusklink/dusklink/internal/wire"
)

// DisplayConfigFunc is invoked whenever the server sends a DisplayConfig
// message (the initial one, and any subsequent rotation/resolution update).
type DisplayConfigFunc func(wire.DisplayConfig)

// VideoFrameFunc is invoked for every received video frame. buf[:size] is
// the Annex-B payload; buf was acquired from the receiver's pool and MUST
// be released back to it (via Receiver.Release) exactly once, whether or
// not the frame was consumed.
type VideoFrameFunc func(buf []byte, size int, receiveTimestampNs int64)

// LatencyFunc is invoked with the round-trip time computed from each
// Pong's echoed send timestamp; Pongs are not matched against sent Pings.
type LatencyFunc func(rtt time.Duration)

// Receiver is the Client's single reader state machine over the ordered
// byte stream from the Host: a type byte, then the fixed payload for that
// type.
type Receiver struct {
	conn      net.Conn
	pool      *bufferPool
	onDisplay DisplayConfigFunc
	onVideo   VideoFrameFunc
	onLatency LatencyFunc
	nowFunc   func() time.Time
}

// NewReceiver constructs a Receiver reading from conn. onDisplay and
// onVideo must both be non-nil; Run blocks until the connection is closed
// or a framing error occurs. Use SetLatencyObserver to also be notified of
// measured ping/pong round-trip times.
func NewReceiver(conn net.Conn, onDisplay DisplayConfigFunc, onVideo VideoFrameFunc) *Receiver {
	return &Receiver{
		conn:      conn,
		pool:      newBufferPool(),
		onDisplay: onDisplay,
		onVideo:   onVideo,
		nowFunc:   time.Now,
	}
}

// SetLatencyObserver registers the callback invoked with the round-trip
// time computed from each Pong's echoed send timestamp. Safe to call
// before Run; not safe to change concurrently with a running Receiver.
func (r *Receiver) SetLatencyObserver(fn LatencyFunc) {
	r.onLatency = fn
}

// Release returns a buffer previously handed to a VideoFrameFunc callback
// back to the receiver's pool.
func (r *Receiver) Release(buf []byte) {
	r.pool.Release(buf)
}

// Pool returns the receiver's buffer pool, for constructing a DecoderFeed
// that shares it.
func (r *Receiver) Pool() *bufferPool {
	return r.pool
}

// Run reads messages until the connection is closed or a framing violation
// occurs, per the contract: a zero-or-negative size, or a size exceeding
// MaxFrameSize, is a fatal framing error that closes the connection.
func (r *Receiver) Run() error {
	for {
		typ, err := wire.ReadTypeByte(r.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch typ {
		case wire.TypeVideoFrame:
			if err := r.handleVideoFrame(); err != nil {
				r.conn.Close()
				return err
			}
		case wire.TypeDisplayConfig:
			cfg, err := wire.ReadDisplayConfigPayload(r.conn)
			if err != nil {
				return err
			}
			r.onDisplay(cfg)
		case wire.TypePong:
			if err := r.handlePong(); err != nil {
				return err
			}
		default:
			slog.Debug("ignoring unexpected message type from server", "type", typ)
		}
	}
}

// handlePong consumes a Pong's 8-byte payload (mandatory regardless of
// whether a latency observer is registered, since leaving it on the wire
// would desync every message that follows) and, if the payload decodes to
// a send timestamp in the past, reports the round-trip time.
func (r *Receiver) handlePong() error {
	payload, err := wire.ReadOpaque8Payload(r.conn)
	if err != nil {
		return err
	}
	if r.onLatency == nil {
		return nil
	}
	sentNs := int64(binary.BigEndian.Uint64(payload[:]))
	rtt := time.Duration(r.nowFunc().UnixNano() - sentNs)
	if rtt < 0 {
		return nil
	}
	r.onLatency(rtt)
	return nil
}

func (r *Receiver) handleVideoFrame() error {
	size, err := wire.ReadVideoFrameSize(r.conn)
	if err != nil {
		return err
	}
	buf := r.pool.Acquire(size)
	if _, err := io.ReadFull(r.conn, buf[:size]); err != nil {
		r.pool.Release(buf)
		return err
	}
	r.onVideo(buf, size, r.nowFunc().UnixNano())
	return nil
}
