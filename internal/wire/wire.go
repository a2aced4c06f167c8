// Package wire implements the framed message protocol carried over the
// single ordered byte stream between Host and Client.
//
// Server -> Client integers are big-endian. Client -> Server floats and
// action codes are little-endian, matching the legacy client-side layout
// this protocol was distilled from. Deviating from either breaks
// interoperability with the peer, so both orderings are preserved exactly.
package wire

import "errors"

// Type discriminates the first byte of every message.
type Type byte

const (
	TypeVideoFrame    Type = 0
	TypeDisplayConfig Type = 1
	TypeInputSample   Type = 2
	TypePing          Type = 4
	TypePong          Type = 5
)

// MaxFrameSize bounds a VideoFrame payload. A larger size is a
// FramingError and is fatal to the connection. A var rather than a const
// so tests (and a host's config override) can tighten it without touching
// the wire format itself.
var MaxFrameSize = 5 * 1024 * 1024

var (
	ErrOversizeFrame   = errors.New("wire: frame size exceeds MaxFrameSize")
	ErrZeroSizeFrame   = errors.New("wire: frame size must be positive")
	ErrBadPointerCount = errors.New("wire: pointer_count must be 1 or 2")
	ErrShortPayload    = errors.New("wire: short payload")
)

// Action identifies an InputSample's gesture phase.
type Action int32

const (
	ActionDown Action = 0
	ActionMove Action = 1
	ActionUp   Action = 2
)

// DisplayConfig describes the Host's authoritative display surface.
// Sent as the first non-ping message after CONNECTED, and again whenever
// rotation changes.
type DisplayConfig struct {
	Width    int32
	Height   int32
	Rotation int32 // one of 0, 90, 180, 270
}

// ValidRotation reports whether r is one of the four permitted rotations.
func ValidRotation(r int32) bool {
	switch r {
	case 0, 90, 180, 270:
		return true
	default:
		return false
	}
}

// InputSample is a single touch/pointer observation, normalized to the
// Host display's logical extent so the Client is resolution-agnostic.
type InputSample struct {
	Action       Action
	PointerCount uint8 // 1 or 2
	X, Y         float32
	X2, Y2       float32 // only meaningful when PointerCount == 2
}

// PingSample carries an opaque 8-byte payload the server echoes verbatim
// as a Pong.
type PingSample struct {
	Payload [8]byte
}
