package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// WriteVideoFrame writes a type-0 message: a 4-byte big-endian size followed
// by the Annex-B payload. A payload outside 0 < size <= MaxFrameSize is
// rejected with ErrZeroSizeFrame or ErrOversizeFrame before anything is
// written, so a caller bug surfaces here rather than on the wire.
func WriteVideoFrame(w io.Writer, payload []byte) error {
	n := len(payload)
	if n == 0 {
		return ErrZeroSizeFrame
	}
	if n > MaxFrameSize {
		return ErrOversizeFrame
	}
	var hdr [5]byte
	hdr[0] = byte(TypeVideoFrame)
	binary.BigEndian.PutUint32(hdr[1:], uint32(n))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadVideoFrameSize reads the 4-byte size field of a VideoFrame message
// whose type byte has already been consumed and identified as type 0.
// Returns ErrZeroSizeFrame or ErrOversizeFrame (see wire.go) on violation;
// callers MUST close the connection on error.
func ReadVideoFrameSize(r io.Reader) (int, error) {
	var szBuf [4]byte
	if _, err := io.ReadFull(r, szBuf[:]); err != nil {
		return 0, err
	}
	size := int32(binary.BigEndian.Uint32(szBuf[:]))
	if size <= 0 {
		return 0, ErrZeroSizeFrame
	}
	if int(size) > MaxFrameSize {
		return 0, ErrOversizeFrame
	}
	return int(size), nil
}

// WriteDisplayConfig writes a type-1 message.
func WriteDisplayConfig(w io.Writer, cfg DisplayConfig) error {
	var buf [13]byte
	buf[0] = byte(TypeDisplayConfig)
	binary.BigEndian.PutUint32(buf[1:5], uint32(cfg.Width))
	binary.BigEndian.PutUint32(buf[5:9], uint32(cfg.Height))
	binary.BigEndian.PutUint32(buf[9:13], uint32(cfg.Rotation))
	_, err := w.Write(buf[:])
	return err
}

// ReadDisplayConfigPayload reads the 12-byte payload of a type-1 message
// (the type byte has already been consumed by the caller).
func ReadDisplayConfigPayload(r io.Reader) (DisplayConfig, error) {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return DisplayConfig{}, err
	}
	return DisplayConfig{
		Width:    int32(binary.BigEndian.Uint32(buf[0:4])),
		Height:   int32(binary.BigEndian.Uint32(buf[4:8])),
		Rotation: int32(binary.BigEndian.Uint32(buf[8:12])),
	}, nil
}

// WritePing writes a type-4 message with an opaque 8-byte payload.
func WritePing(w io.Writer, payload [8]byte) error {
	var buf [9]byte
	buf[0] = byte(TypePing)
	copy(buf[1:], payload[:])
	_, err := w.Write(buf[:])
	return err
}

// WritePong writes a type-5 message echoing payload verbatim.
func WritePong(w io.Writer, payload [8]byte) error {
	var buf [9]byte
	buf[0] = byte(TypePong)
	copy(buf[1:], payload[:])
	_, err := w.Write(buf[:])
	return err
}

// ReadOpaque8Payload reads the 8-byte payload shared by Ping and Pong.
func ReadOpaque8Payload(r io.Reader) ([8]byte, error) {
	var buf [8]byte
	_, err := io.ReadFull(r, buf[:])
	return buf, err
}

// WriteInputSample writes a type-2 message. Floats and the action code are
// little-endian per the legacy client-side wire layout; this is the one
// place integer fields are NOT big-endian, and that asymmetry is
// intentional, not a bug.
func WriteInputSample(w io.Writer, s InputSample) error {
	if s.PointerCount != 1 && s.PointerCount != 2 {
		return ErrBadPointerCount
	}
	buf := make([]byte, 0, 1+1+2*8+4)
	buf = append(buf, byte(TypeInputSample), s.PointerCount)
	buf = appendFloat32LE(buf, s.X)
	buf = appendFloat32LE(buf, s.Y)
	if s.PointerCount == 2 {
		buf = appendFloat32LE(buf, s.X2)
		buf = appendFloat32LE(buf, s.Y2)
	}
	var actionBuf [4]byte
	binary.LittleEndian.PutUint32(actionBuf[:], uint32(int32(s.Action)))
	buf = append(buf, actionBuf[:]...)
	_, err := w.Write(buf)
	return err
}

// ReadInputSamplePayload reads the payload of a type-2 message; the type
// byte has already been consumed. pointer_count == 3 (or any value outside
// {1,2}) is a framing error.
func ReadInputSamplePayload(r io.Reader) (InputSample, error) {
	var cntBuf [1]byte
	if _, err := io.ReadFull(r, cntBuf[:]); err != nil {
		return InputSample{}, err
	}
	cnt := cntBuf[0]
	if cnt != 1 && cnt != 2 {
		return InputSample{}, ErrBadPointerCount
	}

	var s InputSample
	s.PointerCount = cnt

	x, err := readFloat32LE(r)
	if err != nil {
		return InputSample{}, err
	}
	y, err := readFloat32LE(r)
	if err != nil {
		return InputSample{}, err
	}
	s.X, s.Y = x, y

	if cnt == 2 {
		x2, err := readFloat32LE(r)
		if err != nil {
			return InputSample{}, err
		}
		y2, err := readFloat32LE(r)
		if err != nil {
			return InputSample{}, err
		}
		s.X2, s.Y2 = x2, y2
	}

	var actionBuf [4]byte
	if _, err := io.ReadFull(r, actionBuf[:]); err != nil {
		return InputSample{}, err
	}
	s.Action = Action(int32(binary.LittleEndian.Uint32(actionBuf[:])))
	return s, nil
}

func appendFloat32LE(buf []byte, f float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	return append(buf, b[:]...)
}

func readFloat32LE(r io.Reader) (float32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:])), nil
}

// ReadTypeByte reads and returns the single leading discriminator byte of
// the next message.
func ReadTypeByte(r io.Reader) (Type, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return Type(b[0]), nil
}

func (t Type) String() string {
	switch t {
	case TypeVideoFrame:
		return "VideoFrame"
	case TypeDisplayConfig:
		return "DisplayConfig"
	case TypeInputSample:
		return "InputSample"
	case TypePing:
		return "Ping"
	case TypePong:
		return "Pong"
	default:
		return fmt.Sprintf("Unknown(%d)", byte(t))
	}
}
