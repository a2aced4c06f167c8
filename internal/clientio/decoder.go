package clientio

import "errors"

// Decoder is a surface-bound hardware-accelerated HEVC decoder that
// directly consumes available input buffers: the producer side exposes
// input-buffer indices as they become free, rather than accepting a push
// onto an internal queue.
type Decoder interface {
	// AcquireInputBuffer pops an available input-buffer index. ok is false
	// when the decoder has none free right now.
	AcquireInputBuffer() (idx int, ok bool)
	// SubmitInputBuffer copies data into the input buffer at idx and
	// submits it for decode at presentationUs.
	SubmitInputBuffer(idx int, data []byte, presentationUs int64) error
	// Running reports whether the decoder is currently accepting input.
	Running() bool
	Close() error
	Name() string
	IsHardware() bool
}

var ErrNoDecoderAvailable = errors.New("clientio: no decoder backend available")

// hwDecoderAvailable reports whether a hardware decoder path exists on this
// platform. It is false on every build that hasn't wired a real platform
// media-framework binding in.
var hwDecoderAvailable = func() bool { return false }

// NewDecoder opens a decoder for width x height, preferring hardware. When
// a hardware path exists it makes two attempts: with low-latency flags,
// then without them. There is no third, resolution-only attempt. If both
// fail, or no hardware path exists, it opens the software decoder, which
// fails only for a non-positive width or height.
func NewDecoder(width, height int) (Decoder, error) {
	if hwDecoderAvailable() {
		if d, err := newHardwareDecoder(width, height, true); err == nil {
			return d, nil
		}
		if d, err := newHardwareDecoder(width, height, false); err == nil {
			return d, nil
		}
	}
	return newSoftwareDecoder(width, height)
}
