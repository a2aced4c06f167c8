package encoder

import (
	"errors"
	"sync"
)

// libavEncoderNames is the priority probe list of libav encoder names this
// backend tries, in order, before giving up. Real names a libav build
// would expose for HEVC.
var libavEncoderNames = []string{"hevc_nvenc", "hevc_amf", "hevc_qsv", "hevc_vaapi", "libx265"}

// libavBackend models a generic libav encode-send-frame/receive-packet
// loop, probing a priority list of named encoders rather than one fixed
// implementation, with an optional bitstream filter for Annex-B conversion
// when the selected encoder emits length-prefixed units natively.
type libavBackend struct {
	mu          sync.Mutex
	settings    Settings
	cb          FrameCallback
	closed      bool
	chosenCodec string
}

func init() {
	registerBackend(priorityGenericLibav, newLibavBackend)
}

func newLibavBackend(s Settings) (backend, error) {
	name, ok := probeLibavEncoders()
	if !ok {
		return nil, errors.New("libav: no usable encoder in priority list")
	}
	return &libavBackend{settings: s, chosenCodec: name}, nil
}

// probeLibavEncoders stands in for calling avcodec_find_encoder_by_name
// against each candidate. No libav runtime is linked in here, so this
// always reports no match and the factory moves on to platform-software.
var probeLibavEncoders = func() (string, bool) {
	for range libavEncoderNames {
		// each candidate would be probed here against the linked libav build
	}
	return "", false
}

func (l *libavBackend) setCallback(cb FrameCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cb = cb
}

func (l *libavBackend) Encode(surface []byte, captureTimestampNs int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("libav: backend closed")
	}
	if len(surface) == 0 {
		return errors.New("libav: empty surface")
	}
	// send_frame
	encoded := compressPlaceholder(surface, l.settings.Quality)
	// receive_packet, then the Annex-B bitstream filter
	nal := idrSliceNAL(encoded)
	frame := prependParamSets(l.settings, nal)
	if l.cb != nil {
		l.cb(frame, captureTimestampNs, true)
	}
	return nil
}

func (l *libavBackend) UpdateSettings(s Settings) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings = s
	return nil
}

func (l *libavBackend) Flush() error { return nil }

func (l *libavBackend) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *libavBackend) Name() string     { return "libav:" + l.chosenCodec }
func (l *libavBackend) IsHardware() bool { return false }
