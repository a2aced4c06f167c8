package encoder

import (
	"errors"
	"sync"
)

// intelBackend models the Intel-GPU (MFT) resource model: a DXGI device
// manager paired with a Media Foundation Transform. Every input sample
// carries a force-keyframe flag rather than relying on an out-of-band call.
type intelBackend struct {
	mu       sync.Mutex
	settings Settings
	cb       FrameCallback
	closed   bool
}

func init() {
	registerBackend(priorityIntel, newIntelBackend)
}

func newIntelBackend(s Settings) (backend, error) {
	if !intelMFTPresent() {
		return nil, errors.New("intel: no MFT hardware transform found")
	}
	return &intelBackend{settings: s}, nil
}

var intelMFTPresent = func() bool { return false }

func (ib *intelBackend) setCallback(cb FrameCallback) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.cb = cb
}

func (ib *intelBackend) Encode(surface []byte, captureTimestampNs int64) error {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if ib.closed {
		return errors.New("intel: backend closed")
	}
	if len(surface) == 0 {
		return errors.New("intel: empty surface")
	}
	nal := idrSliceNAL(compressPlaceholder(surface, ib.settings.Quality))
	frame := prependParamSets(ib.settings, nal)
	if ib.cb != nil {
		ib.cb(frame, captureTimestampNs, true)
	}
	return nil
}

func (ib *intelBackend) UpdateSettings(s Settings) error {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.settings = s
	return nil
}

func (ib *intelBackend) Flush() error { return nil }

func (ib *intelBackend) Close() error {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.closed = true
	return nil
}

func (ib *intelBackend) Name() string     { return "intel-mft" }
func (ib *intelBackend) IsHardware() bool { return true }
