package encoder

import (
	"errors"
	"sync"
)

// softwareBackend is the platform-software (MFT-style CPU staging) last
// resort: no hardware dependency, so construction never fails. It
// guarantees the pipeline functions on any host even without a GPU
// encoder, at the cost of being the slowest path.
type softwareBackend struct {
	mu       sync.Mutex
	settings Settings
	cb       FrameCallback
	closed   bool
}

func init() {
	registerBackend(priorityPlatformSoft, newSoftwareBackend)
}

func newSoftwareBackend(s Settings) (backend, error) {
	return &softwareBackend{settings: s}, nil
}

func (sb *softwareBackend) setCallback(cb FrameCallback) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.cb = cb
}

func (sb *softwareBackend) Encode(surface []byte, captureTimestampNs int64) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return errors.New("software: backend closed")
	}
	if len(surface) == 0 {
		return errors.New("software: empty surface")
	}
	nal := idrSliceNAL(compressPlaceholder(surface, sb.settings.Quality))
	frame := prependParamSets(sb.settings, nal)
	if sb.cb != nil {
		sb.cb(frame, captureTimestampNs, true)
	}
	return nil
}

func (sb *softwareBackend) UpdateSettings(s Settings) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.settings = s
	return nil
}

func (sb *softwareBackend) Flush() error { return nil }

func (sb *softwareBackend) Close() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.closed = true
	return nil
}

func (sb *softwareBackend) Name() string     { return "software" }
func (sb *softwareBackend) IsHardware() bool { return false }
