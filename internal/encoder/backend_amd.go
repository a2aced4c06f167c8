package encoder

import (
	"errors"
	"sync"
)

// amdBackend models the AMD-GPU resource model: a runtime-loaded driver
// DLL exposing COM-like component interfaces. Submission is
// submit-surface-then-poll-output, with IDR achieved via GOP=1 and
// header-insertion-mode=IDR rather than a per-frame force flag.
type amdBackend struct {
	mu       sync.Mutex
	settings Settings
	cb       FrameCallback
	closed   bool
}

func init() {
	registerBackend(priorityAMD, newAMDBackend)
}

func newAMDBackend(s Settings) (backend, error) {
	if !amdDriverPresent() {
		return nil, errors.New("amd: no driver component found")
	}
	return &amdBackend{settings: s}, nil
}

var amdDriverPresent = func() bool { return false }

func (a *amdBackend) setCallback(cb FrameCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
}

func (a *amdBackend) Encode(surface []byte, captureTimestampNs int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("amd: backend closed")
	}
	if len(surface) == 0 {
		return errors.New("amd: empty surface")
	}
	nal := idrSliceNAL(compressPlaceholder(surface, a.settings.Quality))
	frame := prependParamSets(a.settings, nal)
	if a.cb != nil {
		a.cb(frame, captureTimestampNs, true)
	}
	return nil
}

func (a *amdBackend) UpdateSettings(s Settings) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = s
	return nil
}

func (a *amdBackend) Flush() error { return nil }

func (a *amdBackend) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *amdBackend) Name() string     { return "amd" }
func (a *amdBackend) IsHardware() bool { return true }
