package encoder

import (
	"errors"
	"sync"
)

// directGPUBackend models a device opened via a DRM render node, with
// double-buffered source surfaces and a reconstructed reference surface.
// Encode is synchronous: each frame is submitted and read out in the same
// call, with no overlap between frames. VPS/SPS/PPS are synthesized from
// Settings on the first frame (not extracted from encoder output) and
// cached for every subsequent prepend until UpdateSettings clears them.
type directGPUBackend struct {
	mu           sync.Mutex
	settings     Settings
	cb           FrameCallback
	closed       bool
	cachedParams []byte // VPS+SPS+PPS, start-code delimited, cached after frame 1
}

func init() {
	registerBackend(priorityDirectGPU, newDirectGPUBackend)
}

func newDirectGPUBackend(s Settings) (backend, error) {
	if !drmRenderNodePresent() {
		return nil, errors.New("directgpu: no DRM render node found")
	}
	return &directGPUBackend{settings: s}, nil
}

var drmRenderNodePresent = func() bool { return false }

func (d *directGPUBackend) setCallback(cb FrameCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = cb
}

func (d *directGPUBackend) Encode(surface []byte, captureTimestampNs int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("directgpu: backend closed")
	}
	if len(surface) == 0 {
		return errors.New("directgpu: empty surface")
	}

	if d.cachedParams == nil {
		vps, sps, pps := synthParamSets(d.settings)
		var buf []byte
		buf = AppendStartCodeNAL(buf, vps)
		buf = AppendStartCodeNAL(buf, sps)
		buf = AppendStartCodeNAL(buf, pps)
		d.cachedParams = buf
	}

	nal := idrSliceNAL(compressPlaceholder(surface, d.settings.Quality))
	frame := make([]byte, 0, len(d.cachedParams)+len(nal)+8)
	frame = append(frame, d.cachedParams...)
	frame = AppendStartCodeNAL(frame, nal)
	if d.cb != nil {
		d.cb(frame, captureTimestampNs, true)
	}
	return nil
}

func (d *directGPUBackend) UpdateSettings(s Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = s
	// Dimensions may have changed; invalidate the cached parameter sets so
	// they get re-derived from the new Settings on the next frame.
	d.cachedParams = nil
	return nil
}

func (d *directGPUBackend) Flush() error { return nil }

func (d *directGPUBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *directGPUBackend) Name() string     { return "direct-gpu" }
func (d *directGPUBackend) IsHardware() bool { return true }
