package encoder

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Settings is the live-reconfigurable encode configuration. Quality is
// normalized to [0,1]; Bitrate is in bits per second. GamingBoost relaxes
// rate-control smoothing in exchange for lower latency on backends that
// support it.
type Settings struct {
	Width, Height int
	FPS           int
	BitrateBps    int64
	Quality       float64
	GamingBoost   bool
}

func (s Settings) valid() error {
	if s.Width <= 0 || s.Height <= 0 {
		return ErrInvalidDimensions
	}
	if s.FPS <= 0 {
		return ErrInvalidFPS
	}
	if s.BitrateBps <= 0 {
		return ErrInvalidBitrate
	}
	if s.Quality < 0 || s.Quality > 1 {
		return ErrInvalidQuality
	}
	return nil
}

var (
	ErrInvalidDimensions  = errors.New("encoder: width/height must be positive")
	ErrInvalidFPS         = errors.New("encoder: fps must be positive")
	ErrInvalidBitrate     = errors.New("encoder: bitrate must be positive")
	ErrInvalidQuality     = errors.New("encoder: quality must be in [0,1]")
	ErrNoBackendAvailable = errors.New("encoder: no backend could be initialized")
	ErrNotInitialized     = errors.New("encoder: not initialized")
)

// FrameCallback receives one encoded Annex-B buffer per call. captureTimestampNs
// is carried through unmodified from the Encode call that produced it.
type FrameCallback func(data []byte, captureTimestampNs int64, isKeyframe bool)

// backend is the uniform contract every hardware/software implementation
// satisfies. Backend-specific resource types never cross this
// boundary — only []byte, int64 and bool do.
type backend interface {
	// Encode submits one raw surface for compression. Output (zero or more
	// Annex-B buffers) is delivered via the callback registered with
	// setCallback, synchronously or asynchronously depending on the
	// backend's submission model.
	Encode(surface []byte, captureTimestampNs int64) error

	// UpdateSettings applies new encode parameters live where the backend
	// supports it, and forces the next output to be an IDR so the peer
	// observes the new parameters immediately.
	UpdateSettings(s Settings) error

	// Flush blocks until all pending output has been delivered via the
	// callback.
	Flush() error

	Close() error
	Name() string
	IsHardware() bool

	setCallback(FrameCallback)
}

// keyframeForcer is an optional capability: backends that can force an
// out-of-band IDR (e.g. on a touch-down input sample) implement it.
type keyframeForcer interface {
	ForceKeyframe() error
}

// backendFactory constructs one backend, or returns an error if this
// backend cannot be used on the current host (missing driver, unsupported
// device, etc). Construction is atomic: on any failure the factory must
// have released every resource it acquired before returning.
type backendFactory func(s Settings) (backend, error)

// ProbeEvent reports one factory attempt, successful or not, so the
// try-next-backend sequence is observable without coupling the factory to
// a concrete logger.
type ProbeEvent struct {
	Candidate string
	Err       error
}

type registryEntry struct {
	priority int
	factory  backendFactory
}

var (
	registryMu sync.Mutex
	registry   []registryEntry

	probeMu sync.Mutex
	probeFn func(ProbeEvent)
)

// registerBackend adds a candidate to the priority-ordered factory list.
// Backends register themselves from an init() in their own file. Priority
// is explicit rather than relying on init() order, which Go only
// guarantees within a single file: lower priority value probes first, per
// the NVIDIA -> AMD -> Intel -> Direct-GPU -> generic-libav -> software
// ordering in priority.go.
func registerBackend(priority int, factory backendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, registryEntry{priority, factory})
}

// SetProbeObserver installs a callback invoked once per factory attempt
// during VideoEncoder construction, in priority order. Pass nil to disable.
// Intended for diagnostics and tests.
func SetProbeObserver(fn func(ProbeEvent)) {
	probeMu.Lock()
	defer probeMu.Unlock()
	probeFn = fn
}

func notifyProbe(ev ProbeEvent) {
	probeMu.Lock()
	fn := probeFn
	probeMu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// VideoEncoder is the polymorphic encoder the host pipeline drives. It
// owns exactly one live backend at a time, selected by newBackend's
// priority probe, and never leaks backend-specific types through its
// exported surface.
type VideoEncoder struct {
	mu       sync.Mutex
	settings Settings
	be       backend
	cb       FrameCallback
}

// New selects the highest-priority backend that initializes successfully
// and returns a VideoEncoder driving it. Initialization failures are
// logged at debug level and are not fatal to the caller; only exhausting
// every registered backend is.
func New(s Settings, cb FrameCallback) (*VideoEncoder, error) {
	if err := s.valid(); err != nil {
		return nil, err
	}
	be, err := newBackend(s)
	if err != nil {
		return nil, err
	}
	be.setCallback(cb)
	return &VideoEncoder{settings: s, be: be, cb: cb}, nil
}

func newBackend(s Settings) (backend, error) {
	registryMu.Lock()
	entries := append([]registryEntry(nil), registry...)
	registryMu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].priority < entries[j].priority })

	for _, entry := range entries {
		be, err := entry.factory(s)
		name := probeCandidateName(be, err)
		notifyProbe(ProbeEvent{Candidate: name, Err: err})
		if err == nil && be != nil {
			slog.Debug("encoder backend selected", "backend", be.Name())
			return be, nil
		}
		slog.Debug("encoder backend init failed, trying next", "backend", name, "error", err)
	}
	return nil, ErrNoBackendAvailable
}

func probeCandidateName(be backend, err error) string {
	if be != nil {
		return be.Name()
	}
	if err != nil {
		return err.Error()
	}
	return "unknown"
}

// Encode submits one raw surface. See backend.Encode.
func (v *VideoEncoder) Encode(surface []byte, captureTimestampNs int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.be == nil {
		return ErrNotInitialized
	}
	return v.be.Encode(surface, captureTimestampNs)
}

// UpdateSettings applies new parameters live without recreating the session.
func (v *VideoEncoder) UpdateSettings(s Settings) error {
	if err := s.valid(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.be == nil {
		return ErrNotInitialized
	}
	if err := v.be.UpdateSettings(s); err != nil {
		return err
	}
	v.settings = s
	return nil
}

// Flush blocks until all pending output has been delivered.
func (v *VideoEncoder) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.be == nil {
		return ErrNotInitialized
	}
	return v.be.Flush()
}

// ForceKeyframe requests an out-of-band IDR as soon as possible. No-op if
// the active backend doesn't support it (of the backends here, only the
// NVIDIA one implements keyframeForcer; the others already emit every
// frame as an IDR).
func (v *VideoEncoder) ForceKeyframe() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.be == nil {
		return ErrNotInitialized
	}
	if kf, ok := v.be.(keyframeForcer); ok {
		return kf.ForceKeyframe()
	}
	return nil
}

func (v *VideoEncoder) Name() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.be == nil {
		return ""
	}
	return v.be.Name()
}

func (v *VideoEncoder) IsHardware() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.be != nil && v.be.IsHardware()
}

// Close releases the active backend's resources. Safe to call more than
// once.
func (v *VideoEncoder) Close() error {
	v.mu.Lock()
	be := v.be
	v.be = nil
	v.mu.Unlock()
	if be == nil {
		return nil
	}
	return be.Close()
}

func fmtUnsupported(name string, s Settings) error {
	return fmt.Errorf("%s: unsupported on this host (w=%d h=%d fps=%d)", name, s.Width, s.Height, s.FPS)
}
