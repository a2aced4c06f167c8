package clientio

import (
	"errors"
	"sync"
)

const hardwareInputBuffers = 4

// hardwareDecoder represents the OS media framework's decoder session
// (MediaCodec/VideoToolbox/Media Foundation, depending on platform). No
// concrete platform binding is wired in here; this is a real struct behind
// the full Decoder contract, matching the same placeholder-backend idiom
// the encoder package uses for its hardware paths, ready to have a real
// binding dropped in without touching the feed or the factory.
type hardwareDecoder struct {
	width, height int
	lowLatency    bool

	mu        sync.Mutex
	freeInput []int
	running   bool
}

func newHardwareDecoder(width, height int, lowLatency bool) (Decoder, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("clientio: invalid decoder resolution")
	}
	free := make([]int, hardwareInputBuffers)
	for i := range free {
		free[i] = i
	}
	return &hardwareDecoder{
		width: width, height: height, lowLatency: lowLatency,
		freeInput: free, running: true,
	}, nil
}

func (d *hardwareDecoder) AcquireInputBuffer() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.freeInput) == 0 {
		return 0, false
	}
	idx := d.freeInput[0]
	d.freeInput = d.freeInput[1:]
	return idx, true
}

func (d *hardwareDecoder) SubmitInputBuffer(idx int, data []byte, presentationUs int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return errors.New("clientio: decoder not running")
	}
	// A real binding would hand data off to the platform decode queue
	// here and return idx to freeInput asynchronously as the hardware
	// consumes it. Returned immediately here since there is no real
	// submission to wait on.
	d.freeInput = append(d.freeInput, idx)
	return nil
}

func (d *hardwareDecoder) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *hardwareDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

func (d *hardwareDecoder) Name() string { return "hardware" }

func (d *hardwareDecoder) IsHardware() bool { return true }
