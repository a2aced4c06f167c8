package clientio

import (
	"math"
	"sync"
	"sync/atomic"
)

// DecodedFrame is released for rendering when a decoder output buffer
// becomes available.
type DecodedFrame struct {
	PresentationUs int64
	VsyncAligned   bool
}

// OutputFunc is invoked for every decoded output frame, on the
// decoder-internal context.
type OutputFunc func(DecodedFrame)

// DecoderFeed owns the active Decoder and implements the non-blocking
// decode() contract: the decoder's own backpressure (no free input buffer)
// is the drop signal, never a queue.
type DecoderFeed struct {
	pool *bufferPool

	mu      sync.Mutex
	decoder Decoder
	width   int
	height  int

	dropCount atomic.Uint64

	statsMu   sync.Mutex
	window    [120]int64
	windowLen int
	windowPos int

	onOutput OutputFunc
}

// NewDecoderFeed constructs a feed sharing the given buffer pool with the
// receiver that fills it.
func NewDecoderFeed(pool *bufferPool) *DecoderFeed {
	return &DecoderFeed{pool: pool}
}

// SetOutputSink registers the callback invoked on every decoded output
// frame.
func (f *DecoderFeed) SetOutputSink(fn OutputFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onOutput = fn
}

// Reconfigure releases the current decoder (if any) and opens a new one at
// width x height, per the resolution-change contract: a new DisplayConfig
// with different dimensions tears down and re-sets-up the decoder.
func (f *DecoderFeed) Reconfigure(width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decoder != nil && f.width == width && f.height == height {
		return nil
	}
	if f.decoder != nil {
		f.decoder.Close()
	}
	d, err := NewDecoder(width, height)
	if err != nil {
		return err
	}
	f.decoder = d
	f.width, f.height = width, height
	return nil
}

// DropCount returns the number of frames dropped for buffer starvation.
func (f *DecoderFeed) DropCount() uint64 {
	return f.dropCount.Load()
}

// Feed implements decode(bytes, size, timestamp):
//  1. if the decoder is not running, return the buffer to the pool and exit.
//  2. pop an available input-buffer index; if none, drop (count + release).
//  3. copy bytes[:size] into that input buffer, submit at timestamp/1000 us.
//  4. return the source buffer to the pool.
func (f *DecoderFeed) Feed(buf []byte, size int, receiveTimestampNs int64) {
	defer f.pool.Release(buf)

	f.mu.Lock()
	d := f.decoder
	f.mu.Unlock()

	if d == nil || !d.Running() {
		return
	}

	idx, ok := d.AcquireInputBuffer()
	if !ok {
		f.dropCount.Add(1)
		return
	}

	presentationUs := receiveTimestampNs / 1000
	if err := d.SubmitInputBuffer(idx, buf[:size], presentationUs); err != nil {
		return
	}
}

// RecordOutput feeds a decoded output's presentation timestamp into the
// sliding window and invokes the output sink.
func (f *DecoderFeed) RecordOutput(frame DecodedFrame) {
	f.statsMu.Lock()
	f.window[f.windowPos] = frame.PresentationUs
	f.windowPos = (f.windowPos + 1) % len(f.window)
	if f.windowLen < len(f.window) {
		f.windowLen++
	}
	f.statsMu.Unlock()

	f.mu.Lock()
	sink := f.onOutput
	f.mu.Unlock()
	if sink != nil {
		sink(frame)
	}
}

// OutputStats returns the observed FPS and the standard deviation (in
// milliseconds) of inter-frame intervals over the most recent window of up
// to 120 output timestamps.
func (f *DecoderFeed) OutputStats() (fps float64, stddevMs float64) {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()

	if f.windowLen < 2 {
		return 0, 0
	}

	// Reconstruct timestamps in chronological order.
	ts := make([]int64, 0, f.windowLen)
	start := f.windowPos
	if f.windowLen < len(f.window) {
		start = 0
	}
	for i := 0; i < f.windowLen; i++ {
		ts = append(ts, f.window[(start+i)%len(f.window)])
	}

	intervals := make([]float64, 0, len(ts)-1)
	var sum float64
	for i := 1; i < len(ts); i++ {
		d := float64(ts[i]-ts[i-1]) / 1000.0 // us -> ms
		if d <= 0 {
			continue
		}
		intervals = append(intervals, d)
		sum += d
	}
	if len(intervals) == 0 {
		return 0, 0
	}
	mean := sum / float64(len(intervals))
	if mean > 0 {
		fps = 1000.0 / mean
	}

	var variance float64
	for _, d := range intervals {
		diff := d - mean
		variance += diff * diff
	}
	variance /= float64(len(intervals))
	stddevMs = math.Sqrt(variance)
	return fps, stddevMs
}
