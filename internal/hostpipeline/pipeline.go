// Package hostpipeline glues the capture source and the video encoder to
// the server's frame sender, with depth-2 backpressure and a one-second
// stats aggregator.
package hostpipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dusklink/dusklink/internal/capture"
	"github.com/dusklink/dusklink/internal/encoder"
	"github.com/dusklink/dusklink/internal/wire"
)

// maxPendingEncodes bounds the in-flight encode depth: one frame being
// encoded plus one frame queued hides encoder jitter without growing
// unbounded latency under all-intra encoding.
const maxPendingEncodes = 2

// SendFrameFunc forwards one encoded Annex-B buffer to the connected
// client. Implemented by *server.Server in production.
type SendFrameFunc func(data []byte, captureTimestampNs int64, isKeyframe bool) error

var ErrAlreadyRunning = errors.New("hostpipeline: already running")

// Pipeline drives capture -> encode -> send on a dedicated dispatch
// goroutine, with its own single-threaded encode dispatch context so an
// EncoderSession is exclusively owned by one goroutine at a time.
type Pipeline struct {
	dispatcher *capture.Dispatcher
	enc        *encoder.VideoEncoder
	sendFrame  SendFrameFunc
	stats      *statsAggregator

	pendingEncodes atomic.Int32

	jobs chan encodeJob

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type encodeJob struct {
	surface            []byte
	captureTimestampNs int64
}

// New builds a Pipeline over an already-constructed capture dispatcher.
// The video encoder is supplied afterward via SetEncoder, since the
// encoder must itself be constructed with this Pipeline's Callback as its
// output sink — see SetEncoder's doc comment for the construction order.
func New(dispatcher *capture.Dispatcher, sendFrame SendFrameFunc) *Pipeline {
	return &Pipeline{
		dispatcher: dispatcher,
		sendFrame:  sendFrame,
		stats:      newStatsAggregator(),
		jobs:       make(chan encodeJob, maxPendingEncodes),
	}
}

// SetEncoder attaches the video encoder this pipeline drives. Construction
// order is: build the Pipeline, call Callback() to get its FrameCallback,
// pass that to encoder.New, then SetEncoder the result before Run.
func (p *Pipeline) SetEncoder(enc *encoder.VideoEncoder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enc = enc
}

// HandleInput is registered as the server's input sink. A touch-down
// forces an out-of-band keyframe so the viewer never sees touch feedback
// composited against a stale buffered frame; move/up samples are ignored
// here since they carry no capture-side consequence.
func (p *Pipeline) HandleInput(sample wire.InputSample) {
	if sample.Action != wire.ActionDown {
		return
	}
	p.mu.Lock()
	enc := p.enc
	p.mu.Unlock()
	if enc == nil {
		return
	}
	if err := enc.ForceKeyframe(); err != nil {
		slog.Debug("force keyframe on touch-down failed", "error", err)
	}
}

// Run starts the capture-dispatch loop and the single encode-dispatch
// worker, and blocks until ctx is cancelled or Stop is called.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(2)
	go p.encodeWorker(runCtx)
	go p.statsLoop(runCtx)

	p.captureLoop(runCtx)

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// Stop halts the pipeline's goroutines; the caller is still responsible
// for stopping the capture dispatcher and closing the encoder.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Pipeline) captureLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := p.dispatcher.Next()
		if err != nil {
			slog.Warn("capture dispatch error", "error", err)
			continue
		}

		if p.pendingEncodes.Load() >= maxPendingEncodes {
			p.stats.recordDrop()
			continue
		}
		p.pendingEncodes.Add(1)

		select {
		case p.jobs <- encodeJob{surface: frame.Surface, captureTimestampNs: frame.CaptureTimestampNs}:
		case <-ctx.Done():
			p.pendingEncodes.Add(-1)
			return
		}

		if p.dispatcher.Idle() {
			time.Sleep(capture.IdleSleepInterval)
		}
	}
}

// encodeWorker is the pipeline's single-threaded encode dispatch context:
// exactly one goroutine ever calls VideoEncoder.Encode, so a live
// EncoderSession is never touched concurrently.
func (p *Pipeline) encodeWorker(ctx context.Context) {
	defer p.wg.Done()
	p.mu.Lock()
	enc := p.enc
	p.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			if err := enc.Encode(job.surface, job.captureTimestampNs); err != nil {
				slog.Warn("encode failed, dropping frame", "error", err)
				p.stats.recordDrop()
			}
			p.pendingEncodes.Add(-1)
		}
	}
}

// onEncodedFrame is the encoder output callback: forwards to the server's
// send_frame and updates the stats aggregator with the frame's age at
// send time.
func (p *Pipeline) onEncodedFrame(data []byte, captureTimestampNs int64, isKeyframe bool) {
	ageMs := float64(time.Now().UnixNano()-captureTimestampNs) / 1e6
	if p.sendFrame != nil {
		if err := p.sendFrame(data, captureTimestampNs, isKeyframe); err != nil {
			slog.Warn("send_frame failed", "error", err)
			return
		}
	}
	p.stats.recordSend(len(data), ageMs)
}

// Callback returns the encoder.FrameCallback this pipeline should be
// constructed with, i.e. pass encoder.New(settings, pipeline.Callback()).
func (p *Pipeline) Callback() encoder.FrameCallback {
	return p.onEncodedFrame
}

func (p *Pipeline) statsLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := p.stats.tick()
			slog.Debug("pipeline stats", "summary", snap.String())
		}
	}
}

// Stats returns the most recently computed one-second snapshot.
func (p *Pipeline) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}
