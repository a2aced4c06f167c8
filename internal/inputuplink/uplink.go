// Package inputuplink implements the Client's background input/ping
// submission context: touch and pointer samples are serialized and sent
// without coalescing, and a 1-second timer keeps a liveness ping flowing
// while the connection is up.
package inputuplink

import (
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dusklink/dusklink/internal/wire"
)

const pingInterval = time.Second

// Uplink serializes InputSample and Ping writes onto a single connection.
type Uplink struct {
	writeMu sync.Mutex
	conn    io.Writer

	predictor        *movePredictor
	predictionActive atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	nowFunc func() time.Time
}

// New constructs an Uplink writing to conn. Start must be called to begin
// the ping timer. Move prediction is enabled by default; call
// SetPredictionEnabled(false) to disable it.
func New(conn io.Writer) *Uplink {
	u := &Uplink{
		conn:      conn,
		predictor: newMovePredictor(),
		stopCh:    make(chan struct{}),
		nowFunc:   time.Now,
	}
	u.predictionActive.Store(true)
	return u
}

// SetPredictionEnabled toggles the move-prediction extrapolator. Disabling
// it sends every move sample as observed, with no forward projection.
func (u *Uplink) SetPredictionEnabled(enabled bool) {
	u.predictionActive.Store(enabled)
	if !enabled {
		u.predictor.reset()
	}
}

// Start begins the 1-second ping timer. Safe to call once.
func (u *Uplink) Start() {
	u.wg.Add(1)
	go u.pingLoop()
}

// Stop cancels the ping timer and waits for it to exit.
func (u *Uplink) Stop() {
	close(u.stopCh)
	u.wg.Wait()
}

// Submit serializes and sends one input sample. Single-pointer move
// samples are optionally forward-projected by the move predictor before
// being sent; the wire format itself is never altered. Multi-pointer
// samples bypass prediction and reset the predictor's history, since
// extrapolating one of two simultaneous pointers independently would
// distort pinch/rotate gestures where the relationship between the two
// points is what matters.
func (u *Uplink) Submit(sample wire.InputSample) error {
	if sample.PointerCount != 1 {
		u.predictor.reset()
	} else if sample.Action == wire.ActionMove && u.predictionActive.Load() {
		sample = u.predictor.project(sample)
	} else {
		u.predictor.reset()
	}

	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return wire.WriteInputSample(u.conn, sample)
}

func (u *Uplink) pingLoop() {
	defer u.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := u.sendPing(); err != nil {
				slog.Debug("ping send failed", "error", err)
			}
		case <-u.stopCh:
			return
		}
	}
}

func (u *Uplink) sendPing() error {
	var payload [8]byte
	binary.BigEndian.PutUint64(payload[:], uint64(u.nowFunc().UnixNano()))
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return wire.WritePing(u.conn, payload)
}
