package inputuplink

import (
	"sync"
	"time"

	"github.com/dusklink/dusklink/internal/wire"
)

// predictHorizon is how far ahead a move sample is forward-projected.
// Short enough that overshoot on a direction change stays imperceptible.
const predictHorizon = 16 * time.Millisecond

const maxHistory = 3

type sampleRecord struct {
	t    time.Time
	x, y float32
}

// movePredictor forward-projects single-pointer move samples using a
// linear (two-sample) or quadratic (three-sample) extrapolation over
// recent history. It never alters the wire format, only the X/Y values of
// the sample it's handed; the caller decides whether to use it at all.
type movePredictor struct {
	mu      sync.Mutex
	history []sampleRecord
	nowFunc func() time.Time
}

func newMovePredictor() *movePredictor {
	return &movePredictor{nowFunc: time.Now}
}

func (p *movePredictor) reset() {
	p.mu.Lock()
	p.history = p.history[:0]
	p.mu.Unlock()
}

// project appends sample to the rolling history and returns a copy of
// sample with X/Y replaced by the forward-projected position. With fewer
// than two history points it returns sample unchanged.
func (p *movePredictor) project(sample wire.InputSample) wire.InputSample {
	now := p.nowFunc()

	p.mu.Lock()
	p.history = append(p.history, sampleRecord{t: now, x: sample.X, y: sample.Y})
	if len(p.history) > maxHistory {
		p.history = p.history[len(p.history)-maxHistory:]
	}
	hist := append([]sampleRecord(nil), p.history...)
	p.mu.Unlock()

	if len(hist) < 2 {
		return sample
	}

	x, y := extrapolate(hist)
	sample.X = clamp01(x)
	sample.Y = clamp01(y)
	return sample
}

func extrapolate(h []sampleRecord) (x, y float32) {
	n := len(h)
	last := h[n-1]
	horizon := float32(predictHorizon.Seconds())

	if n == 2 {
		dt := float32(h[1].t.Sub(h[0].t).Seconds())
		if dt <= 0 {
			return last.x, last.y
		}
		vx := (h[1].x - h[0].x) / dt
		vy := (h[1].y - h[0].y) / dt
		return last.x + vx*horizon, last.y + vy*horizon
	}

	// n == 3: quadratic extrapolation from two consecutive velocity
	// estimates and their implied acceleration.
	dt1 := float32(h[1].t.Sub(h[0].t).Seconds())
	dt2 := float32(h[2].t.Sub(h[1].t).Seconds())
	if dt1 <= 0 || dt2 <= 0 {
		return last.x, last.y
	}
	v1x := (h[1].x - h[0].x) / dt1
	v2x := (h[2].x - h[1].x) / dt2
	ax := (v2x - v1x) / dt2

	v1y := (h[1].y - h[0].y) / dt1
	v2y := (h[2].y - h[1].y) / dt2
	ay := (v2y - v1y) / dt2

	x = last.x + v2x*horizon + 0.5*ax*horizon*horizon
	y = last.y + v2y*horizon + 0.5*ay*horizon*horizon
	return x, y
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
