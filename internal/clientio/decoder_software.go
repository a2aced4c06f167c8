package clientio

import (
	"errors"
	"sync"
)

const softwareInputBuffers = 2

// softwareDecoder is the fallback decoder, the decoder-side counterpart of
// the encoder package's platform-software backend: no driver/codec check,
// it opens for any positive width and height.
type softwareDecoder struct {
	mu        sync.Mutex
	freeInput []int
	running   bool
}

func newSoftwareDecoder(width, height int) (Decoder, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("clientio: invalid decoder resolution")
	}
	free := make([]int, softwareInputBuffers)
	for i := range free {
		free[i] = i
	}
	return &softwareDecoder{freeInput: free, running: true}, nil
}

func (d *softwareDecoder) AcquireInputBuffer() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.freeInput) == 0 {
		return 0, false
	}
	idx := d.freeInput[0]
	d.freeInput = d.freeInput[1:]
	return idx, true
}

func (d *softwareDecoder) SubmitInputBuffer(idx int, data []byte, presentationUs int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return errors.New("clientio: decoder not running")
	}
	d.freeInput = append(d.freeInput, idx)
	return nil
}

func (d *softwareDecoder) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *softwareDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

func (d *softwareDecoder) Name() string { return "software" }

func (d *softwareDecoder) IsHardware() bool { return false }
