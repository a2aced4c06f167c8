package encoder

import (
	"strings"
	"sync"
	"testing"
)

func testSettings() Settings {
	return Settings{Width: 1920, Height: 1080, FPS: 60, BitrateBps: 8_000_000, Quality: 0.8}
}

func TestNewFallsBackToSoftware(t *testing.T) {
	// No hardware driver stubs are injected, so the factory must fall
	// through every hardware candidate and land on platform-software,
	// which never fails to construct.
	enc, err := New(testSettings(), nil)
	if err != nil {
		t.Fatalf("expected software fallback to succeed: %v", err)
	}
	defer enc.Close()
	if enc.Name() != "software" {
		t.Fatalf("expected software backend selected, got %q", enc.Name())
	}
	if enc.IsHardware() {
		t.Fatalf("software backend must report IsHardware() == false")
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	bad := testSettings()
	bad.Quality = 1.5
	if _, err := New(bad, nil); err != ErrInvalidQuality {
		t.Fatalf("expected ErrInvalidQuality, got %v", err)
	}
}

func TestEncodeProducesAnnexBWithParameterSets(t *testing.T) {
	var got []byte
	enc, err := New(testSettings(), func(data []byte, ts int64, isKeyframe bool) {
		got = data
		if !isKeyframe {
			t.Errorf("every frame must be a keyframe (all-intra, GOP=1)")
		}
		if ts != 12345 {
			t.Errorf("capture timestamp not carried through: got %d", ts)
		}
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer enc.Close()

	surface := make([]byte, 64*1024)
	if err := enc.Encode(surface, 12345); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !BeginsWithStartCode(got) {
		t.Fatalf("encoded output must begin with the Annex-B start code")
	}
	if !HasParameterSetsBeforeIDR(got) {
		t.Fatalf("encoded output must carry VPS/SPS/PPS before the IDR slice")
	}
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	enc, err := New(testSettings(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer enc.Close()

	bad := testSettings()
	bad.BitrateBps = 0
	if err := enc.UpdateSettings(bad); err != ErrInvalidBitrate {
		t.Fatalf("expected ErrInvalidBitrate, got %v", err)
	}
}

func TestEncodeAfterCloseFails(t *testing.T) {
	enc, err := New(testSettings(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := enc.Encode([]byte{1, 2, 3}, 0); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized after Close, got %v", err)
	}
	// Close is idempotent.
	if err := enc.Close(); err != nil {
		t.Fatalf("second Close must not error: %v", err)
	}
}

func TestForceKeyframeNoopWhenAlreadyAllIntra(t *testing.T) {
	enc, err := New(testSettings(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer enc.Close()
	if err := enc.ForceKeyframe(); err != nil {
		t.Fatalf("ForceKeyframe: %v", err)
	}
}

func TestSetProbeObserverSeesEveryCandidateInPriorityOrder(t *testing.T) {
	var mu sync.Mutex
	var names []string
	SetProbeObserver(func(ev ProbeEvent) {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, ev.Candidate)
	})
	defer SetProbeObserver(nil)

	enc, err := New(testSettings(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer enc.Close()

	mu.Lock()
	defer mu.Unlock()
	// Failed candidates are reported by their error text, which starts with
	// the backend's name; the selected one by its Name().
	wantPrefixes := []string{"nvidia", "amd", "intel", "directgpu", "libav", "software"}
	if len(names) != len(wantPrefixes) {
		t.Fatalf("expected %d probe events, got %d (all: %v)", len(wantPrefixes), len(names), names)
	}
	for i, p := range wantPrefixes {
		if !strings.HasPrefix(names[i], p) {
			t.Fatalf("probe %d: expected candidate %q, got %q (all: %v)", i, p, names[i], names)
		}
	}
	if names[len(names)-1] != "software" {
		t.Fatalf("expected the last probed/selected candidate to be software, got %q (all: %v)", names[len(names)-1], names)
	}
}

func TestDirectGPUBackendCachesParamSetsAfterFirstFrame(t *testing.T) {
	drmRenderNodePresent = func() bool { return true }
	defer func() { drmRenderNodePresent = func() bool { return false } }()

	be, err := newDirectGPUBackend(testSettings())
	if err != nil {
		t.Fatalf("newDirectGPUBackend: %v", err)
	}
	defer be.Close()

	d := be.(*directGPUBackend)
	var frames [][]byte
	be.setCallback(func(data []byte, ts int64, isKeyframe bool) {
		cp := append([]byte(nil), data...)
		frames = append(frames, cp)
	})

	if err := be.Encode(make([]byte, 1024), 1); err != nil {
		t.Fatalf("encode 1: %v", err)
	}
	cachedAfterFirst := d.cachedParams
	if cachedAfterFirst == nil {
		t.Fatalf("expected parameter sets to be cached after the first frame")
	}
	if err := be.Encode(make([]byte, 1024), 2); err != nil {
		t.Fatalf("encode 2: %v", err)
	}
	if len(frames) != 2 || !HasParameterSetsBeforeIDR(frames[1]) {
		t.Fatalf("subsequent frames must still carry cached parameter sets before the IDR slice")
	}

	if err := be.UpdateSettings(testSettings()); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if d.cachedParams != nil {
		t.Fatalf("UpdateSettings must invalidate the cached parameter sets")
	}
}

func TestHardwareBackendsFailClosedWithoutDrivers(t *testing.T) {
	if _, err := newNVIDIABackend(testSettings()); err == nil {
		t.Fatalf("expected nvidia backend construction to fail without a driver stub")
	}
	if _, err := newAMDBackend(testSettings()); err == nil {
		t.Fatalf("expected amd backend construction to fail without a driver stub")
	}
	if _, err := newIntelBackend(testSettings()); err == nil {
		t.Fatalf("expected intel backend construction to fail without a driver stub")
	}
	if _, err := newLibavBackend(testSettings()); err == nil {
		t.Fatalf("expected libav backend construction to fail with no encoder probed")
	}
}
