package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredInvalidListenAddrIsFatal(t *testing.T) {
	cfg := DefaultHost()
	cfg.ListenAddr = "not-an-addr"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("invalid listen_addr should be fatal")
	}
}

func TestValidateTieredEmptyListenAddrIsFatal(t *testing.T) {
	cfg := DefaultHost()
	cfg.ListenAddr = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("empty listen_addr should be fatal")
	}
}

func TestValidateTieredControlCharsInListenAddrIsFatal(t *testing.T) {
	cfg := DefaultHost()
	cfg.ListenAddr = "local\x00host:8888"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("control chars in listen_addr should be fatal")
	}
}

func TestValidateTieredBitrateClampingIsWarning(t *testing.T) {
	cfg := DefaultHost()
	cfg.InitialBitrateKbps = 10 // below minimum 500
	result := cfg.ValidateTiered()

	if result.HasFatals() {
		t.Fatalf("clamped bitrate should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for clamped bitrate")
	}
	if cfg.InitialBitrateKbps != 500 {
		t.Fatalf("InitialBitrateKbps = %d, want 500 (clamped)", cfg.InitialBitrateKbps)
	}
}

func TestValidateTieredHighBitrateClampingIsWarning(t *testing.T) {
	cfg := DefaultHost()
	cfg.InitialBitrateKbps = 999999
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped bitrate should be warning, not fatal: %v", result.Fatals)
	}
	if cfg.InitialBitrateKbps != 100000 {
		t.Fatalf("InitialBitrateKbps = %d, want 100000 (clamped)", cfg.InitialBitrateKbps)
	}
}

func TestValidateTieredQualityClamping(t *testing.T) {
	cfg := DefaultHost()
	cfg.InitialQuality = 1.5
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped quality should be warning: %v", result.Fatals)
	}
	if cfg.InitialQuality != 1 {
		t.Fatalf("InitialQuality = %f, want 1", cfg.InitialQuality)
	}
}

func TestValidateTieredFPSClamping(t *testing.T) {
	cfg := DefaultHost()
	cfg.InitialFPS = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped fps should be warning: %v", result.Fatals)
	}
	if cfg.InitialFPS != 1 {
		t.Fatalf("InitialFPS = %d, want 1", cfg.InitialFPS)
	}
}

func TestValidateTieredDisplayIndexClamping(t *testing.T) {
	cfg := DefaultHost()
	cfg.DisplayIndex = -1
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped display index should be warning: %v", result.Fatals)
	}
	if cfg.DisplayIndex != 0 {
		t.Fatalf("DisplayIndex = %d, want 0", cfg.DisplayIndex)
	}
}

func TestValidateTieredUnknownBackendIsWarning(t *testing.T) {
	cfg := DefaultHost()
	cfg.PreferredBackends = []string{"nvidia", "bogus_backend"}
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown backend should not be fatal")
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "bogus_backend") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning about unknown backend")
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := DefaultHost()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := DefaultHost()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestHasFatals(t *testing.T) {
	r := Result{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := DefaultHost()
	cfg.ListenAddr = "bad"                              // fatal
	cfg.PreferredBackends = []string{"fake"}             // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidHostConfigHasNoErrors(t *testing.T) {
	cfg := DefaultHost()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid host config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid host config has warnings: %v", result.Warnings)
	}
}

func TestValidClientConfigHasNoErrors(t *testing.T) {
	cfg := DefaultClient()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid client config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid client config has warnings: %v", result.Warnings)
	}
}

func TestValidateTieredClientInvalidServerAddrIsFatal(t *testing.T) {
	cfg := DefaultClient()
	cfg.ServerAddr = "not-an-addr"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("invalid server_addr should be fatal")
	}
}
