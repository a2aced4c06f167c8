package config

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var knownBackends = map[string]bool{
	"nvidia":    true,
	"amd":       true,
	"intel":     true,
	"directgpu": true,
	"libav":     true,
	"software":  true,
}

// Result tiers validation errors: Fatals must block startup, Warnings are
// logged. Out-of-range numeric fields are clamped to a safe value in place;
// an unknown backend name or an invalid log level/format is reported but
// left unchanged in the config.
type Result struct {
	Warnings []error
	Fatals   []error
}

// HasFatals reports whether any fatal validation error was recorded.
func (r Result) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals and warnings concatenated, fatals first.
func (r Result) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

func (r *Result) fatal(format string, args ...any) {
	r.Fatals = append(r.Fatals, fmt.Errorf(format, args...))
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Errorf(format, args...))
}

func controlChars(s string) bool {
	for _, ch := range s {
		if unicode.IsControl(ch) {
			return true
		}
	}
	return false
}

// ValidateTiered checks the host config for invalid values. A malformed
// listen address or control characters in it are unrecoverable and fatal
// (no other text field is checked for control characters); out-of-range
// numeric knobs are clamped to a safe value in place and reported as
// warnings.
func (c *HostConfig) ValidateTiered() Result {
	var r Result

	if c.ListenAddr == "" {
		r.fatal("listen_addr must not be empty")
	} else if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		r.fatal("listen_addr %q is not a valid host:port: %w", c.ListenAddr, err)
	} else if controlChars(c.ListenAddr) {
		r.fatal("listen_addr contains control characters")
	}

	for _, name := range c.PreferredBackends {
		if !knownBackends[strings.ToLower(name)] {
			r.warn("unknown backend %q in preferred_backends, ignoring", name)
		}
	}

	if c.DisplayIndex < 0 {
		r.warn("display_index %d is negative, clamping to 0", c.DisplayIndex)
		c.DisplayIndex = 0
	}

	if c.InitialBitrateKbps < 500 {
		r.warn("initial_bitrate_kbps %d is below minimum 500, clamping", c.InitialBitrateKbps)
		c.InitialBitrateKbps = 500
	} else if c.InitialBitrateKbps > 100000 {
		r.warn("initial_bitrate_kbps %d exceeds maximum 100000, clamping", c.InitialBitrateKbps)
		c.InitialBitrateKbps = 100000
	}

	if c.InitialQuality < 0 {
		r.warn("initial_quality %f is below minimum 0, clamping", c.InitialQuality)
		c.InitialQuality = 0
	} else if c.InitialQuality > 1 {
		r.warn("initial_quality %f exceeds maximum 1, clamping", c.InitialQuality)
		c.InitialQuality = 1
	}

	if c.InitialFPS < 1 {
		r.warn("initial_fps %d is below minimum 1, clamping", c.InitialFPS)
		c.InitialFPS = 1
	} else if c.InitialFPS > 240 {
		r.warn("initial_fps %d exceeds maximum 240, clamping", c.InitialFPS)
		c.InitialFPS = 240
	}

	if c.MaxFrameSizeOverride < 0 {
		r.warn("max_frame_size_override %d is negative, clamping to 0 (use default)", c.MaxFrameSizeOverride)
		c.MaxFrameSizeOverride = 0
	}

	validateLogLevel(&r, c.LogLevel)
	validateLogFormat(&r, c.LogFormat)
	if c.LogMaxSizeMB < 0 {
		r.warn("log_max_size_mb %d is negative, clamping to 0 (default size)", c.LogMaxSizeMB)
		c.LogMaxSizeMB = 0
	}
	if c.LogMaxBackups < 0 {
		r.warn("log_max_backups %d is negative, clamping to 0", c.LogMaxBackups)
		c.LogMaxBackups = 0
	}

	return r
}

// ValidateTiered checks the client config the same way HostConfig's does.
func (c *ClientConfig) ValidateTiered() Result {
	var r Result

	if c.ServerAddr == "" {
		r.fatal("server_addr must not be empty")
	} else if _, _, err := net.SplitHostPort(c.ServerAddr); err != nil {
		r.fatal("server_addr %q is not a valid host:port: %w", c.ServerAddr, err)
	} else if controlChars(c.ServerAddr) {
		r.fatal("server_addr contains control characters")
	}

	validateLogLevel(&r, c.LogLevel)
	validateLogFormat(&r, c.LogFormat)
	if c.LogMaxSizeMB < 0 {
		r.warn("log_max_size_mb %d is negative, clamping to 0 (default size)", c.LogMaxSizeMB)
		c.LogMaxSizeMB = 0
	}
	if c.LogMaxBackups < 0 {
		r.warn("log_max_backups %d is negative, clamping to 0", c.LogMaxBackups)
		c.LogMaxBackups = 0
	}

	return r
}

func validateLogLevel(r *Result, level string) {
	if level != "" && !validLogLevels[strings.ToLower(level)] {
		r.warn("log_level %q is not valid (use debug, info, warn, error)", level)
	}
}

func validateLogFormat(r *Result, format string) {
	if format != "" && format != "text" && format != "json" {
		r.warn("log_format %q is not valid (use text or json)", format)
	}
}
