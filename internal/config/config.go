package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/dusklink/dusklink/internal/logging"
)

var log = logging.L("config")

// HostConfig configures the capture/encode/serve side of the link.
type HostConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`

	DisplayIndex int `mapstructure:"display_index"`

	PreferredBackends []string `mapstructure:"preferred_backends"`

	InitialBitrateKbps int     `mapstructure:"initial_bitrate_kbps"`
	InitialQuality     float64 `mapstructure:"initial_quality"`
	InitialFPS         int     `mapstructure:"initial_fps"`

	// MaxFrameSizeOverride overrides wire.MaxFrameSize for testing only; 0
	// means use the wire package default.
	MaxFrameSizeOverride int `mapstructure:"max_frame_size_override"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// ClientConfig configures the receive/decode/present side of the link.
type ClientConfig struct {
	ServerAddr string `mapstructure:"server_addr"`

	MovePredictionEnabled bool `mapstructure:"move_prediction_enabled"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// DefaultHost returns a HostConfig populated with safe defaults.
func DefaultHost() *HostConfig {
	return &HostConfig{
		ListenAddr:         ":8888",
		DisplayIndex:       0,
		PreferredBackends:  []string{"nvidia", "amd", "intel", "directgpu", "libav", "software"},
		InitialBitrateKbps: 8000,
		InitialQuality:     0.7,
		InitialFPS:         60,
		LogLevel:           "info",
		LogFormat:          "text",
		LogMaxSizeMB:       50,
		LogMaxBackups:      3,
	}
}

// DefaultClient returns a ClientConfig populated with safe defaults.
func DefaultClient() *ClientConfig {
	return &ClientConfig{
		ServerAddr:            "localhost:8888",
		MovePredictionEnabled: true,
		LogLevel:              "info",
		LogFormat:             "text",
		LogMaxSizeMB:          50,
		LogMaxBackups:         3,
	}
}

// LoadHost reads a YAML host config from cfgFile (or the platform config
// directory/cwd when empty), applies AIRBRIDGE_-prefixed environment
// overrides, and validates the result. Fatal validation errors abort
// startup; warnings are logged and the offending value is clamped in place.
func LoadHost(cfgFile string) (*HostConfig, error) {
	cfg := DefaultHost()

	v := newViper(cfgFile, "host")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("host config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("host config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("host config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// LoadClient reads a YAML client config the same way LoadHost does.
func LoadClient(cfgFile string) (*ClientConfig, error) {
	cfg := DefaultClient()

	v := newViper(cfgFile, "client")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("client config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("client config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("client config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func newViper(cfgFile, configName string) *viper.Viper {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}
	v.AutomaticEnv()
	v.SetEnvPrefix("AIRBRIDGE")
	return v
}

// SaveHost writes cfg as YAML to cfgFile, or the platform config directory
// when cfgFile is empty.
func SaveHost(cfg *HostConfig, cfgFile string) error {
	v := viper.New()
	v.Set("listen_addr", cfg.ListenAddr)
	v.Set("display_index", cfg.DisplayIndex)
	v.Set("preferred_backends", cfg.PreferredBackends)
	v.Set("initial_bitrate_kbps", cfg.InitialBitrateKbps)
	v.Set("initial_quality", cfg.InitialQuality)
	v.Set("initial_fps", cfg.InitialFPS)
	v.Set("max_frame_size_override", cfg.MaxFrameSizeOverride)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("log_file", cfg.LogFile)
	v.Set("log_max_size_mb", cfg.LogMaxSizeMB)
	v.Set("log_max_backups", cfg.LogMaxBackups)

	return writeConfigAs(v, cfgFile, "host.yaml")
}

// SaveClient writes cfg as YAML to cfgFile, or the platform config directory
// when cfgFile is empty.
func SaveClient(cfg *ClientConfig, cfgFile string) error {
	v := viper.New()
	v.Set("server_addr", cfg.ServerAddr)
	v.Set("move_prediction_enabled", cfg.MovePredictionEnabled)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("log_file", cfg.LogFile)
	v.Set("log_max_size_mb", cfg.LogMaxSizeMB)
	v.Set("log_max_backups", cfg.LogMaxBackups)

	return writeConfigAs(v, cfgFile, "client.yaml")
}

func writeConfigAs(v *viper.Viper, cfgFile, defaultName string) error {
	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		if dir := filepath.Dir(cfgPath); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), defaultName)
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := v.WriteConfigAs(cfgPath); err != nil {
		return err
	}
	return os.Chmod(cfgPath, 0600)
}

// configDir returns the platform-specific config directory.
func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "DuskLink")
	case "darwin":
		return "/Library/Application Support/DuskLink"
	default:
		return "/etc/dusklink"
	}
}
