// Package config provides application configuration management.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-meter/internal/meter"
	"github.com/oszuidwest/zwfm-meter/internal/pcmtap"
	"github.com/oszuidwest/zwfm-meter/internal/util"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ZWFM_METER_SYSTEM_PORT.
const EnvPrefix = "ZWFM_METER"

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort   = 8080
	DefaultLogLevel  = "info"
	DefaultFFTSize   = pcmtap.DefaultFFTSize
	DefaultSmoothing = pcmtap.DefaultSmoothing
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path" json:"ffmpeg_path"`                                    // Path to FFmpeg binary (empty = use PATH)
	Port       int    `mapstructure:"port" json:"port" validate:"gte=1,lte=65535"`                       // HTTP server port
	LogLevel   string `mapstructure:"log_level" json:"log_level" validate:"oneof=debug info warn error"` // Minimum log level
}

// AudioConfig holds audio input and analysis settings.
type AudioConfig struct {
	Input     string  `mapstructure:"input" json:"input"`                                                          // Audio input device identifier
	FFTSize   int     `mapstructure:"fft_size" json:"fft_size" validate:"oneof=256 512 1024 2048 4096 8192 16384"` // Analysis window length
	Smoothing float64 `mapstructure:"smoothing" json:"smoothing" validate:"gte=0,lte=1"`                           // Spectrum time smoothing
}

// Config holds all application configuration.
type Config struct {
	System SystemConfig `mapstructure:"system" json:"system"`
	Audio  AudioConfig  `mapstructure:"audio" json:"audio"`
	Meter  meter.Config `mapstructure:"meter" json:"meter"`
}

// setDefaults registers every key, which also makes each one overridable from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("system.ffmpeg_path", "")
	v.SetDefault("system.port", DefaultWebPort)
	v.SetDefault("system.log_level", DefaultLogLevel)

	v.SetDefault("audio.input", "")
	v.SetDefault("audio.fft_size", DefaultFFTSize)
	v.SetDefault("audio.smoothing", DefaultSmoothing)

	m := meter.DefaultConfig()
	v.SetDefault("meter.refresh_interval", m.RefreshInterval)
	v.SetDefault("meter.driver_interval", m.DriverInterval)
	v.SetDefault("meter.fall_rate", m.FallRate)
	v.SetDefault("meter.reference_ceiling", m.ReferenceCeiling)
	v.SetDefault("meter.channel_count", m.ChannelCount)
}

// Load reads the configuration file at path (JSON, YAML, or TOML by extension),
// applies environment overrides, and validates the result. A missing file
// yields the defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, util.WrapError("read config", err)
			}
			slog.Info("no config file found, using defaults", "path", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, util.WrapError("parse config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks all configuration fields. Failures are returned as a *types.ValidationError.
func (c *Config) Validate() error {
	return util.ValidateStruct(c)
}

// TapOptions returns the analysis options for captured streams.
func (c *Config) TapOptions() []pcmtap.Option {
	return []pcmtap.Option{
		pcmtap.WithFFTSize(c.Audio.FFTSize),
		pcmtap.WithSmoothing(c.Audio.Smoothing),
	}
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.System.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
