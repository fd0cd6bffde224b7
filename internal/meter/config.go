package meter

import (
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/types"
	"github.com/oszuidwest/zwfm-meter/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultRefreshInterval = 50 * time.Millisecond
	DefaultDriverInterval  = 10 * time.Millisecond
	DefaultFallRate        = audio.DefaultFallRate
	DefaultCeiling         = audio.DefaultReferenceCeiling
	DefaultChannelCount    = types.Channels
)

// Config holds the tunable metering parameters.
type Config struct {
	// RefreshInterval is the minimum time between accepted samples.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" json:"refresh_interval" validate:"gte=1ms,lte=10s"`
	// DriverInterval is how often the default ticker driver fires.
	DriverInterval time.Duration `mapstructure:"driver_interval" json:"driver_interval" validate:"gte=1ms,ltefield=RefreshInterval"`
	// FallRate is the peak decay per accepted sample, in level units.
	FallRate float64 `mapstructure:"fall_rate" json:"fall_rate" validate:"gt=0,lte=100"`
	// ReferenceCeiling is the magnitude RMS mapped to a level of 100.
	ReferenceCeiling float64 `mapstructure:"reference_ceiling" json:"reference_ceiling" validate:"gt=0"`
	// ChannelCount is fixed at stereo.
	ChannelCount int `mapstructure:"channel_count" json:"channel_count" validate:"eq=2"`
}

// DefaultConfig returns the default metering configuration.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:  DefaultRefreshInterval,
		DriverInterval:   DefaultDriverInterval,
		FallRate:         DefaultFallRate,
		ReferenceCeiling: DefaultCeiling,
		ChannelCount:     DefaultChannelCount,
	}
}

// Validate checks all fields. Failures are returned as a *types.ValidationError.
func (c *Config) Validate() error {
	return util.ValidateStruct(c)
}
