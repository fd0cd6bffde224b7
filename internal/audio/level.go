package audio

import (
	"math"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// DefaultReferenceCeiling is the RMS magnitude mapped to a level of 100.
// It is an empirical calibration against byte-scaled (0-255) spectrum data,
// not a loudness standard.
const DefaultReferenceCeiling = 128.0

// ComputeLevel returns the root-mean-square of buf mapped onto [0, 100], where an
// RMS equal to ceiling maps to 100. Values above the ceiling clamp to 100. An empty
// or all-zero buffer maps to 0. NaN and negative bins count as silence.
func ComputeLevel(buf []float64, ceiling float64) float64 {
	if len(buf) == 0 || ceiling <= 0 {
		return 0
	}

	var sum float64
	for _, m := range buf {
		switch {
		case math.IsInf(m, 1):
			return 100
		case m > 0:
			sum += m * m
		}
	}

	rms := math.Sqrt(sum / float64(len(buf)))
	return clampLevel(rms * 100 / ceiling)
}

// clampLevel limits v to [0, 100].
func clampLevel(v float64) float64 {
	if math.IsNaN(v) || v < types.LevelMin {
		return types.LevelMin
	}
	return min(v, types.LevelMax)
}
