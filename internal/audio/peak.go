package audio

import "sync"

// DefaultFallRate is the default peak decay per scheduler tick. At a 50 ms
// refresh interval a full-scale peak falls to zero in two seconds.
const DefaultFallRate = 2.5

// UpdatePeak returns the new peak-hold value for one channel. A level above the
// current peak replaces it immediately; otherwise the peak falls linearly by
// fallRate but never below the current level.
func UpdatePeak(current, level, fallRate float64) float64 {
	if level > current {
		return level
	}
	return max(level, current-fallRate)
}

// PeakTracker tracks decaying peak-hold state for a set of channels.
// It is safe for concurrent use.
type PeakTracker struct {
	mu       sync.Mutex
	peaks    []float64
	fallRate float64
}

// NewPeakTracker creates a peak tracker for the given number of channels with all peaks at zero.
func NewPeakTracker(channels int, fallRate float64) *PeakTracker {
	return &PeakTracker{
		peaks:    make([]float64, channels),
		fallRate: fallRate,
	}
}

// Update feeds one level per channel and returns the resulting peaks.
// Extra levels beyond the channel count are ignored; with no levels it only reports the peaks.
func (p *PeakTracker) Update(levels ...float64) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range min(len(levels), len(p.peaks)) {
		p.peaks[ch] = UpdatePeak(p.peaks[ch], levels[ch], p.fallRate)
	}
	return append([]float64(nil), p.peaks...)
}

// SetFallRate updates the per-tick decay.
func (p *PeakTracker) SetFallRate(fallRate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallRate = fallRate
}

// Reset clears all peaks to zero.
func (p *PeakTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.peaks)
}
