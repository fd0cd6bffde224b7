package pcmtap

import (
	"errors"
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// ErrAnalyserClosed is returned by Magnitudes after Close.
var ErrAnalyserClosed = errors.New("analyser closed")

// Analyser computes byte-scaled (0-255) magnitudes for one channel: Blackman
// window, FFT, per-bin time smoothing, and a dB range mapped linearly onto 0-255.
type Analyser struct {
	src     *Source
	channel int

	mu        sync.Mutex
	closed    bool
	count     uint64
	computed  bool
	smoothing float64
	minDB     float64
	dbScale   float64

	plan     *algofft.Plan[complex128]
	window   []float64
	frame    []float64
	in       []complex128
	out      []complex128
	re, im   []float64
	mag      []float64
	smoothed []float64
	bytes    []float64
}

func newAnalyser(src *Source, channel int, o options) (*Analyser, error) {
	plan, err := algofft.NewPlan64(o.fftSize)
	if err != nil {
		return nil, fmt.Errorf("analyser fft plan: %w", err)
	}

	n := o.fftSize
	bins := n / 2
	return &Analyser{
		src:       src,
		channel:   channel,
		smoothing: o.smoothing,
		minDB:     o.minDB,
		dbScale:   255 / (o.maxDB - o.minDB),
		plan:      plan,
		window:    blackman(n),
		frame:     make([]float64, n),
		in:        make([]complex128, n),
		out:       make([]complex128, n),
		re:        make([]float64, bins),
		im:        make([]float64, bins),
		mag:       make([]float64, bins),
		smoothed:  make([]float64, bins),
		bytes:     make([]float64, bins),
	}, nil
}

// Magnitudes implements meter.Analyser. Without new samples since the last call it
// returns the previous buffer. Once the stream has ended it returns the previous
// buffer and an error wrapping meter.ErrSourceUnavailable.
func (a *Analyser) Magnitudes(dst []float64) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return dst, ErrAnalyserClosed
	}

	count, err := a.src.snapshot(a.channel, a.frame)
	if err != nil {
		return append(dst[:0], a.bytes...), err
	}
	if !a.computed || count != a.count {
		if err := a.compute(); err != nil {
			return append(dst[:0], a.bytes...), err
		}
		a.count = count
		a.computed = true
	}
	return append(dst[:0], a.bytes...), nil
}

func (a *Analyser) compute() error {
	vecmath.MulBlockInPlace(a.frame, a.window)
	for i, v := range a.frame {
		a.in[i] = complex(v, 0)
	}
	if err := a.plan.Forward(a.out, a.in); err != nil {
		return fmt.Errorf("fft: %w", err)
	}

	for k := range a.re {
		a.re[k] = real(a.out[k])
		a.im[k] = imag(a.out[k])
	}
	vecmath.Magnitude(a.mag, a.re, a.im)

	scale := 1 / float64(len(a.frame))
	for k, m := range a.mag {
		s := a.smoothing*a.smoothed[k] + (1-a.smoothing)*m*scale
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		a.smoothed[k] = s
		a.bytes[k] = a.toByte(s)
	}
	return nil
}

// toByte maps a linear magnitude onto 0-255 through the configured dB range.
func (a *Analyser) toByte(m float64) float64 {
	if m <= 0 {
		return 0
	}
	db := 20 * math.Log10(m)
	v := math.Floor((db - a.minDB) * a.dbScale)
	return min(max(v, 0), 255)
}

// Close implements meter.Analyser.
func (a *Analyser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
