// Package pcmtap taps a live S16LE stereo PCM stream for metering. Bytes pass
// through unchanged to the reader's consumer; once connected, the samples also
// feed per-channel spectrum analysers.
package pcmtap

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
	"sync"

	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/meter"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// Analysis defaults. They match the usual browser analyser settings.
const (
	DefaultFFTSize   = 2048
	DefaultSmoothing = 0.8
	DefaultMinDB     = -100.0
	DefaultMaxDB     = -30.0

	minFFTSize = 32
	maxFFTSize = 32768
)

// ErrInvalidOption is returned by NewSource for out-of-range options.
var ErrInvalidOption = errors.New("invalid pcmtap option")

type options struct {
	fftSize   int
	smoothing float64
	minDB     float64
	maxDB     float64
}

// Option configures a Source.
type Option func(*options)

// WithFFTSize sets the analysis window length. It must be a power of two between 32 and 32768.
func WithFFTSize(n int) Option {
	return func(o *options) { o.fftSize = n }
}

// WithSmoothing sets the time smoothing constant in [0, 1].
func WithSmoothing(tau float64) Option {
	return func(o *options) { o.smoothing = tau }
}

// WithDecibelRange sets the dB range mapped onto the 0-255 magnitude scale.
func WithDecibelRange(minDB, maxDB float64) Option {
	return func(o *options) {
		o.minDB = minDB
		o.maxDB = maxDB
	}
}

func (o options) validate() error {
	if o.fftSize < minFFTSize || o.fftSize > maxFFTSize || bits.OnesCount(uint(o.fftSize)) != 1 {
		return fmt.Errorf("%w: fft size %d", ErrInvalidOption, o.fftSize)
	}
	if o.smoothing < 0 || o.smoothing > 1 {
		return fmt.Errorf("%w: smoothing %v", ErrInvalidOption, o.smoothing)
	}
	if o.minDB >= o.maxDB {
		return fmt.Errorf("%w: decibel range [%v, %v]", ErrInvalidOption, o.minDB, o.maxDB)
	}
	return nil
}

// Source wraps a PCM stream. Reading from it reads the underlying stream.
// It implements meter.Source.
type Source struct {
	r    io.Reader
	opts options

	mu        sync.Mutex
	connected bool
	ended     error
	rings     [types.Channels]*ring
	partial   [audio.FrameSize]byte
	npartial  int
	left      []float64
	right     []float64
}

// NewSource wraps r, which must deliver S16LE stereo frames.
func NewSource(r io.Reader, opts ...Option) (*Source, error) {
	o := options{
		fftSize:   DefaultFFTSize,
		smoothing: DefaultSmoothing,
		minDB:     DefaultMinDB,
		maxDB:     DefaultMaxDB,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Source{r: r, opts: o}, nil
}

// Read reads from the underlying stream. The bytes are returned unchanged.
func (s *Source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.capture(p[:n])
	}
	if err != nil {
		s.end(err)
	}
	return n, err
}

func (s *Source) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended == nil {
		s.ended = err
	}
}

// capture copies whole frames from data into the channel rings, carrying a
// trailing partial frame over to the next call.
func (s *Source) capture(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return
	}

	if s.npartial > 0 {
		n := copy(s.partial[s.npartial:], data)
		s.npartial += n
		data = data[n:]
		if s.npartial < audio.FrameSize {
			return
		}
		s.push(s.partial[:])
		s.npartial = 0
	}

	whole := len(data) - len(data)%audio.FrameSize
	s.push(data[:whole])
	s.npartial = copy(s.partial[:], data[whole:])
}

func (s *Source) push(frames []byte) {
	n := len(frames) / audio.FrameSize
	if n == 0 {
		return
	}
	if cap(s.left) < n {
		s.left = make([]float64, n)
		s.right = make([]float64, n)
	}
	left, right := s.left[:n], s.right[:n]
	audio.DecodeS16LE(frames, left, right)
	s.rings[types.ChannelLeft].write(left)
	s.rings[types.ChannelRight].write(right)
}

// Connect starts feeding analysers. It returns meter.ErrAlreadyConnected on repeat calls.
func (s *Source) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.playableLocked(); err != nil {
		return err
	}
	if s.connected {
		return meter.ErrAlreadyConnected
	}
	for ch := range s.rings {
		s.rings[ch] = newRing(s.opts.fftSize)
	}
	s.connected = true
	return nil
}

// Analyser returns a spectrum analyser for channel.
func (s *Source) Analyser(channel int) (meter.Analyser, error) {
	if channel < 0 || channel >= types.Channels {
		return nil, fmt.Errorf("%w: %d", meter.ErrInvalidChannel, channel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playableLocked(); err != nil {
		return nil, err
	}
	if !s.connected {
		return nil, fmt.Errorf("%w: not connected", meter.ErrSourceUnavailable)
	}
	a, err := newAnalyser(s, channel, s.opts)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Source) playableLocked() error {
	switch {
	case s.ended == nil:
		return nil
	case errors.Is(s.ended, io.EOF):
		return fmt.Errorf("%w: stream ended", meter.ErrSourceUnavailable)
	default:
		return fmt.Errorf("%w: %w", meter.ErrSourceUnavailable, s.ended)
	}
}

// snapshot copies the channel's latest window into dst and returns the ring's
// sample count, which changes whenever new samples arrive.
func (s *Source) snapshot(channel int, dst []float64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.playableLocked(); err != nil {
		return 0, err
	}
	r := s.rings[channel]
	r.copyTo(dst)
	return r.count, nil
}
