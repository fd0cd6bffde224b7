// Package meter provides the real-time dual-channel level metering engine.
// It taps a live source per channel, samples the taps on a throttled cadence,
// derives normalized levels with decaying peaks, and publishes immutable snapshots.
package meter

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// Option configures an Engine.
type Option func(*Engine)

// WithDriver sets the repeating-task driver. The default is a TickerDriver
// firing at Config.DriverInterval.
func WithDriver(d Driver) Option {
	return func(e *Engine) { e.driver = d }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine supervises the tap, analysis, and publishing pipeline for one source
// at a time. It is safe for concurrent use.
type Engine struct {
	id        string
	cfg       Config
	driver    Driver
	logger    *slog.Logger
	tapper    *Tapper
	peaks     *audio.PeakTracker
	publisher *Publisher

	mu    sync.Mutex // guards lifecycle transitions
	state atomic.Value
	sched atomic.Pointer[Scheduler]
	taps  []*Tap
}

// New creates an unattached engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		id:        uuid.NewString(),
		cfg:       cfg,
		peaks:     audio.NewPeakTracker(cfg.ChannelCount, cfg.FallRate),
		publisher: NewPublisher(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.driver == nil {
		e.driver = TickerDriver{Interval: cfg.DriverInterval}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("engine_id", e.id)
	e.tapper = NewTapper(cfg.ChannelCount, e.logger)
	e.state.Store(types.StateUnattached)

	return e, nil
}

// ID returns the engine instance ID.
func (e *Engine) ID() string { return e.id }

// State returns the current lifecycle state.
func (e *Engine) State() types.EngineState {
	return e.state.Load().(types.EngineState)
}

func (e *Engine) setState(s types.EngineState) {
	e.state.Store(s)
}

// Current returns the latest snapshot.
func (e *Engine) Current() types.AudioLevels {
	return e.publisher.Current()
}

// Accepted returns the number of samples taken since the last attach.
func (e *Engine) Accepted() int {
	if s := e.sched.Load(); s != nil {
		return s.Accepted()
	}
	return 0
}

// Status returns the engine status.
func (e *Engine) Status() types.EngineStatus {
	return types.EngineStatus{
		ID:       e.id,
		State:    e.State(),
		Accepted: e.Accepted(),
	}
}

// Subscribe registers fn to receive every published snapshot.
func (e *Engine) Subscribe(fn Observer) (unsubscribe func(), err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() == types.StateDisposed {
		return nil, ErrEngineDisposed
	}
	return e.publisher.Subscribe(fn), nil
}

// SetFallRate changes the peak decay per accepted sample. It takes effect on the next sample.
func (e *Engine) SetFallRate(rate float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == types.StateDisposed {
		return ErrEngineDisposed
	}

	cfg := e.cfg
	cfg.FallRate = rate
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.cfg = cfg
	e.peaks.SetFallRate(rate)
	e.logger.Info("peak fall rate changed", "fall_rate", rate)
	return nil
}

// Attach starts metering src. A nil src is a no-op that leaves the engine
// unattached. Attach is only valid while unattached.
func (e *Engine) Attach(src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attachLocked(src)
}

// Replace detaches the current source and attaches src as one transition:
// once Replace returns, no snapshot derived from the old source is published.
func (e *Engine) Replace(src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == types.StateDisposed {
		return ErrEngineDisposed
	}
	e.detachLocked()
	return e.attachLocked(src)
}

// Detach stops metering, releases all taps, and resets peaks and the snapshot to zero.
// It is idempotent.
func (e *Engine) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == types.StateDisposed {
		return nil
	}
	e.detachLocked()
	return nil
}

// Dispose detaches and permanently shuts the engine down. Observers receive no
// further snapshots. It is safe to call more than once.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == types.StateDisposed {
		return nil
	}

	e.publisher.Clear()
	e.detachLocked()
	if err := e.tapper.ReleaseAll(); err != nil {
		e.logger.Warn("failed to release taps", "error", err)
	}
	e.tapper.Forget()
	e.setState(types.StateDisposed)
	e.logger.Info("meter disposed")
	return nil
}

func (e *Engine) attachLocked(src Source) error {
	switch state := e.State(); state {
	case types.StateDisposed:
		return ErrEngineDisposed
	case types.StateUnattached:
	default:
		return fmt.Errorf("%w: cannot attach while %s", ErrInvalidState, state)
	}

	if isNilSource(src) {
		e.logger.Debug("no source to attach")
		return nil
	}

	e.setState(types.StateAttaching)

	taps := make([]*Tap, 0, e.cfg.ChannelCount)
	for ch := range e.cfg.ChannelCount {
		tap, err := e.tapper.Acquire(src, ch)
		if err != nil {
			for _, t := range taps {
				if rerr := e.tapper.Release(t); rerr != nil {
					e.logger.Warn("failed to release tap", "channel", t.Channel(), "error", rerr)
				}
			}
			e.tapper.Disconnect(src)
			e.setState(types.StateUnattached)
			return fmt.Errorf("attach: %w", err)
		}
		taps = append(taps, tap)
	}

	p := &pipeline{
		taps:      taps,
		tapper:    e.tapper,
		peaks:     e.peaks,
		publisher: e.publisher,
		ceiling:   e.cfg.ReferenceCeiling,
		logger:    e.logger,
		levels:    make([]float64, len(taps)),
	}
	sched := NewScheduler(e.cfg.RefreshInterval, p.sample)

	e.taps = taps
	e.sched.Store(sched)
	e.setState(types.StateAttached)
	sched.Start(e.driver)

	e.logger.Info("meter attached", "channels", len(taps), "refresh_interval", e.cfg.RefreshInterval)
	return nil
}

func (e *Engine) detachLocked() {
	if e.State() != types.StateAttached {
		return
	}
	e.setState(types.StateDetaching)

	// Stop waits for an in-flight sample, so the taps are idle below.
	if sched := e.sched.Load(); sched != nil {
		sched.Stop()
	}

	for _, tap := range e.taps {
		if err := e.tapper.Release(tap); err != nil {
			e.logger.Warn("failed to release tap", "channel", tap.Channel(), "error", err)
		}
	}
	for _, tap := range e.taps {
		e.tapper.Disconnect(tap.source)
	}
	e.taps = nil

	e.peaks.Reset()
	e.publisher.Reset()
	e.setState(types.StateUnattached)
	e.logger.Info("meter detached")
}

// isNilSource reports whether src is nil or a typed nil pointer.
func isNilSource(src Source) bool {
	if src == nil {
		return true
	}
	v := reflect.ValueOf(src)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// pipeline is the per-attachment sampling state. It is only touched from the
// scheduler, which serializes samples.
type pipeline struct {
	taps      []*Tap
	tapper    *Tapper
	peaks     *audio.PeakTracker
	publisher *Publisher
	ceiling   float64
	logger    *slog.Logger
	levels    []float64
	failing   bool
}

// sample reads every channel, updates peaks, and publishes one snapshot.
// A failed read republishes the previous snapshot.
func (p *pipeline) sample(_ time.Time) {
	for i, tap := range p.taps {
		buf, err := p.tapper.Read(tap)
		if err != nil {
			if !p.failing {
				p.logger.Warn("magnitude read failed, keeping last levels", "channel", tap.Channel(), "error", err)
				p.failing = true
			}
			p.publisher.Publish(p.publisher.Current())
			return
		}
		p.levels[i] = audio.ComputeLevel(buf, p.ceiling)
	}

	if p.failing {
		p.logger.Info("magnitude reads recovered")
		p.failing = false
	}

	peaks := p.peaks.Update(p.levels...)
	p.publisher.Publish(snapshot(p.levels, peaks))
}

// snapshot builds a stereo snapshot from per-channel levels and peaks.
func snapshot(levels, peaks []float64) types.AudioLevels {
	left, right := levels[types.ChannelLeft], levels[types.ChannelRight]
	return types.AudioLevels{
		Left:      left,
		Right:     right,
		PeakLeft:  peaks[types.ChannelLeft],
		PeakRight: peaks[types.ChannelRight],
		ClipLeft:  left >= types.LevelMax,
		ClipRight: right >= types.LevelMax,
	}
}
