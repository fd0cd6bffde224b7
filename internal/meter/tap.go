package meter

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Tap is an owned observation point on one channel of one source.
type Tap struct {
	source   Source
	channel  int
	analyser Analyser
	buf      []float64
	released bool
}

// Channel returns the tapped channel index.
func (t *Tap) Channel() int { return t.channel }

type tapKey struct {
	source  Source
	channel int
}

// Tapper acquires, reads, and releases channel taps. Each source instance is
// connected at most once; it is safe for concurrent use.
type Tapper struct {
	mu        sync.Mutex
	channels  int
	taps      map[tapKey]*Tap
	connected map[Source]struct{}
	logger    *slog.Logger
}

// NewTapper creates a Tapper for sources with the given channel count.
func NewTapper(channels int, logger *slog.Logger) *Tapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tapper{
		channels:  channels,
		taps:      make(map[tapKey]*Tap),
		connected: make(map[Source]struct{}),
		logger:    logger,
	}
}

// Acquire returns a tap on channel of src. Acquiring an already tapped
// (source, channel) pair returns the existing tap.
func (t *Tapper) Acquire(src Source, channel int) (*Tap, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source", ErrSourceUnavailable)
	}
	if !reflect.TypeOf(src).Comparable() {
		return nil, fmt.Errorf("%w: source type %T is not comparable", ErrSourceUnavailable, src)
	}
	if channel < 0 || channel >= t.channels {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := tapKey{source: src, channel: channel}
	if tap, ok := t.taps[key]; ok {
		t.logger.Debug("reusing existing tap", "channel", channel)
		return tap, nil
	}

	if err := t.connectLocked(src); err != nil {
		return nil, err
	}

	analyser, err := src.Analyser(channel)
	if err != nil {
		return nil, fmt.Errorf("%w: channel %d: %w", ErrSourceUnavailable, channel, err)
	}

	tap := &Tap{source: src, channel: channel, analyser: analyser}
	t.taps[key] = tap
	return tap, nil
}

// connectLocked routes src into the analysis graph unless it already is.
func (t *Tapper) connectLocked(src Source) error {
	if _, ok := t.connected[src]; ok {
		return nil
	}

	err := src.Connect()
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyConnected):
		t.logger.Warn("source already connected, reusing existing routing")
	case errors.Is(err, ErrSourceUnavailable):
		return err
	default:
		return fmt.Errorf("%w: connect: %w", ErrSourceUnavailable, err)
	}

	t.connected[src] = struct{}{}
	return nil
}

// Read returns the freshest magnitude buffer for tap. The buffer is owned by
// the tap and valid until the next Read. On failure the last known buffer is
// returned together with the error.
func (t *Tapper) Read(tap *Tap) ([]float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tap.released {
		return tap.buf, fmt.Errorf("%w: channel %d tap released", ErrSourceUnavailable, tap.channel)
	}

	buf, err := tap.analyser.Magnitudes(tap.buf)
	if err != nil {
		return tap.buf, fmt.Errorf("read channel %d: %w", tap.channel, err)
	}
	tap.buf = buf
	return buf, nil
}

// Release disconnects tap. Releasing an already released tap is a no-op.
func (t *Tapper) Release(tap *Tap) error {
	if tap == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.releaseLocked(tap)
}

func (t *Tapper) releaseLocked(tap *Tap) error {
	if tap.released {
		return nil
	}
	tap.released = true

	key := tapKey{source: tap.source, channel: tap.channel}
	if t.taps[key] == tap {
		delete(t.taps, key)
	}

	if err := tap.analyser.Close(); err != nil {
		return fmt.Errorf("release channel %d: %w", tap.channel, err)
	}
	return nil
}

// ReleaseAll releases every live tap.
func (t *Tapper) ReleaseAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for _, tap := range t.taps {
		errs = append(errs, t.releaseLocked(tap))
	}
	return errors.Join(errs...)
}

// Disconnect drops the connection memory for src once none of its taps are live.
func (t *Tapper) Disconnect(src Source) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.taps {
		if key.source == src {
			return
		}
	}
	delete(t.connected, src)
}

// Forget drops the memory of connected sources.
func (t *Tapper) Forget() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.connected)
}

// counts returns the number of live taps and connected sources.
func (t *Tapper) counts() (taps, sources int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.taps), len(t.connected)
}
