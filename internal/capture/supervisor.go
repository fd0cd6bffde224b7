// Package capture runs the audio capture process and keeps the meter attached to it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/meter"
	"github.com/oszuidwest/zwfm-meter/internal/pcmtap"
	"github.com/oszuidwest/zwfm-meter/internal/types"
	"github.com/oszuidwest/zwfm-meter/internal/util"
)

// Stream is a running capture delivering S16LE stereo PCM.
type Stream interface {
	io.Reader
	// Name identifies the captured input.
	Name() string
	// Wait blocks until the capture has exited. It must be called after the
	// stream has been read to completion.
	Wait() error
}

// Opener starts a capture. Cancelling ctx stops it.
type Opener func(ctx context.Context) (Stream, error)

// Metering is the part of the engine the supervisor drives.
type Metering interface {
	Replace(src meter.Source) error
	Detach() error
}

// Status contains runtime status for the capture supervisor.
type Status struct {
	Running  bool   `json:"running"`
	Source   string `json:"source,omitempty"`
	Error    string `json:"error,omitempty"`
	Restarts int    `json:"restarts"`
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSink sets the consumer of the captured PCM. The default discards it.
func WithSink(w io.Writer) Option {
	return func(s *Supervisor) { s.sink = w }
}

// WithBackoff sets the restart backoff.
func WithBackoff(b *util.Backoff) Option {
	return func(s *Supervisor) { s.backoff = b }
}

// WithTapOptions sets the analysis options for every captured stream.
func WithTapOptions(opts ...pcmtap.Option) Option {
	return func(s *Supervisor) { s.tapOpts = opts }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// Supervisor restarts the capture whenever it ends and points the meter at
// each new stream.
type Supervisor struct {
	engine  Metering
	open    Opener
	sink    io.Writer
	backoff *util.Backoff
	tapOpts []pcmtap.Option
	logger  *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewSupervisor creates a supervisor feeding engine from open.
func NewSupervisor(engine Metering, open Opener, opts ...Option) *Supervisor {
	s := &Supervisor{
		engine:  engine,
		open:    open,
		sink:    io.Discard,
		backoff: util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current capture status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run captures until ctx is cancelled, restarting with backoff after every exit.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		startTime := time.Now()
		err := s.runOnce(ctx)
		runDuration := time.Since(startTime)

		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			s.logger.Error("audio capture error", "error", err)
		}
		if err == nil || runDuration >= types.SuccessThreshold {
			s.backoff.Reset()
		}

		retryDelay := s.backoff.Next()
		restarts := s.update(func(st *Status) {
			st.Running = false
			st.Restarts++
			if err != nil {
				st.Error = err.Error()
			}
		})

		s.logger.Info("audio capture stopped, waiting before restart", "delay", retryDelay, "restarts", restarts)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

// runOnce runs one capture to completion.
func (s *Supervisor) runOnce(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}

	src, err := pcmtap.NewSource(stream, s.tapOpts...)
	if err != nil {
		cancel()
		_, _ = io.Copy(io.Discard, stream)
		return errors.Join(err, stream.Wait())
	}

	if err := s.engine.Replace(src); err != nil {
		s.logger.Warn("meter could not attach to capture", "error", err)
	}

	s.update(func(st *Status) {
		st.Running = true
		st.Source = stream.Name()
		st.Error = ""
	})
	s.logger.Info("audio capture started", "input", stream.Name())

	_, copyErr := io.Copy(s.sink, src)
	if copyErr != nil {
		// The capture blocks once nobody reads it.
		cancel()
	}

	if err := s.engine.Detach(); err != nil {
		s.logger.Warn("failed to detach meter", "error", err)
	}

	if err := stream.Wait(); err != nil {
		return err
	}
	if copyErr != nil {
		return fmt.Errorf("read capture: %w", copyErr)
	}
	return nil
}

func (s *Supervisor) update(fn func(*Status)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
	return s.status.Restarts
}
