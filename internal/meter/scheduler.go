package meter

import (
	"sync"
	"sync/atomic"
	"time"
)

// Driver is a repeating-task primitive owned by the host. Start begins calling
// fire until the returned stop function is called. A driver may fire far more
// often than the metering rate; the Scheduler throttles.
type Driver interface {
	Start(fire func(now time.Time)) (stop func())
}

// TickerDriver fires on a time.Ticker.
type TickerDriver struct {
	Interval time.Duration
}

// Start implements Driver.
func (d TickerDriver) Start(fire func(now time.Time)) func() {
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultDriverInterval
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				fire(now)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ManualDriver fires only when told to. It suits hosts that own a render loop
// and deterministic tests.
type ManualDriver struct {
	mu   sync.Mutex
	fire func(now time.Time)
}

// Start implements Driver.
func (d *ManualDriver) Start(fire func(now time.Time)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fire = fire
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.fire = nil
	}
}

// Fire invokes the registered callback with now. It reports whether a callback was registered.
func (d *ManualDriver) Fire(now time.Time) bool {
	d.mu.Lock()
	fire := d.fire
	d.mu.Unlock()

	if fire == nil {
		return false
	}
	fire(now)
	return true
}

// Run fires n times starting at start, advancing by step each time, and returns the next time.
func (d *ManualDriver) Run(start time.Time, step time.Duration, n int) time.Time {
	now := start
	for range n {
		d.Fire(now)
		now = now.Add(step)
	}
	return now
}

// Scheduler paces a sample function to at most one call per interval,
// independent of how often its driver fires.
type Scheduler struct {
	mu         sync.Mutex
	interval   time.Duration
	sample     func(now time.Time)
	last       time.Time
	sampled    bool
	started    bool
	stopped    bool
	stopDriver func()
	accepted   atomic.Int64
}

// NewScheduler creates a scheduler that calls sample at most once per interval.
func NewScheduler(interval time.Duration, sample func(now time.Time)) *Scheduler {
	return &Scheduler{interval: interval, sample: sample}
}

// Start attaches the scheduler to d. A scheduler starts at most once.
func (s *Scheduler) Start(d Driver) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	stop := d.Start(s.fire)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		stop()
		return
	}
	s.stopDriver = stop
}

// fire is the driver callback. The first firing samples immediately.
func (s *Scheduler) fire(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.sampled && now.Sub(s.last) < s.interval {
		return
	}

	s.last = now
	s.sampled = true
	s.accepted.Add(1)
	s.sample(now)
}

// Stop cancels the scheduler. It waits for an in-flight sample, so no sampling
// happens after Stop returns. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	stop := s.stopDriver
	s.stopDriver = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Accepted returns the number of samples taken.
func (s *Scheduler) Accepted() int {
	return int(s.accepted.Load())
}
