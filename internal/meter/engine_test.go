package meter

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

const tick = 50 * time.Millisecond

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReferenceCeiling = 100
	cfg.FallRate = 2
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine returns an engine driven by a ManualDriver and a recorder of every published snapshot.
func newTestEngine(t *testing.T, cfg Config) (*Engine, *ManualDriver, *recorder) {
	t.Helper()
	d := &ManualDriver{}
	e, err := New(cfg, WithDriver(d), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := &recorder{}
	if _, err := e.Subscribe(r.observe); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return e, d, r
}

type recorder struct {
	mu   sync.Mutex
	seen []types.AudioLevels
}

func (r *recorder) observe(l types.AudioLevels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, l)
}

func (r *recorder) snapshots() []types.AudioLevels {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.AudioLevels(nil), r.seen...)
}

func TestEngineSteadyToneThenSilence(t *testing.T) {
	e, d, _ := newTestEngine(t, testConfig())
	src := newFakeSource(80, 0)

	if err := e.Attach(src); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if e.State() != types.StateAttached {
		t.Fatalf("state=%s want=%s", e.State(), types.StateAttached)
	}

	now := epoch
	for i := range 10 {
		d.Fire(now)
		now = now.Add(tick)
		got := e.Current()
		if got.Left != 80 || got.PeakLeft != 80 || got.Right != 0 || got.PeakRight != 0 {
			t.Fatalf("tick %d: got=%+v want left=80 peak_left=80", i, got)
		}
	}

	src.set(0, 0)
	for i := 1; i <= 40; i++ {
		d.Fire(now)
		now = now.Add(tick)
		want := 80 - 2*float64(i)
		got := e.Current()
		if got.Left != 0 || got.PeakLeft != want {
			t.Fatalf("silence tick %d: left=%v peak_left=%v want 0/%v", i, got.Left, got.PeakLeft, want)
		}
	}

	d.Fire(now)
	if got := e.Current().PeakLeft; got != 0 {
		t.Fatalf("peak_left=%v want=0 after full decay", got)
	}
	if e.Accepted() != 51 {
		t.Fatalf("accepted=%d want=51", e.Accepted())
	}
}

func TestEngineDisposeMidStream(t *testing.T) {
	e, d, r := newTestEngine(t, testConfig())
	src := newFakeSource(50, 60)

	if err := e.Attach(src); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	next := d.Run(epoch, tick, 5)
	published := len(r.snapshots())

	if err := e.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if e.State() != types.StateDisposed {
		t.Fatalf("state=%s want=%s", e.State(), types.StateDisposed)
	}

	d.Run(next, tick, 10)
	if got := len(r.snapshots()); got != published {
		t.Fatalf("observed %d snapshots after dispose", got-published)
	}
	if _, closes := src.stats(); closes != 2 {
		t.Fatalf("closes=%d want=2", closes)
	}

	if err := e.Attach(src); !errors.Is(err, ErrEngineDisposed) {
		t.Fatalf("Attach after Dispose: err=%v want=%v", err, ErrEngineDisposed)
	}
	if err := e.Replace(src); !errors.Is(err, ErrEngineDisposed) {
		t.Fatalf("Replace after Dispose: err=%v want=%v", err, ErrEngineDisposed)
	}
	if _, err := e.Subscribe(func(types.AudioLevels) {}); !errors.Is(err, ErrEngineDisposed) {
		t.Fatalf("Subscribe after Dispose: err=%v want=%v", err, ErrEngineDisposed)
	}
	if err := e.Detach(); err != nil {
		t.Fatalf("Detach after Dispose: %v", err)
	}
	if err := e.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}
}

func TestEngineAttachNilSource(t *testing.T) {
	e, d, r := newTestEngine(t, testConfig())

	if err := e.Attach(nil); err != nil {
		t.Fatalf("Attach(nil): %v", err)
	}
	var typedNil *fakeSource
	if err := e.Attach(typedNil); err != nil {
		t.Fatalf("Attach(typed nil): %v", err)
	}
	if e.State() != types.StateUnattached {
		t.Fatalf("state=%s want=%s", e.State(), types.StateUnattached)
	}
	if d.Fire(epoch) {
		t.Fatalf("scheduler started without a source")
	}
	if !e.Current().IsZero() || len(r.snapshots()) != 0 {
		t.Fatalf("unexpected snapshots for nil source")
	}
}

func TestEngineThrottle(t *testing.T) {
	e, d, _ := newTestEngine(t, testConfig())
	if err := e.Attach(newFakeSource(10, 10)); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	d.Run(epoch, 10*time.Millisecond, 100)

	if e.Accepted() != 20 {
		t.Fatalf("accepted=%d want=20", e.Accepted())
	}
	if got := e.Status(); got.State != types.StateAttached || got.Accepted != 20 || got.ID != e.ID() {
		t.Fatalf("status=%+v", got)
	}
}

func TestEngineReplaceDropsOldSource(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshInterval = time.Millisecond
	cfg.DriverInterval = time.Millisecond
	e, err := New(cfg, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Dispose()

	const oldLevel, newLevel = 30, 70
	var replaced atomic.Bool
	var stale atomic.Int32
	if _, err := e.Subscribe(func(l types.AudioLevels) {
		if replaced.Load() && l.Left == oldLevel {
			stale.Add(1)
		}
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := e.Attach(newFakeSource(oldLevel, oldLevel)); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	waitFor(t, func() bool { return e.Current().Left == oldLevel })

	if err := e.Replace(newFakeSource(newLevel, newLevel)); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	replaced.Store(true)

	waitFor(t, func() bool { return e.Current().Left == newLevel })
	if n := stale.Load(); n != 0 {
		t.Fatalf("%d snapshots from the old source after Replace", n)
	}
}

func TestEngineDetachIdempotent(t *testing.T) {
	e, d, _ := newTestEngine(t, testConfig())
	src := newFakeSource(40, 40)

	if err := e.Attach(src); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.Run(epoch, tick, 3)

	for range 3 {
		if err := e.Detach(); err != nil {
			t.Fatalf("Detach: %v", err)
		}
	}
	if _, closes := src.stats(); closes != 2 {
		t.Fatalf("closes=%d want=2", closes)
	}
	if n, _ := e.tapper.counts(); n != 0 {
		t.Fatalf("live taps=%d want=0", n)
	}
	if !e.Current().IsZero() {
		t.Fatalf("Current=%+v want zero after detach", e.Current())
	}
	if e.State() != types.StateUnattached {
		t.Fatalf("state=%s want=%s", e.State(), types.StateUnattached)
	}
}

func TestEngineAttachTwice(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	if err := e.Attach(newFakeSource(1, 1)); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := e.Attach(newFakeSource(2, 2)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Attach: err=%v want=%v", err, ErrInvalidState)
	}
}

func TestEngineSourceUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*fakeSource)
		closes int
	}{
		{
			name:  "connect fails",
			setup: func(s *fakeSource) { s.connectErr = errNotPlayable },
		},
		{
			name:   "second channel fails",
			setup:  func(s *fakeSource) { s.analyserErr = map[int]error{types.ChannelRight: errNotPlayable} },
			closes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, d, _ := newTestEngine(t, testConfig())
			src := newFakeSource(50, 50)
			tt.setup(src)

			err := e.Attach(src)
			if !errors.Is(err, ErrSourceUnavailable) {
				t.Fatalf("err=%v want=%v", err, ErrSourceUnavailable)
			}
			if e.State() != types.StateUnattached {
				t.Fatalf("state=%s want=%s", e.State(), types.StateUnattached)
			}
			if _, closes := src.stats(); closes != tt.closes {
				t.Fatalf("closes=%d want=%d", closes, tt.closes)
			}
			if n, _ := e.tapper.counts(); n != 0 {
				t.Fatalf("live taps=%d want=0", n)
			}
			if d.Fire(epoch) {
				t.Fatalf("scheduler started after failed attach")
			}

			// The failure is recoverable once the source plays.
			src.connectErr = nil
			src.analyserErr = nil
			if err := e.Attach(src); err != nil {
				t.Fatalf("retry Attach: %v", err)
			}
			d.Fire(epoch)
			if e.Current().Left != 50 {
				t.Fatalf("left=%v want=50", e.Current().Left)
			}
		})
	}
}

func TestEngineAlreadyConnectedIsRecoverable(t *testing.T) {
	e, d, _ := newTestEngine(t, testConfig())
	src := newFakeSource(25, 35)
	src.connectErr = ErrAlreadyConnected

	if err := e.Attach(src); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.Fire(epoch)
	if got := e.Current(); got.Left != 25 || got.Right != 35 {
		t.Fatalf("got=%+v want left=25 right=35", got)
	}
}

func TestEngineReattachConnectsOncePerAttachment(t *testing.T) {
	e, d, _ := newTestEngine(t, testConfig())
	src := newFakeSource(20, 20)
	src.once = true

	now := epoch
	for range 3 {
		if err := e.Attach(src); err != nil {
			t.Fatalf("Attach: %v", err)
		}
		now = d.Run(now, tick, 2)
		if e.Current().Left != 20 {
			t.Fatalf("left=%v want=20", e.Current().Left)
		}
		if err := e.Detach(); err != nil {
			t.Fatalf("Detach: %v", err)
		}
	}

	if connects, closes := src.stats(); connects != 3 || closes != 6 {
		t.Fatalf("connects=%d closes=%d want 3/6", connects, closes)
	}
	if _, sources := e.tapper.counts(); sources != 0 {
		t.Fatalf("connected sources=%d want=0", sources)
	}
}

func TestEngineReplaceReleasesSources(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())

	for range 1000 {
		if err := e.Replace(newFakeSource(10, 10)); err != nil {
			t.Fatalf("Replace: %v", err)
		}
	}
	if taps, sources := e.tapper.counts(); taps != 2 || sources != 1 {
		t.Fatalf("taps=%d sources=%d want 2/1", taps, sources)
	}

	if err := e.Detach(); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if taps, sources := e.tapper.counts(); taps != 0 || sources != 0 {
		t.Fatalf("taps=%d sources=%d want 0/0", taps, sources)
	}
}

func TestEngineAttachNonComparableSource(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())

	err := e.Attach(sliceSource{tags: []string{"a"}})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err=%v want ErrSourceUnavailable", err)
	}
	if got := e.State(); got != types.StateUnattached {
		t.Fatalf("state=%s want=%s", got, types.StateUnattached)
	}
}

func TestEngineReadFailureKeepsLastSnapshot(t *testing.T) {
	e, d, r := newTestEngine(t, testConfig())
	src := newFakeSource(60, 40)
	if err := e.Attach(src); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	now := d.Run(epoch, tick, 2)
	before := e.Current()

	src.setReadErr(errNotPlayable)
	now = d.Run(now, tick, 3)
	if got := e.Current(); got != before {
		t.Fatalf("got=%+v want previous snapshot %+v", got, before)
	}
	if got := len(r.snapshots()); got != 5 {
		t.Fatalf("published=%d want=5", got)
	}

	src.setReadErr(nil)
	src.set(10, 10)
	d.Fire(now)
	if got := e.Current(); got.Left != 10 || got.PeakLeft != 58 {
		t.Fatalf("got=%+v want left=10 peak_left=58", got)
	}
}

func TestEngineClipFlags(t *testing.T) {
	e, d, _ := newTestEngine(t, testConfig())
	if err := e.Attach(newFakeSource(250, 99)); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.Fire(epoch)

	got := e.Current()
	if got.Left != 100 || !got.ClipLeft {
		t.Fatalf("left=%v clip_left=%v want 100/true", got.Left, got.ClipLeft)
	}
	if got.ClipRight {
		t.Fatalf("clip_right set at level %v", got.Right)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero refresh", func(c *Config) { c.RefreshInterval = 0 }, "refresh_interval"},
		{"driver slower than refresh", func(c *Config) { c.DriverInterval = time.Second }, "driver_interval"},
		{"zero fall rate", func(c *Config) { c.FallRate = 0 }, "fall_rate"},
		{"negative ceiling", func(c *Config) { c.ReferenceCeiling = -1 }, "reference_ceiling"},
		{"mono", func(c *Config) { c.ChannelCount = 1 }, "channel_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := New(cfg)
			var verr *types.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err=%v want *types.ValidationError", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("errors=%+v missing field %q", verr.Errors, tt.field)
			}
		})
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngineSetFallRate(t *testing.T) {
	e, d, _ := newTestEngine(t, testConfig())
	src := newFakeSource(60, 0)
	if err := e.Attach(src); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	now := d.Run(epoch, tick, 1)

	if err := e.SetFallRate(10); err != nil {
		t.Fatalf("SetFallRate: %v", err)
	}
	src.set(0, 0)
	d.Fire(now)
	if got := e.Current().PeakLeft; got != 50 {
		t.Fatalf("peak_left=%v want=50", got)
	}

	var verr *types.ValidationError
	if err := e.SetFallRate(-1); !errors.As(err, &verr) {
		t.Fatalf("err=%v want *types.ValidationError", err)
	}

	if err := e.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := e.SetFallRate(1); !errors.Is(err, ErrEngineDisposed) {
		t.Fatalf("err=%v want=%v", err, ErrEngineDisposed)
	}
}
