package meter

import (
	"errors"
	"sync"
)

// fakeSource serves constant magnitude buffers per channel.
type fakeSource struct {
	mu          sync.Mutex
	values      [2]float64
	bins        int
	connects    int
	connectErr  error
	analyserErr map[int]error
	readErr     error
	closes      int
	// once makes repeat connects fail the way a real graph does.
	once bool
}

func newFakeSource(left, right float64) *fakeSource {
	return &fakeSource{values: [2]float64{left, right}, bins: 64}
}

func (s *fakeSource) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.once && s.connects > 1 {
		return ErrAlreadyConnected
	}
	return s.connectErr
}

func (s *fakeSource) Analyser(channel int) (Analyser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.analyserErr[channel]; err != nil {
		return nil, err
	}
	return &fakeAnalyser{src: s, channel: channel}, nil
}

func (s *fakeSource) set(left, right float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = [2]float64{left, right}
}

func (s *fakeSource) setReadErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *fakeSource) stats() (connects, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects, s.closes
}

type fakeAnalyser struct {
	src     *fakeSource
	channel int
}

func (a *fakeAnalyser) Magnitudes(dst []float64) ([]float64, error) {
	a.src.mu.Lock()
	defer a.src.mu.Unlock()
	if a.src.readErr != nil {
		return dst, a.src.readErr
	}
	dst = dst[:0]
	for range a.src.bins {
		dst = append(dst, a.src.values[a.channel])
	}
	return dst, nil
}

func (a *fakeAnalyser) Close() error {
	a.src.mu.Lock()
	defer a.src.mu.Unlock()
	a.src.closes++
	return nil
}

var errNotPlayable = errors.New("not playable")

// sliceSource cannot be used as a map key.
type sliceSource struct {
	tags []string
}

func (sliceSource) Connect() error { return nil }

func (sliceSource) Analyser(int) (Analyser, error) { return nil, errNotPlayable }
