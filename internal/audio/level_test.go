package audio

import (
	"math"
	"math/rand/v2"
	"testing"
)

func constBuf(n int, v float64) []float64 {
	buf := make([]float64, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

func TestComputeLevelBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		buf     []float64
		ceiling float64
		want    float64
	}{
		{"empty", nil, 128, 0},
		{"all zero", constBuf(64, 0), 128, 0},
		{"at ceiling", constBuf(64, 128), 128, 100},
		{"above ceiling", constBuf(64, 255), 128, 100},
		{"half ceiling", constBuf(32, 50), 100, 50},
		{"eighty", constBuf(1024, 80), 100, 80},
		{"negative bins", constBuf(16, -40), 100, 0},
		{"nan bins", constBuf(16, math.NaN()), 100, 0},
		{"positive infinity", []float64{0, math.Inf(1)}, 100, 100},
		{"zero ceiling", constBuf(16, 10), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeLevel(tt.buf, tt.ceiling)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("ComputeLevel=%v want=%v", got, tt.want)
			}
		})
	}
}

func TestComputeLevelRMS(t *testing.T) {
	// RMS of {30, 40} is sqrt((900+1600)/2) = 35.355...
	got := ComputeLevel([]float64{30, 40}, 100)
	want := math.Sqrt(1250)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("ComputeLevel=%v want=%v", got, want)
	}
}

func TestComputeLevelRangeRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range 500 {
		buf := make([]float64, 1+rng.IntN(256))
		for j := range buf {
			buf[j] = rng.Float64() * 400
		}
		got := ComputeLevel(buf, DefaultReferenceCeiling)
		if got < 0 || got > 100 {
			t.Fatalf("iteration %d: level %v out of range", i, got)
		}
	}
}

func TestComputeLevelPure(t *testing.T) {
	buf := []float64{12, 200, 3, 64}
	orig := append([]float64(nil), buf...)

	a := ComputeLevel(buf, DefaultReferenceCeiling)
	b := ComputeLevel(buf, DefaultReferenceCeiling)
	if a != b {
		t.Fatalf("same input produced %v and %v", a, b)
	}
	for i := range buf {
		if buf[i] != orig[i] {
			t.Fatalf("input mutated at %d: %v", i, buf)
		}
	}
}
