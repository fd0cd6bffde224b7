package util

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Fatalf("step %d: got=%v want=%v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Current(); got != time.Second {
		t.Fatalf("after Reset got=%v want=%v", got, time.Second)
	}
}
