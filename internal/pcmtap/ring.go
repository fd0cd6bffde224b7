package pcmtap

// ring holds the most recent samples of one channel.
type ring struct {
	buf   []float64
	pos   int
	count uint64 // samples written since creation
}

func newRing(size int) *ring {
	return &ring{buf: make([]float64, size)}
}

func (r *ring) write(samples []float64) {
	if len(samples) >= len(r.buf) {
		copy(r.buf, samples[len(samples)-len(r.buf):])
		r.pos = 0
		r.count += uint64(len(samples))
		return
	}
	n := copy(r.buf[r.pos:], samples)
	if n < len(samples) {
		copy(r.buf, samples[n:])
	}
	r.pos = (r.pos + len(samples)) % len(r.buf)
	r.count += uint64(len(samples))
}

// copyTo fills dst with the ring contents, oldest sample first.
func (r *ring) copyTo(dst []float64) {
	n := copy(dst, r.buf[r.pos:])
	copy(dst[n:], r.buf[:r.pos])
}
