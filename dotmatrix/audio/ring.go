package audio

// sampleRing is a fixed-capacity ring of output samples.
// When full, pushing discards the oldest sample; the consumer side only
// ever pops. Single-threaded, like everything else in the engine.
type sampleRing struct {
	data  [RingCapacity]float32
	start int
	count int
}

// Push appends a sample, discarding the oldest one on overflow.
func (r *sampleRing) Push(sample float32) {
	if r.count == RingCapacity {
		r.data[r.start] = sample
		r.start = (r.start + 1) % RingCapacity
		return
	}
	r.data[(r.start+r.count)%RingCapacity] = sample
	r.count++
}

// Pop fills dst with up to len(dst) samples and returns how many were
// written.
func (r *sampleRing) Pop(dst []float32) int {
	n := min(r.count, len(dst))
	for i := 0; i < n; i++ {
		dst[i] = r.data[(r.start+i)%RingCapacity]
	}
	r.start = (r.start + n) % RingCapacity
	r.count -= n
	return n
}

// Len returns the number of buffered samples.
func (r *sampleRing) Len() int {
	return r.count
}

// Reset discards all buffered samples.
func (r *sampleRing) Reset() {
	r.start = 0
	r.count = 0
}
