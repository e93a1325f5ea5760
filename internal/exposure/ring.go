package exposure

// sampleRing is a fixed-capacity FIFO of samples. Adding to a full ring
// overwrites the oldest entry, which is the window's front eviction.
type sampleRing struct {
	samples  []Sample
	capacity int
	head     int // next write position
	size     int
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}
}

// Add appends s, evicting the oldest sample when the ring is full.
// It reports whether an eviction happened.
func (r *sampleRing) Add(s Sample) bool {
	evicted := r.size == r.capacity
	r.samples[r.head] = s
	r.head = (r.head + 1) % r.capacity
	if !evicted {
		r.size++
	}
	return evicted
}

// Last returns the most recently added sample, or nil when empty.
func (r *sampleRing) Last() Sample {
	if r.size == 0 {
		return nil
	}
	return r.samples[(r.head-1+r.capacity)%r.capacity]
}

func (r *sampleRing) Len() int { return r.size }

// AppendTo appends the ring contents to dst from oldest to newest.
func (r *sampleRing) AppendTo(dst []Sample) []Sample {
	for i := 0; i < r.size; i++ {
		idx := (r.head - r.size + i + r.capacity) % r.capacity
		dst = append(dst, r.samples[idx])
	}
	return dst
}
