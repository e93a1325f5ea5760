// Package exposure tracks the observation timeline of a single ad exposure.
//
// A Window keeps a bounded, ordered buffer of samples chosen by an admission
// policy, and derives two running metrics from every pushed sample: how long
// the ad has been continuously visible, and how long it has been observed in
// total. Export turns the buffer, plus the most recent sample, into an
// ordered batch of records for upload.
//
// Push and Export may be called from different goroutines.
package exposure

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// DefaultCapacity is used when a window is created with a non-positive capacity.
const DefaultCapacity = 20

// Window is the per-exposure aggregate of retained samples and durations.
type Window struct {
	mu sync.Mutex

	policy            Policy
	capacity          int
	coverageThreshold float64

	retained *sampleRing

	first  Sample // first sample ever pushed, never evicted
	last   Sample // most recent sample, admitted or not
	anchor Sample // start of the current visible run, nil outside a run

	// lastAdmitted is true when last is also the tail of retained.
	lastAdmitted bool
	wasVisible   bool

	continuousVisible time.Duration
	totalElapsed      time.Duration
	pushes            int
	outOfOrder        int
}

// NewWindow creates a window with a fixed admission policy, capacity and
// coverage threshold. The threshold is passed unchanged to Sample.Visible.
func NewWindow(policy Policy, capacity int, coverageThreshold float64) *Window {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Window{
		policy:            policy,
		capacity:          capacity,
		coverageThreshold: coverageThreshold,
		retained:          newSampleRing(capacity),
	}
}

// Push records one observation. A nil sample is ignored.
func (w *Window) Push(s Sample) {
	if isNilSample(s) {
		Diagf("push: ignoring nil sample")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.first == nil {
		w.first = s
	}

	visible := s.Visible(w.coverageThreshold)

	admitted := w.admit(s, visible)
	if admitted {
		w.retained.Add(s)
	}

	if w.last != nil && s.CapturedAt().Before(w.last.CapturedAt()) {
		w.outOfOrder++
		Diagf("push: capture time %s precedes previous sample %s",
			s.CapturedAt().Format(time.RFC3339Nano), w.last.CapturedAt().Format(time.RFC3339Nano))
	}
	w.last = s
	w.lastAdmitted = admitted
	w.pushes++

	if visible {
		if w.anchor == nil {
			w.anchor = s
		}
		w.continuousVisible = s.CapturedAt().Sub(w.anchor.CapturedAt())
	} else {
		w.anchor = nil
		w.continuousVisible = 0
	}

	w.totalElapsed = w.last.CapturedAt().Sub(w.first.CapturedAt())

	Tracef("push: retained=%d admitted=%t visible=%t continuous=%s total=%s",
		w.retained.Len(), admitted, visible, w.continuousVisible, w.totalElapsed)

	w.wasVisible = visible
}

// admit decides whether s enters the buffer, comparing against the sample
// pushed before it. Must be called before w.last is updated.
func (w *Window) admit(s Sample, visible bool) bool {
	if w.last == nil {
		return true
	}
	switch w.policy {
	case VisibilityChanged:
		return visible != w.wasVisible
	default:
		return !w.last.SameAs(s)
	}
}

// RetainedCount returns the number of samples currently in the buffer.
func (w *Window) RetainedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.retained.Len()
}

// Capacity returns the buffer bound, which is also the export batch bound.
func (w *Window) Capacity() int { return w.capacity }

// Policy returns the admission policy fixed at construction.
func (w *Window) Policy() Policy { return w.policy }

// ContinuousVisibleDuration returns the length of the current visible run.
func (w *Window) ContinuousVisibleDuration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.continuousVisible
}

// TotalElapsedDuration returns the time between the first and last samples.
func (w *Window) TotalElapsedDuration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalElapsed
}

// FirstSample returns the first sample ever pushed, or nil.
func (w *Window) FirstSample() Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.first
}

// LastSample returns the most recently pushed sample, or nil.
func (w *Window) LastSample() Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Aggregate returns a consistent snapshot of the derived state.
func (w *Window) Aggregate() Aggregate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aggregateLocked()
}

func (w *Window) aggregateLocked() Aggregate {
	return Aggregate{
		ContinuousVisible: w.continuousVisible,
		TotalElapsed:      w.totalElapsed,
		Retained:          w.retained.Len(),
		Capacity:          w.capacity,
		Policy:            w.policy,
		CoverageThreshold: w.coverageThreshold,
		Pushes:            w.pushes,
		OutOfOrder:        w.outOfOrder,
	}
}

// Snapshot returns the samples an export would transform, oldest first,
// together with the aggregate state they were taken under. The returned
// slice is a private copy.
//
// The most recent sample is appended when it was not admitted, then the
// result is cut to the newest Capacity entries.
func (w *Window) Snapshot() ([]Sample, Aggregate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.retained.Len()
	if n == 0 {
		return nil, w.aggregateLocked()
	}
	samples := w.retained.AppendTo(make([]Sample, 0, n+1))
	if !w.lastAdmitted && !sameInstance(w.retained.Last(), w.last) {
		samples = append(samples, w.last)
	}

	start := 0
	if len(samples) > w.capacity {
		start = len(samples) - w.capacity
	}
	return samples[start:], w.aggregateLocked()
}

func (w *Window) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fmt.Sprintf("[policy=%s continuous=%s total=%s retained=%d/%d]",
		w.policy, w.continuousVisible, w.totalElapsed, w.retained.Len(), w.capacity)
}

// sameInstance reports whether a and b are the same value. Samples whose
// dynamic type is not comparable are never the same instance.
func sameInstance(a, b Sample) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}

// isNilSample also catches typed nil pointers wrapped in the interface.
func isNilSample(s Sample) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
