package exposure

import (
	"fmt"
	"time"
)

// Sample is one timestamped observation of an ad's on-screen state.
// Implementations must be immutable once pushed into a Window.
type Sample interface {
	// CapturedAt is the observation time. Successive pushes are expected to
	// be non-decreasing; the window does not correct violations.
	CapturedAt() time.Time

	// SameAs reports whether other represents the same observed state.
	SameAs(other Sample) bool

	// Visible reports whether the sample counts as visibly exposed for the
	// given coverage threshold.
	Visible(coverageThreshold float64) bool
}

// Aggregate is a consistent snapshot of a window's derived state, handed to
// transformers alongside each exported sample.
type Aggregate struct {
	ContinuousVisible time.Duration
	TotalElapsed      time.Duration
	Retained          int
	Capacity          int
	Policy            Policy
	CoverageThreshold float64
	Pushes            int
	// OutOfOrder counts pushes whose capture time preceded the previous sample.
	OutOfOrder int
}

// Transformer converts one sample into an exported record.
type Transformer[R any] interface {
	Transform(s Sample, agg Aggregate) (R, error)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc[R any] func(s Sample, agg Aggregate) (R, error)

// Transform calls f(s, agg).
func (f TransformerFunc[R]) Transform(s Sample, agg Aggregate) (R, error) {
	return f(s, agg)
}

// Policy selects which pushed samples are retained in the window.
type Policy int

const (
	// PositionChanged retains every sample that differs from the previous one.
	PositionChanged Policy = iota
	// VisibilityChanged retains only samples whose visibility flips.
	VisibilityChanged
)

func (p Policy) String() string {
	switch p {
	case PositionChanged:
		return "position_changed"
	case VisibilityChanged:
		return "visibility_changed"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a configuration string onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "position_changed", "0":
		return PositionChanged, nil
	case "visibility_changed", "1":
		return VisibilityChanged, nil
	}
	return 0, fmt.Errorf("unknown track policy %q", s)
}
