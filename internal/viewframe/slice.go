// Package viewframe is the concrete on-screen observation pushed into
// exposure windows: where the ad view sits, how large it is, and how much
// of it is covered at capture time.
package viewframe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/exposure.report/internal/exposure"
)

// ErrInvalidSlice is returned by Validate for physically impossible slices.
var ErrInvalidSlice = errors.New("invalid view frame slice")

// Point is a position in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in screen pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns Width*Height.
func (s Size) Area() float64 { return s.Width * s.Height }

// Slice is one observation of an ad view.
type Slice struct {
	CaptureTime  time.Time `json:"capture_time"`
	VisiblePoint Point     `json:"visible_point"`
	FrameSize    Size      `json:"frame_size"`
	// Coverage is the covered fraction of the view, 0 (clear) to 1 (hidden).
	Coverage   float64 `json:"coverage"`
	Shown      bool    `json:"shown"`
	Foreground bool    `json:"foreground"`
}

var _ exposure.Sample = (*Slice)(nil)

// CapturedAt implements exposure.Sample.
func (s *Slice) CapturedAt() time.Time { return s.CaptureTime }

// UnobstructedRatio is the visible fraction of the view.
func (s *Slice) UnobstructedRatio() float64 { return 1 - s.Coverage }

// SameAs reports whether other observed the same on-screen state. Capture
// time is not part of the state.
func (s *Slice) SameAs(other exposure.Sample) bool {
	o, ok := other.(*Slice)
	if !ok || o == nil {
		return false
	}
	return s.VisiblePoint == o.VisiblePoint &&
		s.FrameSize == o.FrameSize &&
		s.Coverage == o.Coverage &&
		s.Shown == o.Shown &&
		s.Foreground == o.Foreground
}

// Visible reports whether the view is shown in the foreground with at
// least coverageThreshold of its area unobstructed.
func (s *Slice) Visible(coverageThreshold float64) bool {
	if !s.Shown || !s.Foreground {
		return false
	}
	if s.FrameSize.Area() <= 0 {
		return false
	}
	return s.UnobstructedRatio() >= coverageThreshold
}

// Validate rejects coverage outside [0,1] and negative frame sizes.
func (s *Slice) Validate() error {
	if s.Coverage < 0 || s.Coverage > 1 {
		return fmt.Errorf("%w: coverage %f outside [0,1]", ErrInvalidSlice, s.Coverage)
	}
	if s.FrameSize.Width < 0 || s.FrameSize.Height < 0 {
		return fmt.Errorf("%w: negative frame size %gx%g", ErrInvalidSlice, s.FrameSize.Width, s.FrameSize.Height)
	}
	if s.CaptureTime.IsZero() {
		return fmt.Errorf("%w: missing capture time", ErrInvalidSlice)
	}
	return nil
}

func (s *Slice) String() string {
	return fmt.Sprintf("[t=%s point=(%g,%g) size=%gx%g coverage=%.3f shown=%t fg=%t]",
		s.CaptureTime.Format("15:04:05.000"), s.VisiblePoint.X, s.VisiblePoint.Y,
		s.FrameSize.Width, s.FrameSize.Height, s.Coverage, s.Shown, s.Foreground)
}

// ReadSlices decodes one JSON slice per line. Blank lines are skipped.
// Decoding stops at the first malformed or invalid line, reporting its
// line number.
func ReadSlices(r io.Reader) ([]*Slice, error) {
	var slices []*Slice
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		s := &Slice{}
		if err := json.Unmarshal(b, s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		slices = append(slices, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read slices: %w", err)
	}
	return slices, nil
}
