package stats

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
	"google.golang.org/protobuf/types/known/structpb"
)

// Summary describes one exported batch.
type Summary struct {
	Records         int
	VisibleFraction float64

	MeanUnobstructed   float64
	StdDevUnobstructed float64

	// ContinuousVisible is the window's continuous visible duration when
	// the batch was exported. Every record of one export carries the same
	// value; the newest record's is reported.
	ContinuousVisible time.Duration
	// Span is the capture-time distance between the first and last record.
	Span time.Duration
}

func (s Summary) String() string {
	return fmt.Sprintf("records=%d visible=%.1f%% unobstructed=%.3f±%.3f continuous=%s span=%s",
		s.Records, 100*s.VisibleFraction, s.MeanUnobstructed, s.StdDevUnobstructed,
		s.ContinuousVisible, s.Span)
}

// Summarize computes batch statistics from records written by t. Fields the
// field map omits contribute nothing.
func (t *TrackEventStats) Summarize(records []*structpb.Struct) Summary {
	sum := Summary{Records: len(records)}
	if len(records) == 0 {
		return sum
	}

	var ratios, continuous, captured, visible []float64
	for _, rec := range records {
		f := rec.GetFields()
		if v, ok := f[t.keys[FieldUnobstructedRatio]]; ok {
			ratios = append(ratios, v.GetNumberValue())
		}
		if v, ok := f[t.keys[FieldContinuousVisibleMs]]; ok {
			continuous = append(continuous, v.GetNumberValue())
		}
		if v, ok := f[t.keys[FieldCapturedAt]]; ok {
			captured = append(captured, v.GetNumberValue())
		}
		if v, ok := f[t.keys[FieldVisible]]; ok {
			if v.GetBoolValue() {
				visible = append(visible, 1)
			} else {
				visible = append(visible, 0)
			}
		}
	}

	if len(visible) > 0 {
		sum.VisibleFraction = stat.Mean(visible, nil)
	}
	switch len(ratios) {
	case 0:
	case 1:
		sum.MeanUnobstructed = ratios[0]
	default:
		sum.MeanUnobstructed, sum.StdDevUnobstructed = stat.MeanStdDev(ratios, nil)
	}
	if len(continuous) > 0 {
		sum.ContinuousVisible = time.Duration(continuous[len(continuous)-1]) * time.Millisecond
	}
	if len(captured) > 1 {
		sum.Span = time.Duration(captured[len(captured)-1]-captured[0]) * time.Millisecond
	}
	return sum
}
