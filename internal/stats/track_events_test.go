package stats

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/exposure.report/internal/exposure"
	"github.com/banshee-data/exposure.report/internal/viewframe"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func slice(ms int, coverage float64) *viewframe.Slice {
	return &viewframe.Slice{
		CaptureTime:  epoch.Add(time.Duration(ms) * time.Millisecond),
		VisiblePoint: viewframe.Point{X: 4, Y: 8},
		FrameSize:    viewframe.Size{Width: 320, Height: 50},
		Coverage:     coverage,
		Shown:        true,
		Foreground:   true,
	}
}

func TestTransform_DefaultFields(t *testing.T) {
	ts, err := NewTrackEventStats(nil)
	require.NoError(t, err)

	agg := exposure.Aggregate{
		ContinuousVisible: 1500 * time.Millisecond,
		TotalElapsed:      4 * time.Second,
		CoverageThreshold: 0.5,
	}
	rec, err := ts.Transform(slice(250, 0.25), agg)
	require.NoError(t, err)

	want := map[string]interface{}{
		FieldCapturedAt:          float64(epoch.Add(250 * time.Millisecond).UnixMilli()),
		FieldVisiblePoint:        map[string]interface{}{"x": 4.0, "y": 8.0},
		FieldFrameSize:           map[string]interface{}{"width": 320.0, "height": 50.0},
		FieldCoverage:            0.25,
		FieldUnobstructedRatio:   0.75,
		FieldShown:               true,
		FieldForeground:          true,
		FieldVisible:             true,
		FieldContinuousVisibleMs: 1500.0,
		FieldTotalElapsedMs:      4000.0,
	}
	if diff := cmp.Diff(want, rec.AsMap()); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestTransform_FieldMapOverrides(t *testing.T) {
	ts, err := NewTrackEventStats(map[string]string{
		FieldCapturedAt: "ts",
		FieldVisible:    "vb",
		FieldCoverage:   "",
	})
	require.NoError(t, err)
	assert.Equal(t, "ts", ts.Key(FieldCapturedAt))
	assert.Equal(t, "", ts.Key(FieldCoverage))

	rec, err := ts.Transform(slice(0, 0.9), exposure.Aggregate{CoverageThreshold: 0.5})
	require.NoError(t, err)

	fields := rec.GetFields()
	assert.Contains(t, fields, "ts")
	assert.NotContains(t, fields, FieldCapturedAt)
	assert.NotContains(t, fields, FieldCoverage)
	assert.False(t, fields["vb"].GetBoolValue())
}

func TestNewTrackEventStats_RejectsBadOverrides(t *testing.T) {
	_, err := NewTrackEventStats(map[string]string{"colour": "c"})
	assert.Error(t, err)

	_, err = NewTrackEventStats(map[string]string{FieldShown: "x", FieldForeground: "x"})
	assert.Error(t, err)
}

type foreignSample struct{}

func (foreignSample) CapturedAt() time.Time       { return epoch }
func (foreignSample) SameAs(exposure.Sample) bool { return false }
func (foreignSample) Visible(float64) bool        { return true }

func TestTransform_UnsupportedSample(t *testing.T) {
	ts, err := NewTrackEventStats(nil)
	require.NoError(t, err)

	_, err = ts.Transform(foreignSample{}, exposure.Aggregate{})
	assert.True(t, errors.Is(err, ErrUnsupportedSample))
}

func TestExportWithTrackEventStats(t *testing.T) {
	ts, err := NewTrackEventStats(nil)
	require.NoError(t, err)

	w := exposure.NewWindow(exposure.PositionChanged, 2, 0.5)
	w.Push(slice(0, 0.1))
	w.Push(slice(100, 0.2))
	w.Push(slice(200, 0.2)) // duplicate state, only reachable through the tail

	records := exposure.Export[*structpb.Struct](w, ts)
	require.Len(t, records, 2)
	assert.Equal(t, float64(epoch.Add(100*time.Millisecond).UnixMilli()),
		records[0].GetFields()[FieldCapturedAt].GetNumberValue())
	assert.Equal(t, float64(epoch.Add(200*time.Millisecond).UnixMilli()),
		records[1].GetFields()[FieldCapturedAt].GetNumberValue())

	// Same input, same output.
	again := exposure.Export[*structpb.Struct](w, ts)
	if diff := cmp.Diff(records, again, protocmp.Transform()); diff != "" {
		t.Errorf("repeated export differs (-first +second):\n%s", diff)
	}
}

func TestSummarize(t *testing.T) {
	ts, err := NewTrackEventStats(nil)
	require.NoError(t, err)

	w := exposure.NewWindow(exposure.PositionChanged, 10, 0.5)
	w.Push(slice(0, 0.0))
	w.Push(slice(1000, 0.2))
	w.Push(slice(2000, 0.8)) // not visible
	w.Push(slice(3000, 0.4))

	records := exposure.Export[*structpb.Struct](w, ts)
	require.Len(t, records, 4)

	sum := ts.Summarize(records)
	assert.Equal(t, 4, sum.Records)
	assert.InDelta(t, 0.75, sum.VisibleFraction, 1e-9)
	assert.InDelta(t, (1.0+0.8+0.2+0.6)/4, sum.MeanUnobstructed, 1e-9)
	assert.Greater(t, sum.StdDevUnobstructed, 0.0)
	assert.Equal(t, 3*time.Second, sum.Span)
	// Every record carries the aggregate at export time: the run restarted at t=3000.
	assert.Equal(t, time.Duration(0), sum.ContinuousVisible)
	assert.NotEmpty(t, sum.String())
}

func TestSummarize_EdgeCases(t *testing.T) {
	ts, err := NewTrackEventStats(nil)
	require.NoError(t, err)

	empty := ts.Summarize(nil)
	assert.Equal(t, Summary{}, empty)

	rec, err := ts.Transform(slice(0, 0.3), exposure.Aggregate{CoverageThreshold: 0.5, ContinuousVisible: 20 * time.Millisecond})
	require.NoError(t, err)
	one := ts.Summarize([]*structpb.Struct{rec})
	assert.InDelta(t, 0.7, one.MeanUnobstructed, 1e-9)
	assert.False(t, math.IsNaN(one.StdDevUnobstructed))
	assert.Equal(t, 0.0, one.StdDevUnobstructed)
	assert.Equal(t, 20*time.Millisecond, one.ContinuousVisible)
	assert.Equal(t, time.Duration(0), one.Span)
}

func TestSummarize_ContinuousVisibleIsNewest(t *testing.T) {
	ts, err := NewTrackEventStats(nil)
	require.NoError(t, err)

	// Records stitched from two exports: the run broke between them, so the
	// newer value is smaller and must win over the larger stale one.
	older, err := ts.Transform(slice(0, 0.1), exposure.Aggregate{CoverageThreshold: 0.5, ContinuousVisible: 900 * time.Millisecond})
	require.NoError(t, err)
	newer, err := ts.Transform(slice(1000, 0.1), exposure.Aggregate{CoverageThreshold: 0.5, ContinuousVisible: 40 * time.Millisecond})
	require.NoError(t, err)

	sum := ts.Summarize([]*structpb.Struct{older, newer})
	assert.Equal(t, 40*time.Millisecond, sum.ContinuousVisible)
	assert.Contains(t, sum.String(), "continuous=40ms")
	assert.NotContains(t, sum.String(), "max_continuous")
}

func TestDefaultFieldMapCoversEveryField(t *testing.T) {
	m := DefaultFieldMap()
	got := make([]string, 0, len(m))
	for k, v := range m {
		assert.Equal(t, k, v)
		got = append(got, k)
	}
	if diff := cmp.Diff(canonicalFields, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("field map keys (-want +got):\n%s", diff)
	}
}
