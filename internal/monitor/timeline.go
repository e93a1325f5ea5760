// Package monitor renders exported exposure batches as timeline charts,
// either as go-echarts HTML for the debug server or as gonum/plot PNGs for
// offline replays.
package monitor

import (
	"sort"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/exposure.report/internal/stats"
)

// Point is one record of a batch projected onto the timeline.
type Point struct {
	At           time.Time
	Unobstructed float64
	Visible      bool
}

// TimelinePoints extracts the timeline from records written by ts. Records
// without a capture time are dropped; the rest are ordered by capture time.
func TimelinePoints(records []*structpb.Struct, ts *stats.TrackEventStats) []Point {
	atKey := ts.Key(stats.FieldCapturedAt)
	if atKey == "" {
		return nil
	}
	ratioKey := ts.Key(stats.FieldUnobstructedRatio)
	coverageKey := ts.Key(stats.FieldCoverage)
	visibleKey := ts.Key(stats.FieldVisible)

	points := make([]Point, 0, len(records))
	for _, rec := range records {
		f := rec.GetFields()
		at, ok := f[atKey]
		if !ok {
			continue
		}
		p := Point{At: time.UnixMilli(int64(at.GetNumberValue())).UTC()}
		if v, ok := f[ratioKey]; ok && ratioKey != "" {
			p.Unobstructed = v.GetNumberValue()
		} else if v, ok := f[coverageKey]; ok && coverageKey != "" {
			p.Unobstructed = 1 - v.GetNumberValue()
		}
		if v, ok := f[visibleKey]; ok && visibleKey != "" {
			p.Visible = v.GetBoolValue()
		}
		points = append(points, p)
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].At.Before(points[j].At)
	})
	return points
}

// offsetSeconds returns each point's distance from the first point.
func offsetSeconds(points []Point) []float64 {
	xs := make([]float64, len(points))
	if len(points) == 0 {
		return xs
	}
	start := points[0].At
	for i, p := range points {
		xs[i] = p.At.Sub(start).Seconds()
	}
	return xs
}

func visibleValue(p Point) float64 {
	if p.Visible {
		return 1
	}
	return 0
}
