// Package stats turns exposure window samples into upload-ready track
// event records and summarises exported batches.
package stats

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/exposure.report/internal/exposure"
	"github.com/banshee-data/exposure.report/internal/viewframe"
)

// Canonical record fields. FieldMap values are the keys actually written.
const (
	FieldCapturedAt          = "captured_at_ms"
	FieldVisiblePoint        = "visible_point"
	FieldFrameSize           = "frame_size"
	FieldCoverage            = "coverage"
	FieldUnobstructedRatio   = "unobstructed_ratio"
	FieldShown               = "shown"
	FieldForeground          = "foreground"
	FieldVisible             = "visible"
	FieldContinuousVisibleMs = "continuous_visible_ms"
	FieldTotalElapsedMs      = "total_elapsed_ms"
)

// ErrUnsupportedSample is returned for samples that are not view frame slices.
var ErrUnsupportedSample = errors.New("unsupported sample type")

// FieldMap maps canonical field names to record keys. An empty key omits
// the field.
type FieldMap map[string]string

// DefaultFieldMap writes every field under its canonical name.
func DefaultFieldMap() FieldMap {
	m := make(FieldMap, len(canonicalFields))
	for _, f := range canonicalFields {
		m[f] = f
	}
	return m
}

var canonicalFields = []string{
	FieldCapturedAt,
	FieldVisiblePoint,
	FieldFrameSize,
	FieldCoverage,
	FieldUnobstructedRatio,
	FieldShown,
	FieldForeground,
	FieldVisible,
	FieldContinuousVisibleMs,
	FieldTotalElapsedMs,
}

// TrackEventStats is the exposure.Transformer producing one key/value record
// per exported slice.
type TrackEventStats struct {
	keys FieldMap
}

var _ exposure.Transformer[*structpb.Struct] = (*TrackEventStats)(nil)

// NewTrackEventStats applies overrides on top of DefaultFieldMap. Overrides
// for unknown fields, or two fields sharing one key, are rejected.
func NewTrackEventStats(overrides map[string]string) (*TrackEventStats, error) {
	keys := DefaultFieldMap()
	for field, key := range overrides {
		if _, ok := keys[field]; !ok {
			return nil, fmt.Errorf("unknown record field %q", field)
		}
		keys[field] = key
	}

	seen := make(map[string]string, len(keys))
	fields := make([]string, 0, len(keys))
	for f := range keys {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		k := keys[f]
		if k == "" {
			continue
		}
		if prev, dup := seen[k]; dup {
			return nil, fmt.Errorf("record key %q used by both %s and %s", k, prev, f)
		}
		seen[k] = f
	}
	return &TrackEventStats{keys: keys}, nil
}

// Key returns the record key for a canonical field, or "" when omitted.
func (t *TrackEventStats) Key(field string) string {
	return t.keys[field]
}

// Transform implements exposure.Transformer.
func (t *TrackEventStats) Transform(s exposure.Sample, agg exposure.Aggregate) (*structpb.Struct, error) {
	slice, ok := s.(*viewframe.Slice)
	if !ok || slice == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSample, s)
	}

	fields := map[string]interface{}{}
	t.put(fields, FieldCapturedAt, slice.CaptureTime.UnixMilli())
	t.put(fields, FieldVisiblePoint, map[string]interface{}{"x": slice.VisiblePoint.X, "y": slice.VisiblePoint.Y})
	t.put(fields, FieldFrameSize, map[string]interface{}{"width": slice.FrameSize.Width, "height": slice.FrameSize.Height})
	t.put(fields, FieldCoverage, slice.Coverage)
	t.put(fields, FieldUnobstructedRatio, slice.UnobstructedRatio())
	t.put(fields, FieldShown, slice.Shown)
	t.put(fields, FieldForeground, slice.Foreground)
	t.put(fields, FieldVisible, slice.Visible(agg.CoverageThreshold))
	t.put(fields, FieldContinuousVisibleMs, agg.ContinuousVisible.Milliseconds())
	t.put(fields, FieldTotalElapsedMs, agg.TotalElapsed.Milliseconds())

	rec, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build track event: %w", err)
	}
	return rec, nil
}

func (t *TrackEventStats) put(fields map[string]interface{}, field string, v interface{}) {
	if k := t.keys[field]; k != "" {
		fields[k] = v
	}
}
