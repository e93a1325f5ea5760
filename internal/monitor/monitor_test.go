package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/exposure.report/internal/db"
	"github.com/banshee-data/exposure.report/internal/exposure"
	"github.com/banshee-data/exposure.report/internal/monitoring"
	"github.com/banshee-data/exposure.report/internal/stats"
	"github.com/banshee-data/exposure.report/internal/viewframe"
)

var base = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func exportedRecords(t *testing.T, ts *stats.TrackEventStats) []*structpb.Struct {
	t.Helper()
	w := exposure.NewWindow(exposure.VisibilityChanged, 10, 0.5)
	for i, coverage := range []float64{0.8, 0.2, 0.3, 0.9, 0.0} {
		w.Push(&viewframe.Slice{
			CaptureTime: base.Add(time.Duration(i) * 250 * time.Millisecond),
			FrameSize:   viewframe.Size{Width: 320, Height: 50},
			Coverage:    coverage,
			Shown:       true,
			Foreground:  true,
		})
	}
	return exposure.Export[*structpb.Struct](w, ts)
}

func TestTimelinePoints(t *testing.T) {
	ts, err := stats.NewTrackEventStats(nil)
	require.NoError(t, err)

	points := TimelinePoints(exportedRecords(t, ts), ts)
	require.Len(t, points, 4)

	assert.Equal(t, base, points[0].At)
	assert.InDelta(t, 0.2, points[0].Unobstructed, 1e-9)
	assert.False(t, points[0].Visible)
	assert.True(t, points[1].Visible)
	assert.False(t, points[2].Visible)
	assert.True(t, points[3].Visible)
	assert.Equal(t, base.Add(time.Second), points[3].At)
}

func TestTimelinePoints_FallsBackToCoverage(t *testing.T) {
	ts, err := stats.NewTrackEventStats(map[string]string{
		stats.FieldUnobstructedRatio: "",
		stats.FieldCapturedAt:        "ts",
	})
	require.NoError(t, err)

	points := TimelinePoints(exportedRecords(t, ts), ts)
	require.Len(t, points, 4)
	assert.InDelta(t, 0.8, points[1].Unobstructed, 1e-9)
}

func TestTimelinePoints_NoCaptureKey(t *testing.T) {
	ts, err := stats.NewTrackEventStats(map[string]string{stats.FieldCapturedAt: ""})
	require.NoError(t, err)
	assert.Nil(t, TimelinePoints(exportedRecords(t, ts), ts))
}

func TestTimelinePoints_SortsByCaptureTime(t *testing.T) {
	ts, err := stats.NewTrackEventStats(nil)
	require.NoError(t, err)
	records := exportedRecords(t, ts)
	records[0], records[3] = records[3], records[0]

	points := TimelinePoints(records, ts)
	for i := 1; i < len(points); i++ {
		assert.False(t, points[i].At.Before(points[i-1].At), "point %d out of order", i)
	}
}

func TestRenderTimelineHTML(t *testing.T) {
	var buf bytes.Buffer
	points := []Point{
		{At: base, Unobstructed: 0.1},
		{At: base.Add(1500 * time.Millisecond), Unobstructed: 0.9, Visible: true},
	}
	require.NoError(t, RenderTimelineHTML(&buf, "Exposure test", points))

	html := buf.String()
	assert.Contains(t, html, "Exposure test")
	assert.Contains(t, html, "unobstructed")
	assert.Contains(t, html, "1.500")
}

func TestSaveTimelinePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.png")
	points := []Point{
		{At: base, Unobstructed: 0.1},
		{At: base.Add(time.Second), Unobstructed: 0.9, Visible: true},
	}
	require.NoError(t, SaveTimelinePNG(path, "timeline", points))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "not a PNG file")

	assert.ErrorIs(t, SaveTimelinePNG(path, "empty", nil), ErrNoPoints)
}

type fakeSource struct {
	batches map[string]*db.Batch
}

func (f *fakeSource) GetBatch(_ context.Context, id string) (*db.Batch, error) {
	b, ok := f.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", db.ErrBatchNotFound, id)
	}
	return b, nil
}

func (f *fakeSource) LatestBatch(_ context.Context, exposureID string) (*db.Batch, error) {
	var latest *db.Batch
	for _, b := range f.batches {
		if b.ExposureID == exposureID && (latest == nil || b.CreatedAt.After(latest.CreatedAt)) {
			latest = b
		}
	}
	if latest == nil {
		return nil, db.ErrBatchNotFound
	}
	return latest, nil
}

func (f *fakeSource) ListBatches(_ context.Context, exposureID string) ([]*db.Batch, error) {
	var out []*db.Batch
	for _, b := range f.batches {
		if b.ExposureID == exposureID {
			out = append(out, b)
		}
	}
	return out, nil
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	ts, err := stats.NewTrackEventStats(nil)
	require.NoError(t, err)
	records := exportedRecords(t, ts)
	src := &fakeSource{batches: map[string]*db.Batch{
		"b1": {BatchID: "b1", ExposureID: "e1", CreatedAt: base, RecordCount: len(records), Records: records},
	}}
	mux := http.NewServeMux()
	NewHandler(src, ts).Register(mux)
	return mux
}

func TestHandler(t *testing.T) {
	mux := newTestMux(t)

	tests := []struct {
		name        string
		method      string
		url         string
		status      int
		contentType string
	}{
		{"html by batch", http.MethodGet, "/debug/exposure/timeline?batch_id=b1", http.StatusOK, "text/html; charset=utf-8"},
		{"html latest", http.MethodGet, "/debug/exposure/timeline?exposure_id=e1", http.StatusOK, "text/html; charset=utf-8"},
		{"png", http.MethodGet, "/debug/exposure/timeline.png?batch_id=b1", http.StatusOK, "image/png"},
		{"unknown batch", http.MethodGet, "/debug/exposure/timeline?batch_id=nope", http.StatusNotFound, "application/json"},
		{"missing param", http.MethodGet, "/debug/exposure/timeline", http.StatusBadRequest, "application/json"},
		{"wrong method", http.MethodPost, "/debug/exposure/timeline?batch_id=b1", http.StatusMethodNotAllowed, "application/json"},
		{"list missing param", http.MethodGet, "/debug/exposure/batches", http.StatusBadRequest, "application/json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.url, nil))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
		})
	}
}

func TestHandler_ListBatchesWithSummary(t *testing.T) {
	mux := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/exposure/batches?exposure_id=e1&summary=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0]["batch_id"])
	assert.EqualValues(t, 4, got[0]["record_count"])
	assert.True(t, strings.HasPrefix(got[0]["summary"].(string), "records=4 "))
}

// unreadableSource lists batches but cannot load any of them.
type unreadableSource struct{ *fakeSource }

func (unreadableSource) GetBatch(context.Context, string) (*db.Batch, error) {
	return nil, errors.New("disk I/O error")
}

func TestHandler_ListBatchesSummaryLoadFailureIsLogged(t *testing.T) {
	prev := monitoring.Logf
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	var logs bytes.Buffer
	monitoring.SetOutput(&logs)

	ts, err := stats.NewTrackEventStats(nil)
	require.NoError(t, err)
	src := unreadableSource{&fakeSource{batches: map[string]*db.Batch{
		"b1": {BatchID: "b1", ExposureID: "e1", CreatedAt: base, RecordCount: 4},
	}}}
	mux := http.NewServeMux()
	NewHandler(src, ts).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/exposure/batches?exposure_id=e1&summary=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.NotContains(t, got[0], "summary")
	assert.Contains(t, logs.String(), "timeline: summarize batch b1: disk I/O error")
}
