package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/exposure.report/internal/db"
	"github.com/banshee-data/exposure.report/internal/httputil"
	"github.com/banshee-data/exposure.report/internal/monitoring"
	"github.com/banshee-data/exposure.report/internal/stats"
)

// BatchSource is the read side of db.BatchStore.
type BatchSource interface {
	GetBatch(ctx context.Context, batchID string) (*db.Batch, error)
	LatestBatch(ctx context.Context, exposureID string) (*db.Batch, error)
	ListBatches(ctx context.Context, exposureID string) ([]*db.Batch, error)
}

// Handler serves timeline charts for stored batches.
type Handler struct {
	store BatchSource
	stats *stats.TrackEventStats
}

// NewHandler returns a Handler reading records written by ts.
func NewHandler(store BatchSource, ts *stats.TrackEventStats) *Handler {
	return &Handler{store: store, stats: ts}
}

// Register attaches the timeline routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/exposure/timeline", h.handleTimeline)
	mux.HandleFunc("/debug/exposure/timeline.png", h.handleTimelinePNG)
	mux.HandleFunc("/debug/exposure/batches", h.handleBatches)
}

// loadBatch resolves ?batch_id= or, failing that, the latest batch for
// ?exposure_id=.
func (h *Handler) loadBatch(w http.ResponseWriter, r *http.Request) (*db.Batch, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil, false
	}
	q := r.URL.Query()
	var (
		batch *db.Batch
		err   error
	)
	switch {
	case q.Get("batch_id") != "":
		batch, err = h.store.GetBatch(r.Context(), q.Get("batch_id"))
	case q.Get("exposure_id") != "":
		batch, err = h.store.LatestBatch(r.Context(), q.Get("exposure_id"))
	default:
		httputil.BadRequest(w, "missing 'batch_id' or 'exposure_id' parameter")
		return nil, false
	}
	if errors.Is(err, db.ErrBatchNotFound) {
		httputil.NotFound(w, err.Error())
		return nil, false
	}
	if err != nil {
		monitoring.Logf("timeline: load batch: %v", err)
		httputil.InternalServerError(w, "failed to load batch")
		return nil, false
	}
	return batch, true
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.loadBatch(w, r)
	if !ok {
		return
	}
	points := TimelinePoints(batch.Records, h.stats)

	var buf bytes.Buffer
	title := fmt.Sprintf("Exposure %s", batch.ExposureID)
	if err := RenderTimelineHTML(&buf, title, points); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleTimelinePNG(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.loadBatch(w, r)
	if !ok {
		return
	}
	points := TimelinePoints(batch.Records, h.stats)

	var buf bytes.Buffer
	err := WriteTimelinePNG(&buf, fmt.Sprintf("Exposure %s", batch.ExposureID), points)
	if errors.Is(err, ErrNoPoints) {
		httputil.NotFound(w, "batch has no timeline points")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

type batchSummary struct {
	*db.Batch
	Summary string `json:"summary,omitempty"`
}

func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	exposureID := r.URL.Query().Get("exposure_id")
	if exposureID == "" {
		httputil.BadRequest(w, "missing 'exposure_id' parameter")
		return
	}
	batches, err := h.store.ListBatches(r.Context(), exposureID)
	if err != nil {
		monitoring.Logf("timeline: list batches: %v", err)
		httputil.InternalServerError(w, "failed to list batches")
		return
	}

	out := make([]batchSummary, 0, len(batches))
	for _, b := range batches {
		out = append(out, batchSummary{Batch: b})
	}
	if r.URL.Query().Get("summary") == "true" {
		for i, b := range batches {
			full, err := h.store.GetBatch(r.Context(), b.BatchID)
			if err != nil {
				monitoring.Logf("timeline: summarize batch %s: %v", b.BatchID, err)
				continue
			}
			out[i].Summary = h.stats.Summarize(full.Records).String()
		}
	}

	httputil.WriteJSONOK(w, out)
}
