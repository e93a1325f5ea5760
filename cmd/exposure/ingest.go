package main

import (
	"fmt"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/exposure.report/internal/config"
	"github.com/banshee-data/exposure.report/internal/exposure"
	"github.com/banshee-data/exposure.report/internal/httputil"
	"github.com/banshee-data/exposure.report/internal/stats"
	"github.com/banshee-data/exposure.report/internal/viewframe"
)

// ingestAPI lets a sample producer drive windows over HTTP. The reporter
// exports tracked windows on its own schedule.
type ingestAPI struct {
	cfg      *config.WindowConfig
	registry *exposure.Registry
	stats    *stats.TrackEventStats
	sink     exposure.BatchSink[*structpb.Struct]
}

func newIngestAPI(cfg *config.WindowConfig, registry *exposure.Registry, ts *stats.TrackEventStats, sink exposure.BatchSink[*structpb.Struct]) *ingestAPI {
	return &ingestAPI{cfg: cfg, registry: registry, stats: ts, sink: sink}
}

// exposureView is the JSON form of a tracked window's aggregate.
type exposureView struct {
	ExposureID          string  `json:"exposure_id"`
	Policy              string  `json:"policy"`
	Capacity            int     `json:"capacity"`
	Retained            int     `json:"retained"`
	Pushes              int     `json:"pushes"`
	OutOfOrder          int     `json:"out_of_order"`
	CoverageThreshold   float64 `json:"coverage_threshold"`
	ContinuousVisibleMs int64   `json:"continuous_visible_ms"`
	TotalElapsedMs      int64   `json:"total_elapsed_ms"`
}

func viewOf(id string, agg exposure.Aggregate) exposureView {
	return exposureView{
		ExposureID:          id,
		Policy:              agg.Policy.String(),
		Capacity:            agg.Capacity,
		Retained:            agg.Retained,
		Pushes:              agg.Pushes,
		OutOfOrder:          agg.OutOfOrder,
		CoverageThreshold:   agg.CoverageThreshold,
		ContinuousVisibleMs: agg.ContinuousVisible.Milliseconds(),
		TotalElapsedMs:      agg.TotalElapsed.Milliseconds(),
	}
}

// Register mounts the live window API.
//
//	POST   /api/exposures              start a window, returns its ID
//	GET    /api/exposures              list tracked IDs
//	GET    /api/exposures/{id}         aggregate for one window
//	POST   /api/exposures/{id}/slices  push a JSON array of slices
//	DELETE /api/exposures/{id}         stop tracking and save a final batch
func (a *ingestAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/exposures", a.handleCreate)
	mux.HandleFunc("GET /api/exposures", a.handleList)
	mux.HandleFunc("GET /api/exposures/{id}", a.handleGet)
	mux.HandleFunc("POST /api/exposures/{id}/slices", a.handlePush)
	mux.HandleFunc("DELETE /api/exposures/{id}", a.handleFinish)
}

func (a *ingestAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	win := a.cfg.NewWindow()
	id := a.registry.Track(win)
	httputil.WriteJSON(w, http.StatusCreated, viewOf(id, win.Aggregate()))
}

func (a *ingestAPI) handleList(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{"exposure_ids": a.registry.IDs()})
}

func (a *ingestAPI) window(w http.ResponseWriter, r *http.Request) (string, *exposure.Window, bool) {
	id := r.PathValue("id")
	win, ok := a.registry.Get(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("exposure %s not tracked", id))
		return id, nil, false
	}
	return id, win, true
}

func (a *ingestAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	id, win, ok := a.window(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, viewOf(id, win.Aggregate()))
}

// handlePush validates the whole array before pushing any of it.
func (a *ingestAPI) handlePush(w http.ResponseWriter, r *http.Request) {
	id, win, ok := a.window(w, r)
	if !ok {
		return
	}
	var slices []*viewframe.Slice
	if err := httputil.DecodeJSON(r, &slices); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	for i, s := range slices {
		if s == nil {
			httputil.BadRequest(w, fmt.Sprintf("slice %d: null", i))
			return
		}
		if err := s.Validate(); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("slice %d: %v", i, err))
			return
		}
	}
	for _, s := range slices {
		win.Push(s)
	}
	httputil.WriteJSONOK(w, viewOf(id, win.Aggregate()))
}

func (a *ingestAPI) handleFinish(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	win, ok := a.registry.Untrack(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("exposure %s not tracked", id))
		return
	}

	resp := map[string]interface{}{"exposure": viewOf(id, win.Aggregate())}
	records := exposure.Export[*structpb.Struct](win, a.stats)
	if len(records) > 0 {
		batchID, err := a.sink.SaveBatch(r.Context(), id, records)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("save final batch: %v", err))
			return
		}
		resp["batch_id"] = batchID
	}
	resp["records"] = len(records)
	httputil.WriteJSONOK(w, resp)
}
