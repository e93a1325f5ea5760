package exposure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/exposure.report/internal/timeutil"
)

// DefaultReportInterval is used when a reporter is created without an interval.
const DefaultReportInterval = 30 * time.Second

// BatchSink receives exported batches. The sqlite BatchStore is the
// production implementation.
type BatchSink[R any] interface {
	SaveBatch(ctx context.Context, exposureID string, records []R) (string, error)
}

// Reporter periodically exports every window in a Registry and hands the
// batches to a sink.
type Reporter[R any] struct {
	registry    *Registry
	transformer Transformer[R]
	sink        BatchSink[R]
	clock       timeutil.Clock
	interval    time.Duration
}

// NewReporter wires a reporter. A nil clock means the real clock.
func NewReporter[R any](registry *Registry, t Transformer[R], sink BatchSink[R], clock timeutil.Clock, interval time.Duration) *Reporter[R] {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Reporter[R]{
		registry:    registry,
		transformer: t,
		sink:        sink,
		clock:       clock,
		interval:    interval,
	}
}

// ReportOnce exports each tracked window once. Windows with nothing to
// report are skipped. A failing sink does not stop the remaining windows;
// the failures are returned joined.
func (r *Reporter[R]) ReportOnce(ctx context.Context) (int, error) {
	saved := 0
	var errs []error
	for _, id := range r.registry.IDs() {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		w, ok := r.registry.Get(id)
		if !ok {
			continue
		}
		records := Export(w, r.transformer)
		if len(records) == 0 {
			continue
		}
		batchID, err := r.sink.SaveBatch(ctx, id, records)
		if err != nil {
			Opsf("report: save batch for exposure %s failed: %v", id, err)
			errs = append(errs, fmt.Errorf("exposure %s: %w", id, err))
			continue
		}
		saved++
		Diagf("report: exposure %s batch %s records=%d", id, batchID, len(records))
	}
	return saved, errors.Join(errs...)
}

// Run reports on every tick until ctx is cancelled.
func (r *Reporter[R]) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if _, err := r.ReportOnce(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				Opsf("report: %v", err)
			}
		}
	}
}
