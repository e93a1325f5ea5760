package exposure

import "fmt"

// Export materialises the window as an upload batch: at most Capacity
// records in timeline order, ending with the most recent sample.
//
// A sample that fails to transform (error or panic) is logged on the ops
// stream and skipped; the rest of the batch is still produced. The caller
// always gets a non-nil slice, possibly shorter than the snapshot.
func Export[R any](w *Window, t Transformer[R]) []R {
	samples, agg := w.Snapshot()
	records := make([]R, 0, len(samples))
	failed := 0
	for i, s := range samples {
		r, err := transformOne(t, s, agg)
		if err != nil {
			failed++
			Opsf("export: skipping sample %d/%d captured at %s: %v",
				i+1, len(samples), s.CapturedAt().Format("15:04:05.000"), err)
			continue
		}
		records = append(records, r)
	}
	Tracef("export: snapshot=%d capacity=%d records=%d failed=%d",
		len(samples), agg.Capacity, len(records), failed)
	return records
}

func transformOne[R any](t Transformer[R], s Sample, agg Aggregate) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("transform panicked: %v", p)
		}
	}()
	return t.Transform(s, agg)
}
