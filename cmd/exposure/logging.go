package main

import (
	"flag"
	"io"

	"github.com/banshee-data/exposure.report/internal/exposure"
)

// streamFlags selects which window log streams reach stderr. The ops
// stream is always on.
type streamFlags struct {
	diag  bool
	trace bool
}

func (s *streamFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&s.diag, "diag", false, "Log out-of-order samples and per-batch saves to stderr")
	fs.BoolVar(&s.trace, "trace", false, "Log every push and export to stderr")
}

func (s streamFlags) writers(stderr io.Writer) exposure.LogWriters {
	w := exposure.LogWriters{Ops: stderr}
	if s.diag {
		w.Diag = stderr
	}
	if s.trace {
		w.Trace = stderr
	}
	return w
}
