package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/exposure.report/internal/config"
	"github.com/banshee-data/exposure.report/internal/db"
	"github.com/banshee-data/exposure.report/internal/exposure"
	"github.com/banshee-data/exposure.report/internal/monitor"
	"github.com/banshee-data/exposure.report/internal/monitoring"
	"github.com/banshee-data/exposure.report/internal/security"
	"github.com/banshee-data/exposure.report/internal/stats"
	"github.com/banshee-data/exposure.report/internal/viewframe"
)

type replayOptions struct {
	configPath  string
	inPath      string
	dbPath      string
	pngPath     string
	htmlPath    string
	exposureID  string
	exportEvery int
	streams     streamFlags
}

func parseReplayFlags(args []string, stderr io.Writer) (*replayOptions, error) {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &replayOptions{}
	fs.StringVar(&o.configPath, "config", "", "Window config JSON (defaults built in when empty)")
	fs.StringVar(&o.inPath, "in", "", "JSON-lines slice recording, '-' for stdin")
	fs.StringVar(&o.dbPath, "db", "", "Persist exported batches to this sqlite database")
	fs.StringVar(&o.pngPath, "png", "", "Write a timeline plot of the last export (png, svg or pdf)")
	fs.StringVar(&o.htmlPath, "html", "", "Write an HTML timeline chart of the last export")
	fs.StringVar(&o.exposureID, "exposure-id", "", "Exposure ID to record batches under (random when empty)")
	fs.IntVar(&o.exportEvery, "export-every", 0, "Also export after every N pushes (0 exports once at the end)")
	o.streams.register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.inPath == "" {
		return nil, errors.New("replay: -in is required")
	}
	if o.exportEvery < 0 {
		return nil, fmt.Errorf("replay: -export-every must be >= 0, got %d", o.exportEvery)
	}
	for _, p := range []string{o.pngPath, o.htmlPath} {
		if p == "" {
			continue
		}
		if err := security.ValidateOutputPath(p); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
	}
	return o, nil
}

func loadConfig(path string) (*config.WindowConfig, error) {
	if path == "" {
		return config.DefaultWindowConfig(), nil
	}
	return config.LoadWindowConfig(path)
}

func readRecording(path string) ([]*viewframe.Slice, error) {
	if path == "-" {
		return viewframe.ReadSlices(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return viewframe.ReadSlices(f)
}

func runReplay(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseReplayFlags(args, stderr)
	if err != nil {
		return err
	}
	exposure.SetLogWriters(opts.streams.writers(stderr))

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	ts, err := stats.NewTrackEventStats(cfg.GetFieldMap())
	if err != nil {
		return fmt.Errorf("field_map: %w", err)
	}
	slices, err := readRecording(opts.inPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.inPath, err)
	}

	var sink exposure.BatchSink[*structpb.Struct]
	if opts.dbPath != "" {
		database, err := db.NewDB(opts.dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		sink = db.NewBatchStore(database, nil)
	}

	w := cfg.NewWindow()
	id := opts.exposureID
	if id == "" {
		id = uuid.New().String()
	}

	var (
		last    []*structpb.Struct
		batches int
	)
	export := func() error {
		records := exposure.Export[*structpb.Struct](w, ts)
		if len(records) == 0 {
			return nil
		}
		last = records
		batches++
		if sink == nil {
			return nil
		}
		batchID, err := sink.SaveBatch(ctx, id, records)
		if err != nil {
			return err
		}
		monitoring.Logf("replay: saved batch %s (%d records)", batchID, len(records))
		return nil
	}

	for i, s := range slices {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.Push(s)
		if opts.exportEvery > 0 && (i+1)%opts.exportEvery == 0 {
			if err := export(); err != nil {
				return err
			}
		}
	}
	if opts.exportEvery == 0 || len(slices)%opts.exportEvery != 0 {
		if err := export(); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "exposure %s: slices=%d batches=%d\n", id, len(slices), batches)
	fmt.Fprintf(stdout, "window: %s\n", w)
	fmt.Fprintf(stdout, "last batch: %s\n", ts.Summarize(last))

	points := monitor.TimelinePoints(last, ts)
	title := fmt.Sprintf("Exposure %s", id)
	if opts.pngPath != "" {
		if err := monitor.SaveTimelinePNG(opts.pngPath, title, points); err != nil {
			return err
		}
	}
	if opts.htmlPath != "" {
		if err := writeHTML(opts.htmlPath, title, points); err != nil {
			return err
		}
	}
	return nil
}

func writeHTML(path, title string, points []monitor.Point) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := monitor.RenderTimelineHTML(f, title, points); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
