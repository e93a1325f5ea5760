package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/exposure.report/internal/db"
	"github.com/banshee-data/exposure.report/internal/exposure"
	"github.com/banshee-data/exposure.report/internal/monitor"
	"github.com/banshee-data/exposure.report/internal/stats"
	"github.com/banshee-data/exposure.report/internal/version"
)

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	listen := fs.String("listen", ":8080", "Listen address")
	dbPath := fs.String("db", defaultDBPath, "Path to the sqlite database")
	configPath := fs.String("config", "", "Window config JSON (defaults built in when empty)")
	var streams streamFlags
	streams.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return errors.New("serve: listen address is required")
	}
	exposure.SetLogWriters(streams.writers(stderr))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	ts, err := stats.NewTrackEventStats(cfg.GetFieldMap())
	if err != nil {
		return fmt.Errorf("field_map: %w", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	store := db.NewBatchStore(database, nil)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := exposure.NewRegistry()
	reporter := exposure.NewReporter[*structpb.Struct](registry, ts, store, nil, cfg.GetReportInterval())

	mux := http.NewServeMux()
	newIngestAPI(cfg, registry, ts, store).Register(mux)
	monitor.NewHandler(store, ts).Register(mux)
	database.AttachAdminRoutes(mux)

	server := &http.Server{Addr: *listen, Handler: mux}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := reporter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("reporter stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("failed to shut down HTTP server: %v", err)
		}
	}()

	log.Printf("%s listening on %s (policy=%s report_interval=%s)",
		version.String(), *listen, cfg.GetTrackPolicy(), cfg.GetReportInterval())
	err = server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	cancel()
	wg.Wait()

	// Flush whatever the last tick missed.
	if n, ferr := reporter.ReportOnce(context.Background()); ferr != nil {
		log.Printf("final report: %v", ferr)
	} else if n > 0 {
		log.Printf("final report saved %d batches", n)
	}
	return err
}
