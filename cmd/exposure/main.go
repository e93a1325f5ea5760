// Command exposure replays recorded view frame slices through an exposure
// window, persists the exported track events, and serves timeline charts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/exposure.report/internal/db"
	"github.com/banshee-data/exposure.report/internal/version"
)

const defaultDBPath = "exposure.db"

func usage(out io.Writer) {
	fmt.Fprint(out, `Usage: exposure <command> [flags]

Commands:
  replay    Push a JSON-lines slice recording through a window and export it
  serve     Serve the ingest API, timeline charts and SQL debug UI
  migrate   Manage the database schema (up, down, status)
  version   Print build information

Run 'exposure <command> -h' for command flags.
`)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("exposure: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		usage(stderr)
		return errors.New("missing command")
	}

	switch args[0] {
	case "replay":
		return runReplay(ctx, args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "migrate":
		fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
		fs.SetOutput(stderr)
		dbPath := fs.String("db", defaultDBPath, "Path to the sqlite database")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return db.RunMigrateCommand(fs.Args(), *dbPath, stdout)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}
