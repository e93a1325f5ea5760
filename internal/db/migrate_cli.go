package db

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnknownMigrateAction is returned for migrate actions other than
// up, down, status and help.
var ErrUnknownMigrateAction = errors.New("unknown migrate action")

// RunMigrateCommand handles the 'migrate' subcommand against dbPath.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("%w: none given", ErrUnknownMigrateAction)
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(out)
		return nil
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		fmt.Fprintln(out, "✓ All migrations applied successfully")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		fmt.Fprintln(out, "✓ Migration rolled back successfully")
	case "status":
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("%w: %s", ErrUnknownMigrateAction, action)
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("get migration status: %w", err)
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		fmt.Fprintln(out, "WARNING: database is dirty; a migration failed mid-execution.")
	}
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: exposure migrate [-db path] <action>

Actions:
  up       Apply all pending migrations
  down     Roll back one migration
  status   Show the current schema version
  help     Show this help
`)
}
