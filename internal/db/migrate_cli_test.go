package db

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	steps := []struct {
		action string
		want   string
	}{
		{"status", "Current version: 0 (dirty: false)"},
		{"up", "Current version: 1 (dirty: false)"},
		{"status", "Current version: 1 (dirty: false)"},
		{"down", "Current version: 0 (dirty: false)"},
	}
	for _, s := range steps {
		var out bytes.Buffer
		if err := RunMigrateCommand([]string{s.action}, dbPath, &out); err != nil {
			t.Fatalf("migrate %s: %v", s.action, err)
		}
		if !strings.Contains(out.String(), s.want) {
			t.Errorf("migrate %s output = %q, want %q", s.action, out.String(), s.want)
		}
	}
}

func TestRunMigrateCommand_BadAction(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	err := RunMigrateCommand([]string{"sideways"}, dbPath, &out)
	if !errors.Is(err, ErrUnknownMigrateAction) {
		t.Errorf("err = %v, want ErrUnknownMigrateAction", err)
	}
	if !strings.Contains(out.String(), "Usage: exposure migrate") {
		t.Errorf("help not printed: %q", out.String())
	}

	if err := RunMigrateCommand(nil, dbPath, &out); !errors.Is(err, ErrUnknownMigrateAction) {
		t.Errorf("no action: err = %v", err)
	}
	if err := RunMigrateCommand([]string{"help"}, dbPath, &out); err != nil {
		t.Errorf("help: err = %v", err)
	}
}
