// Package security guards file paths that come from command-line flags and
// exposure identifiers before anything is written to disk.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapes is returned when a path resolves outside every allowed
// directory.
var ErrPathEscapes = errors.New("path escapes allowed directories")

// canonical resolves symlinks on the deepest existing ancestor of path and
// rejoins the non-existent remainder.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	existing, rest := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

// within reports whether path lies inside dir after symlink resolution.
func within(path, dir string) (bool, error) {
	p, err := canonical(path)
	if err != nil {
		return false, err
	}
	d, err := canonical(dir)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return false, nil
	}
	escapes := rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
	return !escapes, nil
}

// ValidateOutputPath checks that path is inside one of allowedDirs. With no
// allowedDirs the working directory and the temp directory are allowed.
func ValidateOutputPath(path string, allowedDirs ...string) error {
	if path == "" {
		return errors.New("empty output path")
	}
	if len(allowedDirs) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		allowedDirs = []string{cwd, os.TempDir()}
	}
	for _, dir := range allowedDirs {
		ok, err := within(path, dir)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not within %v", ErrPathEscapes, path, allowedDirs)
}

// SanitizeFilename maps an exposure ID or title to a safe file name stem.
// Runs of characters outside [A-Za-z0-9._-] become one underscore and the
// result is capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-'
		if !ok {
			pendingUnderscore = true
			continue
		}
		if pendingUnderscore && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingUnderscore = false
		if b.Len() >= maxLen {
			break
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	if out == "" {
		return "unknown"
	}
	return out
}
