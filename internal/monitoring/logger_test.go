package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op; this must not panic
	SetLogger(nil)
	Logf("test message")
}

func TestSetOutput(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var buf bytes.Buffer
	SetOutput(&buf)
	Logf("batch %s saved", "b-1")
	if !strings.Contains(buf.String(), "batch b-1 saved") {
		t.Errorf("output = %q, want logged message", buf.String())
	}

	buf.Reset()
	SetOutput(nil)
	Logf("dropped")
	if buf.Len() != 0 {
		t.Errorf("muted logger wrote %q", buf.String())
	}
}
