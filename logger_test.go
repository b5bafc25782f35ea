package eduwire

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestSimpleLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := &SimpleLogger{logger: log.New(&buf, "", 0)}

	logger.Info("request completed", "method", "GET", "status", 200)

	got := strings.TrimSpace(buf.String())
	want := "INFO request completed method=GET status=200"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSimpleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := &SimpleLogger{logger: log.New(&buf, "", 0)}

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	out := buf.String()
	for _, level := range []string{"DEBUG d", "INFO i", "WARN w", "ERROR e"} {
		if !strings.Contains(out, level) {
			t.Errorf("output missing %q:\n%s", level, out)
		}
	}
}

func TestSimpleLoggerOddPairs(t *testing.T) {
	var buf bytes.Buffer
	logger := &SimpleLogger{logger: log.New(&buf, "", 0)}

	// A dangling key must not panic and is dropped.
	logger.Info("msg", "key")

	got := strings.TrimSpace(buf.String())
	if got != "INFO msg" {
		t.Errorf("got %q", got)
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	config := DefaultDebugConfig()

	if config.Enabled {
		t.Error("debug must be off until explicitly enabled")
	}
	if !config.LogRequests || !config.LogRetries || !config.LogCache || !config.LogCircuit || !config.LogRefresh {
		t.Error("all concerns must be on once debug is enabled")
	}
	if config.RequestIDGen == nil {
		t.Fatal("expected a default request ID generator")
	}
}

func TestDefaultRequestIDGenerator(t *testing.T) {
	a := DefaultRequestIDGenerator()
	b := DefaultRequestIDGenerator()

	if len(a) != 8 {
		t.Errorf("expected an 8-character ID, got %q", a)
	}
	if a == b {
		t.Error("consecutive IDs must differ")
	}
}
