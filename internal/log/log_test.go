package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_WritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)
	logger.Info("vault written", "backend", "file")

	out := buf.String()
	if !strings.Contains(out, "vault written") {
		t.Errorf("expected 'vault written' in output, got %q", out)
	}
	if !strings.Contains(out, "backend=file") {
		t.Errorf("expected 'backend=file' in output, got %q", out)
	}
}

func TestNew_DebugHiddenUnlessVerbose(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Debug("probe detail")
	if buf.Len() != 0 {
		t.Errorf("expected no debug output, got %q", buf.String())
	}

	buf.Reset()
	New(&buf, true).Debug("probe detail")
	if !strings.Contains(buf.String(), "level=DEBUG") {
		t.Errorf("expected DEBUG level in output, got %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	// 不应 panic
	Discard().Warn("ignored")
}
