package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn")
	if err != nil {
		t.Fatal(err)
	}

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "stream").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected info line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "component=") {
		t.Errorf("expected warn line with fields, got %q", out)
	}
}

func TestBadLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestEmptyLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "")
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug().Msg("quiet")
	logger.Info().Msg("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("expected info level by default, got %q", buf.String())
	}
}
