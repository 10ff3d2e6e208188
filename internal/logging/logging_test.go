// ABOUTME: Tests for logger construction.
// ABOUTME: Verifies level filtering and JSON output.
package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewJSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Format: "json", Out: &buf})

	logger.Info().Msg("hidden")
	logger.Warn().Str("medication", "aspirin").Msg("low stock")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"medication":"aspirin"`) {
		t.Errorf("expected structured field in output: %s", out)
	}
	if !strings.Contains(out, `"time"`) {
		t.Errorf("expected timestamp in output: %s", out)
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "nonsense", Format: "json", Out: &buf})

	logger.Debug().Msg("debug line")
	logger.Info().Msg("info line")

	out := buf.String()
	if strings.Contains(out, "debug line") {
		t.Error("debug should be filtered by default")
	}
	if !strings.Contains(out, "info line") {
		t.Error("info should be logged by default")
	}
}
