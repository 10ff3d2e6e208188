// ABOUTME: Tests for the application error taxonomy.
// ABOUTME: Covers errors.Is matching, unwrapping, KindOf, and zerolog rendering.
package apperr

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestIsMatchesKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"validation", Validationf("schedule.generate", "bad time"), ErrValidation, true},
		{"not found", NotFound("dose.mark_taken", "dose log", "abc"), ErrNotFound, true},
		{"conflict", StateConflict("dose.mark_taken", "already taken"), ErrStateConflict, true},
		{"external", External("narrative", errors.New("timeout")), ErrExternal, true},
		{"kind mismatch", NotFound("x", "dose log", "abc"), ErrStateConflict, false},
		{"wrapped", fmt.Errorf("outer: %w", StateConflict("x", "y")), ErrStateConflict, true},
		{"code mismatch", StateConflict("x", "y").WithCode("taken"), &Error{Kind: KindStateConflict, Code: "skipped"}, false},
		{"code match", StateConflict("x", "y").WithCode("taken"), &Error{Kind: KindStateConflict, Code: "taken"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("storage.query", cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q, should include cause", err.Error())
	}
	if !strings.HasPrefix(err.Error(), "storage.query: ") {
		t.Errorf("Error() = %q, should start with op", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("wrap: %w", Validationf("op", "bad"))); got != KindValidation {
		t.Errorf("KindOf = %s, want validation", got)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %s, want internal", got)
	}
}

func TestMessage(t *testing.T) {
	err := Validation("medication.create", errors.New("dosage must be positive"))
	if got := Message(err); got != "dosage must be positive" {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(StateConflict("dose", "dose already taken")); got != "dose already taken" {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(errors.New("boom")); got != "boom" {
		t.Errorf("Message() = %q", got)
	}
}

func TestMarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	err := NotFound("dose.mark_taken", "dose log", "1234")
	logger.Error().Object("error", err).Msg("failed")

	out := buf.String()
	for _, want := range []string{`"kind":"not_found"`, `"op":"dose.mark_taken"`, `"id":"1234"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
}
