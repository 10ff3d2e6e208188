// ABOUTME: Tests for the OpenAI narrator against a fake chat completion endpoint.
// ABOUTME: Verifies request shape, reply parsing, and error mapping.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harperreed/medtrack/internal/apperr"
)

type chatRequest struct {
	Model          string `json:"model"`
	MaxTokens      int    `json:"max_tokens"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fakeOpenAI(t *testing.T, status int, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error": {"message": "upstream unavailable", "type": "server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   DefaultOpenAIModel,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAISummarize(t *testing.T) {
	var seen chatRequest
	srv := fakeOpenAI(t, http.StatusOK, `{"summary": "Adherence slipped a little.", "recommendations": ["Use a pill box."]}`, &seen)

	o, err := NewOpenAI("test-key", "", srv.URL+"/v1")
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}

	n, err := o.Summarize(context.Background(), sampleSummary(), "en")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if n.Summary != "Adherence slipped a little." || len(n.Recommendations) != 1 || n.Recommendations[0] != "Use a pill box." {
		t.Errorf("narrative = %+v", n)
	}

	if seen.Model != DefaultOpenAIModel {
		t.Errorf("model = %q, want %q", seen.Model, DefaultOpenAIModel)
	}
	if seen.MaxTokens != MaxTokens {
		t.Errorf("max_tokens = %d, want %d", seen.MaxTokens, MaxTokens)
	}
	if seen.ResponseFormat == nil || seen.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", seen.ResponseFormat)
	}
	if len(seen.Messages) != 2 || seen.Messages[0].Role != "system" || !strings.Contains(seen.Messages[1].Content, "131/86") {
		t.Errorf("messages = %+v", seen.Messages)
	}
}

func TestOpenAIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"empty reply", http.StatusOK, "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeOpenAI(t, tt.status, tt.content, nil)
			o, err := NewOpenAI("test-key", "gpt-4o", srv.URL+"/v1")
			if err != nil {
				t.Fatalf("NewOpenAI failed: %v", err)
			}
			if _, err := o.Summarize(context.Background(), sampleSummary(), "en"); !errors.Is(err, apperr.ErrExternal) {
				t.Errorf("expected external error, got %v", err)
			}
		})
	}

	if _, err := NewOpenAI("", "", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for missing key, got %v", err)
	}
}
