package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ChainScope-Agent/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestGenerateSuccess(t *testing.T) {
	var (
		requestPath string
		requestBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [
					{"text": "thinking", "thought": true},
					{"text": "TOOL_CALL: get_address_info\n"},
					{"text": "ARGS: {}\nEND_TOOL_CALL"}
				]},
				"finishReason": "STOP"
			}],
			"modelVersion": "gemini-2.0-flash-001"
		}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := client.Generate(context.Background(), llm.Request{
		System:          "system prompt",
		Messages:        []llm.Message{{Role: llm.RoleUser, Content: "hi"}, {Role: llm.RoleAssistant, Content: "hello"}, {Role: llm.RoleUser, Content: "again"}},
		Temperature:     0.1,
		MaxOutputTokens: 128,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasSuffix(requestPath, "/models/"+defaultModelName+":generateContent") {
		t.Fatalf("unexpected path %q", requestPath)
	}
	if resp.Text != "TOOL_CALL: get_address_info\nARGS: {}\nEND_TOOL_CALL" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.Model != "gemini-2.0-flash-001" {
		t.Fatalf("unexpected model %q", resp.Model)
	}

	contents, ok := requestBody["contents"].([]any)
	if !ok || len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %v", requestBody["contents"])
	}
	if role := contents[1].(map[string]any)["role"]; role != "model" {
		t.Fatalf("assistant message should map to model role, got %v", role)
	}
	if _, ok := requestBody["systemInstruction"]; !ok {
		t.Fatalf("system instruction missing: %v", requestBody)
	}
	generation, _ := requestBody["generationConfig"].(map[string]any)
	if generation["maxOutputTokens"] != float64(128) {
		t.Fatalf("unexpected generation config: %v", generation)
	}
}

func TestGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "quota", "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}); err == nil {
		t.Fatalf("expected error for 429 response")
	}
}

func TestGenerateRequiresMessages(t *testing.T) {
	client, err := NewClient(context.Background(), Config{APIKey: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{}); err == nil {
		t.Fatalf("expected error for empty request")
	}
}

func TestBuildContentsMapsRoles(t *testing.T) {
	contents := buildContents([]llm.Message{
		{Role: llm.RoleUser, Content: "gas price?"},
		{Role: llm.RoleAssistant, Content: "TOOL_CALL: get_gas_price"},
		{Role: llm.RoleUser, Content: "   "},
	})
	if len(contents) != 2 {
		t.Fatalf("expected blank message to be dropped, got %d contents", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Fatalf("unexpected roles: %q, %q", contents[0].Role, contents[1].Role)
	}
	if contents[1].Parts[0].Text != "TOOL_CALL: get_gas_price" {
		t.Fatalf("unexpected text: %q", contents[1].Parts[0].Text)
	}
}
