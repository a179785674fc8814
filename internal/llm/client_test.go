/*-------------------------------------------------------------------------
 *
 * SQLScribe - LLM Chat Clients
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	t.Run("anthropic requires API key", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "anthropic"})
		if err == nil {
			t.Fatal("expected error for missing API key")
		}
	})

	t.Run("openai requires API key", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "openai"})
		if err == nil {
			t.Fatal("expected error for missing API key")
		}
	})

	t.Run("ollama defaults", func(t *testing.T) {
		client, err := NewClient(Config{Provider: "ollama"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		oc, ok := client.(*openaiClient)
		if !ok {
			t.Fatalf("expected openaiClient for ollama, got %T", client)
		}
		if oc.baseURL != "http://localhost:11434/v1" {
			t.Errorf("unexpected base URL %q", oc.baseURL)
		}
		if oc.model != "llama3.1" {
			t.Errorf("unexpected default model %q", oc.model)
		}
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "bedrock"})
		if err == nil {
			t.Fatal("expected error for unsupported provider")
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		client, err := NewClient(Config{Provider: "anthropic", AnthropicAPIKey: "sk-test"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ac := client.(*anthropicClient)
		if ac.maxTokens != DefaultMaxTokens {
			t.Errorf("expected default max tokens %d, got %d", DefaultMaxTokens, ac.maxTokens)
		}
		if ac.temperature != DefaultTemperature {
			t.Errorf("expected default temperature %v, got %v", DefaultTemperature, ac.temperature)
		}
	})
}

func TestAnthropicClient_SubmitPrompt(t *testing.T) {
	var captured anthropicRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("expected path /messages, got %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-test" {
			t.Errorf("expected api key header, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"SELECT 1;"}]}`)); err != nil {
			t.Fatalf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := &anthropicClient{
		apiKey:      "sk-test",
		model:       "claude-test",
		baseURL:     server.URL,
		maxTokens:   256,
		temperature: 0.1,
		client:      server.Client(),
	}

	messages := []Message{
		{Role: RoleSystem, Content: "You generate SQL."},
		{Role: RoleUser, Content: "count users"},
		{Role: RoleAssistant, Content: "SELECT COUNT(*) FROM users;"},
		{Role: RoleUser, Content: "how many users signed up today"},
	}

	text, err := client.SubmitPrompt(context.Background(), messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "SELECT 1;" {
		t.Errorf("unexpected response text %q", text)
	}

	// System message must be lifted out of the message list
	if captured.System != "You generate SQL." {
		t.Errorf("expected system field, got %q", captured.System)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 chat messages, got %d", len(captured.Messages))
	}
	for _, msg := range captured.Messages {
		if msg.Role == RoleSystem {
			t.Error("system role must not appear in the messages array")
		}
	}
}

func TestAnthropicClient_OnlySystemMessages(t *testing.T) {
	client := &anthropicClient{apiKey: "k", model: "m", baseURL: "http://invalid", client: http.DefaultClient}

	_, err := client.SubmitPrompt(context.Background(), []Message{{Role: RoleSystem, Content: "x"}})
	if err == nil {
		t.Fatal("expected error when prompt has no user messages")
	}
}

func TestOpenAIClient_SubmitPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("expected bearer token, got %q", got)
		}

		var req openaiChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(req.Messages))
		}

		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"c1","model":"gpt-test","choices":[{"index":0,"message":{"role":"assistant","content":"SELECT COUNT(*) FROM users;"},"finish_reason":"stop"}]}`)); err != nil {
			t.Fatalf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := &openaiClient{
		apiKey:      "sk-test",
		model:       "gpt-test",
		baseURL:     server.URL,
		maxTokens:   256,
		temperature: 0.1,
		client:      server.Client(),
	}

	text, err := client.SubmitPrompt(context.Background(), []Message{
		{Role: RoleSystem, Content: "You generate SQL."},
		{Role: RoleUser, Content: "count users"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "SELECT COUNT(*) FROM users;" {
		t.Errorf("unexpected response text %q", text)
	}
}

func TestOpenAIClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		if _, err := w.Write([]byte(`{"error":"rate limited"}`)); err != nil {
			t.Fatalf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := &openaiClient{model: "m", baseURL: server.URL, client: server.Client()}

	_, err := client.SubmitPrompt(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if err == nil {
		t.Fatal("expected error for API error response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status code in error, got %v", err)
	}
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{"id":"c1","choices":[]}`)); err != nil {
			t.Fatalf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := &openaiClient{model: "m", baseURL: server.URL, client: server.Client()}

	_, err := client.SubmitPrompt(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}
