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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sqlscribe/internal/logging"
)

const (
	// RoleSystem tags instructions and injected context
	RoleSystem = "system"
	// RoleUser tags questions and worked-example questions
	RoleUser = "user"
	// RoleAssistant tags worked-example answers
	RoleAssistant = "assistant"

	// DefaultMaxTokens is the maximum output tokens requested per completion
	DefaultMaxTokens = 4096
	// DefaultTemperature is the sampling temperature for SQL generation
	DefaultTemperature = 0.2

	// HTTPTimeout is the HTTP client timeout for chat completion requests
	HTTPTimeout = 120 * time.Second
)

// Message is one role-tagged entry in a prompt sequence
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the chat completion capability: given a sequence of role-tagged
// messages, return the model's text response.
type Client interface {
	SubmitPrompt(ctx context.Context, messages []Message) (string, error)

	// ModelName returns the name of the model being used
	ModelName() string
}

// Config holds configuration for chat completion clients
type Config struct {
	Provider string // "anthropic", "openai", or "ollama"
	Model    string // Provider-specific model name

	AnthropicAPIKey string
	OpenAIAPIKey    string
	OllamaURL       string

	MaxTokens   int     // Maximum output tokens (default: 4096)
	Temperature float64 // Sampling temperature (default: 0.2)
}

// NewClient creates a chat completion client based on configuration
func NewClient(cfg Config) (Client, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}

	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key is required when provider is 'anthropic'")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
		return &anthropicClient{
			apiKey:      cfg.AnthropicAPIKey,
			model:       model,
			baseURL:     "https://api.anthropic.com/v1",
			maxTokens:   cfg.MaxTokens,
			temperature: cfg.Temperature,
			client:      &http.Client{Timeout: HTTPTimeout},
		}, nil

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required when provider is 'openai'")
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return &openaiClient{
			apiKey:      cfg.OpenAIAPIKey,
			model:       model,
			baseURL:     "https://api.openai.com/v1",
			maxTokens:   cfg.MaxTokens,
			temperature: cfg.Temperature,
			client:      &http.Client{Timeout: HTTPTimeout},
		}, nil

	case "ollama":
		baseURL := cfg.OllamaURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "llama3.1"
		}
		// Ollama exposes an OpenAI-compatible chat completions endpoint
		return &openaiClient{
			model:       model,
			baseURL:     strings.TrimSuffix(baseURL, "/") + "/v1",
			maxTokens:   cfg.MaxTokens,
			temperature: cfg.Temperature,
			client:      &http.Client{Timeout: HTTPTimeout},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: anthropic, openai, ollama)", cfg.Provider)
	}
}

// anthropicClient implements Client for the Anthropic Messages API
type anthropicClient struct {
	apiKey      string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	client      *http.Client
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *anthropicClient) ModelName() string {
	return c.model
}

func (c *anthropicClient) SubmitPrompt(ctx context.Context, messages []Message) (string, error) {
	// The Messages API takes system instructions as a top-level field,
	// not as a message role
	var system strings.Builder
	chat := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
			continue
		}
		chat = append(chat, msg)
	}
	if len(chat) == 0 {
		return "", fmt.Errorf("prompt contains no user or assistant messages")
	}

	req := anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      system.String(),
		Messages:    chat,
		Temperature: c.temperature,
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewBuffer(reqData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("API error %d (failed to read body: %w)", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var anthResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anthResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range anthResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}

	logging.Debug("chat completion",
		"provider", "anthropic",
		"model", c.model,
		"messages", len(messages),
		"duration_ms", time.Since(start).Milliseconds())

	return text.String(), nil
}

// openaiClient implements Client for OpenAI-compatible chat completion
// endpoints (OpenAI itself and Ollama's /v1 API)
type openaiClient struct {
	apiKey      string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	client      *http.Client
}

type openaiChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type openaiChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

func (c *openaiClient) ModelName() string {
	return c.model
}

func (c *openaiClient) SubmitPrompt(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("prompt contains no messages")
	}

	req := openaiChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      false,
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("API error %d (failed to read body: %w)", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var chatResp openaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	logging.Debug("chat completion",
		"provider", "openai-compatible",
		"model", c.model,
		"messages", len(messages),
		"duration_ms", time.Since(start).Milliseconds())

	return chatResp.Choices[0].Message.Content, nil
}
