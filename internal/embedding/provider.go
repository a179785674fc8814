/*-------------------------------------------------------------------------
 *
 * SQLScribe - Embedding Providers
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package embedding

import (
	"context"
	"fmt"
)

// Provider defines the interface for embedding generation
type Provider interface {
	// Embed generates an embedding vector for the given text
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimensions returns the number of dimensions in the embedding vector
	Dimensions() int

	// ModelName returns the name of the model being used
	ModelName() string

	// ProviderName returns the name of the provider (e.g., "openai", "ollama", "local")
	ProviderName() string
}

// Config holds configuration for embedding providers
type Config struct {
	Provider string // "openai", "ollama", or "local" (default: local)
	Model    string // Model name (provider-specific)

	// OpenAI-specific
	OpenAIAPIKey string

	// Ollama-specific
	OllamaURL string

	// Local-specific: vector length of the hash-based provider
	Dimensions int
}

// NewProvider creates a new embedding provider based on configuration.
// The returned provider is fully initialized and ready for Embed calls.
//
// When no provider is configured the deterministic local provider is used,
// so the library works without any remote embedding model.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required when provider is 'openai'")
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.Model)

	case "ollama":
		return NewOllamaProvider(cfg.OllamaURL, cfg.Model)

	case "local", "":
		return NewLocalProvider(cfg.Dimensions), nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: openai, ollama, local)", cfg.Provider)
	}
}
