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
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	// DefaultLocalDimensions is the vector length of the local provider
	DefaultLocalDimensions = 384
)

// LocalProvider is a deterministic, offline embedding provider. It hashes
// word and character-trigram features into a fixed-length vector and
// L2-normalizes the result. Texts sharing vocabulary land near each other,
// which is enough for the knowledge store's similarity ranking when no
// remote embedding model is configured.
type LocalProvider struct {
	dimensions int
}

// NewLocalProvider creates a local hash-based embedding provider.
// A non-positive dimensions value selects the default of 384.
func NewLocalProvider(dimensions int) *LocalProvider {
	if dimensions <= 0 {
		dimensions = DefaultLocalDimensions
	}
	return &LocalProvider{dimensions: dimensions}
}

// Embed generates a deterministic embedding vector for the given text
func (p *LocalProvider) Embed(_ context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	vector := make([]float64, p.dimensions)

	for _, word := range tokenize(text) {
		addFeature(vector, word, 1.0)

		// Character trigrams give partial-word overlap a signal
		runes := []rune(word)
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(vector, "tri:"+string(runes[i:i+3]), 0.5)
		}
	}

	// L2-normalize so cosine similarity reduces to a dot product
	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vector {
			vector[i] /= norm
		}
	}

	return vector, nil
}

// addFeature hashes a feature into a bucket; one hash bit picks the sign
// so unrelated features cancel instead of accumulating
func addFeature(vector []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(len(vector)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vector[bucket] += weight
}

// tokenize splits text into lowercase alphanumeric words
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Dimensions returns the configured vector length
func (p *LocalProvider) Dimensions() int {
	return p.dimensions
}

// ModelName returns "hash-v1"
func (p *LocalProvider) ModelName() string {
	return "hash-v1"
}

// ProviderName returns "local"
func (p *LocalProvider) ProviderName() string {
	return "local"
}
