/*-------------------------------------------------------------------------
 *
 * SQLScribe - Configuration
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete sqlscribe configuration
type Config struct {
	// LLM holds language model settings
	LLM LLMConfig `yaml:"llm"`

	// Embedding holds embedding provider settings
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorStore holds the optional durable knowledge store settings
	VectorStore VectorStoreConfig `yaml:"vectorstore"`

	// Database holds the optional execution database settings
	Database DatabaseConfig `yaml:"database"`

	// Generation holds SQL generation defaults
	Generation GenerationConfig `yaml:"generation"`

	// Chat holds interactive client settings
	Chat ChatConfig `yaml:"chat"`
}

// LLMConfig holds language model settings
type LLMConfig struct {
	Provider            string  `yaml:"provider"`               // "anthropic", "openai", or "ollama"
	Model               string  `yaml:"model"`                  // Provider-specific model name
	AnthropicAPIKey     string  `yaml:"anthropic_api_key"`      // API key (direct - discouraged, use api_key_file or env var)
	AnthropicAPIKeyFile string  `yaml:"anthropic_api_key_file"` // Path to file containing Anthropic API key
	OpenAIAPIKey        string  `yaml:"openai_api_key"`         // API key (direct - discouraged, use api_key_file or env var)
	OpenAIAPIKeyFile    string  `yaml:"openai_api_key_file"`    // Path to file containing OpenAI API key
	OllamaURL           string  `yaml:"ollama_url"`             // URL for Ollama service (default: http://localhost:11434)
	MaxTokens           int     `yaml:"max_tokens"`             // Maximum tokens for LLM response (default: 4096)
	Temperature         float64 `yaml:"temperature"`            // Temperature for LLM sampling (default: 0.2)
}

// EmbeddingConfig holds embedding provider settings
type EmbeddingConfig struct {
	Provider         string `yaml:"provider"`            // "openai", "ollama", or "local" (default: local)
	Model            string `yaml:"model"`               // Provider-specific model name
	OpenAIAPIKey     string `yaml:"openai_api_key"`      // API key (direct - discouraged)
	OpenAIAPIKeyFile string `yaml:"openai_api_key_file"` // Path to file containing OpenAI API key
	OllamaURL        string `yaml:"ollama_url"`          // URL for Ollama service
	Dimensions       int    `yaml:"dimensions"`          // Vector length for the local provider (default: 384)
}

// VectorStoreConfig holds the durable pgvector store settings. When
// Enabled is false the in-memory store is used.
type VectorStoreConfig struct {
	Enabled             bool    `yaml:"enabled"`
	Host                string  `yaml:"host"`                 // Postgres host (default: localhost)
	Port                int     `yaml:"port"`                 // Postgres port (default: 5432)
	User                string  `yaml:"user"`                 // Postgres user
	Password            string  `yaml:"password"`             // Password (optional, SQLSCRIBE_VECTORSTORE_PASSWORD overrides)
	Database            string  `yaml:"database"`             // Database name (default: postgres)
	Schema              string  `yaml:"schema"`               // Schema holding the knowledge tables (default: sqlscribe)
	Dimensions          int     `yaml:"dimensions"`           // Vector column width; must match the embedding provider
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // Retrieval cutoff (default: 0.7)
}

// DatabaseConfig holds the optional execution database used by ask with
// execution enabled
type DatabaseConfig struct {
	Host     string `yaml:"host"`     // Database host (default: localhost)
	Port     int    `yaml:"port"`     // Database port (default: 5432)
	Database string `yaml:"database"` // Database name (default: postgres)
	User     string `yaml:"user"`     // Database user
	Password string `yaml:"password"` // Password (optional, SQLSCRIBE_DB_PASSWORD overrides)
	SSLMode  string `yaml:"sslmode"`  // disable, require, verify-ca, verify-full (default: prefer)
}

// GenerationConfig holds SQL generation defaults
type GenerationConfig struct {
	Dialect           string `yaml:"dialect"`               // Target SQL dialect (default: PostgreSQL)
	AllowLLMToSeeData bool   `yaml:"allow_llm_to_see_data"` // Permit the intermediate-query escalation
	NumQuestions      int    `yaml:"num_questions"`         // Training-data generator batch size (default: 10)
}

// ChatConfig holds interactive client settings
type ChatConfig struct {
	HistoryPath string `yaml:"history_path"` // SQLite conversation history location
}

// LoadConfig builds the effective configuration: defaults, then the
// config file if present, then environment variables
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		fileCfg, err := loadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		mergeConfig(cfg, fileCfg)
	}

	applyEnvironmentVariables(cfg)

	if err := resolveAPIKeyFiles(cfg); err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "anthropic",
			OllamaURL:   "http://localhost:11434",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		Embedding: EmbeddingConfig{
			Provider:   "local",
			OllamaURL:  "http://localhost:11434",
			Dimensions: 384,
		},
		VectorStore: VectorStoreConfig{
			Host:                "localhost",
			Port:                5432,
			Database:            "postgres",
			Schema:              "sqlscribe",
			Dimensions:          384,
			SimilarityThreshold: 0.7,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "postgres",
			SSLMode:  "prefer",
		},
		Generation: GenerationConfig{
			Dialect:      "PostgreSQL",
			NumQuestions: 10,
		},
		Chat: ChatConfig{
			HistoryPath: defaultHistoryPath(),
		},
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sqlscribe-history.db"
	}
	return filepath.Join(home, ".sqlscribe", "history.db")
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// mergeConfig overlays non-zero values from src onto dest
func mergeConfig(dest, src *Config) {
	mergeString(&dest.LLM.Provider, src.LLM.Provider)
	mergeString(&dest.LLM.Model, src.LLM.Model)
	mergeString(&dest.LLM.AnthropicAPIKey, src.LLM.AnthropicAPIKey)
	mergeString(&dest.LLM.AnthropicAPIKeyFile, src.LLM.AnthropicAPIKeyFile)
	mergeString(&dest.LLM.OpenAIAPIKey, src.LLM.OpenAIAPIKey)
	mergeString(&dest.LLM.OpenAIAPIKeyFile, src.LLM.OpenAIAPIKeyFile)
	mergeString(&dest.LLM.OllamaURL, src.LLM.OllamaURL)
	mergeInt(&dest.LLM.MaxTokens, src.LLM.MaxTokens)
	if src.LLM.Temperature != 0 {
		dest.LLM.Temperature = src.LLM.Temperature
	}

	mergeString(&dest.Embedding.Provider, src.Embedding.Provider)
	mergeString(&dest.Embedding.Model, src.Embedding.Model)
	mergeString(&dest.Embedding.OpenAIAPIKey, src.Embedding.OpenAIAPIKey)
	mergeString(&dest.Embedding.OpenAIAPIKeyFile, src.Embedding.OpenAIAPIKeyFile)
	mergeString(&dest.Embedding.OllamaURL, src.Embedding.OllamaURL)
	mergeInt(&dest.Embedding.Dimensions, src.Embedding.Dimensions)

	if src.VectorStore.Enabled {
		dest.VectorStore.Enabled = true
	}
	mergeString(&dest.VectorStore.Host, src.VectorStore.Host)
	mergeInt(&dest.VectorStore.Port, src.VectorStore.Port)
	mergeString(&dest.VectorStore.User, src.VectorStore.User)
	mergeString(&dest.VectorStore.Password, src.VectorStore.Password)
	mergeString(&dest.VectorStore.Database, src.VectorStore.Database)
	mergeString(&dest.VectorStore.Schema, src.VectorStore.Schema)
	mergeInt(&dest.VectorStore.Dimensions, src.VectorStore.Dimensions)
	if src.VectorStore.SimilarityThreshold != 0 {
		dest.VectorStore.SimilarityThreshold = src.VectorStore.SimilarityThreshold
	}

	mergeString(&dest.Database.Host, src.Database.Host)
	mergeInt(&dest.Database.Port, src.Database.Port)
	mergeString(&dest.Database.Database, src.Database.Database)
	mergeString(&dest.Database.User, src.Database.User)
	mergeString(&dest.Database.Password, src.Database.Password)
	mergeString(&dest.Database.SSLMode, src.Database.SSLMode)

	mergeString(&dest.Generation.Dialect, src.Generation.Dialect)
	if src.Generation.AllowLLMToSeeData {
		dest.Generation.AllowLLMToSeeData = true
	}
	mergeInt(&dest.Generation.NumQuestions, src.Generation.NumQuestions)

	mergeString(&dest.Chat.HistoryPath, src.Chat.HistoryPath)
}

func mergeString(dest *string, src string) {
	if src != "" {
		*dest = src
	}
}

func mergeInt(dest *int, src int) {
	if src != 0 {
		*dest = src
	}
}

func applyEnvironmentVariables(cfg *Config) {
	setStringFromEnv(&cfg.LLM.Provider, "SQLSCRIBE_LLM_PROVIDER")
	setStringFromEnv(&cfg.LLM.Model, "SQLSCRIBE_LLM_MODEL")
	setStringFromEnvWithFallback(&cfg.LLM.AnthropicAPIKey, "SQLSCRIBE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	setStringFromEnvWithFallback(&cfg.LLM.OpenAIAPIKey, "SQLSCRIBE_OPENAI_API_KEY", "OPENAI_API_KEY")
	setStringFromEnv(&cfg.LLM.OllamaURL, "SQLSCRIBE_OLLAMA_URL")
	setIntFromEnv(&cfg.LLM.MaxTokens, "SQLSCRIBE_LLM_MAX_TOKENS")
	if val := os.Getenv("SQLSCRIBE_LLM_TEMPERATURE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.LLM.Temperature = f
		}
	}

	setStringFromEnv(&cfg.Embedding.Provider, "SQLSCRIBE_EMBEDDING_PROVIDER")
	setStringFromEnv(&cfg.Embedding.Model, "SQLSCRIBE_EMBEDDING_MODEL")
	setStringFromEnvWithFallback(&cfg.Embedding.OpenAIAPIKey, "SQLSCRIBE_EMBEDDING_OPENAI_API_KEY", "OPENAI_API_KEY")
	setStringFromEnv(&cfg.Embedding.OllamaURL, "SQLSCRIBE_EMBEDDING_OLLAMA_URL")

	setStringFromEnv(&cfg.VectorStore.Password, "SQLSCRIBE_VECTORSTORE_PASSWORD")
	setStringFromEnv(&cfg.Database.Password, "SQLSCRIBE_DB_PASSWORD")
	setStringFromEnv(&cfg.Database.User, "SQLSCRIBE_DB_USER")
}

func setStringFromEnv(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

// setStringFromEnvWithFallback tries keys in order, first non-empty wins
func setStringFromEnvWithFallback(dest *string, keys ...string) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			*dest = val
			return
		}
	}
}

func setIntFromEnv(dest *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dest = n
		}
	}
}

// resolveAPIKeyFiles reads api_key_file paths into the corresponding key
// fields; a directly configured key takes precedence
func resolveAPIKeyFiles(cfg *Config) error {
	pairs := []struct {
		key  *string
		file string
	}{
		{&cfg.LLM.AnthropicAPIKey, cfg.LLM.AnthropicAPIKeyFile},
		{&cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIAPIKeyFile},
		{&cfg.Embedding.OpenAIAPIKey, cfg.Embedding.OpenAIAPIKeyFile},
	}
	for _, p := range pairs {
		if *p.key != "" || p.file == "" {
			continue
		}
		data, err := os.ReadFile(p.file)
		if err != nil {
			return fmt.Errorf("failed to read API key file %s: %w", p.file, err)
		}
		*p.key = strings.TrimSpace(string(data))
	}
	return nil
}

func validateConfig(cfg *Config) error {
	switch cfg.LLM.Provider {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported llm provider: %q (supported: anthropic, openai, ollama)", cfg.LLM.Provider)
	}

	switch cfg.Embedding.Provider {
	case "openai", "ollama", "local", "":
	default:
		return fmt.Errorf("unsupported embedding provider: %q (supported: openai, ollama, local)", cfg.Embedding.Provider)
	}

	if cfg.VectorStore.Enabled && cfg.VectorStore.User == "" {
		return fmt.Errorf("vectorstore.user is required when the durable store is enabled")
	}
	return nil
}

// BuildConnectionString renders the execution database settings as a pgx
// connection string
func (cfg *DatabaseConfig) BuildConnectionString() string {
	parts := []string{
		fmt.Sprintf("host=%s", cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		fmt.Sprintf("dbname=%s", cfg.Database),
	}
	if cfg.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", cfg.User))
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}
	if cfg.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", cfg.SSLMode))
	}
	return strings.Join(parts, " ")
}

// ConfigFileExists reports whether a config file is present at path
func ConfigFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GetDefaultConfigPath returns the conventional config location next to
// the user's home directory
func GetDefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sqlscribe.yaml"
	}
	return filepath.Join(home, ".sqlscribe", "config.yaml")
}
