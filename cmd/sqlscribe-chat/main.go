/*-------------------------------------------------------------------------
 *
 * SQLScribe - Interactive Chat Client
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sqlscribe/internal/chat"
	"sqlscribe/internal/config"
	"sqlscribe/internal/database"
	"sqlscribe/internal/embedding"
	"sqlscribe/internal/engine"
	"sqlscribe/internal/knowledge"
	"sqlscribe/internal/llm"
)

const version = "1.0.0-alpha1"

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	execute := flag.Bool("execute", false, "Run generated SQL against the configured database")
	noHistory := flag.Bool("no-history", false, "Do not persist the conversation history")
	flag.Parse()

	if *showVersion {
		fmt.Printf("SQLScribe Chat Client v%s\n", version)
		return
	}

	if err := run(*configFile, *execute, *noHistory); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, execute, noHistory bool) error {
	path := configFile
	if path == "" {
		path = config.GetDefaultConfigPath()
		if !config.ConfigFileExists(path) {
			path = ""
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	var store knowledge.Store
	if cfg.VectorStore.Enabled {
		pgStore := knowledge.NewPgvectorStore(knowledge.PgvectorConfig{
			Host:                cfg.VectorStore.Host,
			Port:                cfg.VectorStore.Port,
			User:                cfg.VectorStore.User,
			Password:            cfg.VectorStore.Password,
			Database:            cfg.VectorStore.Database,
			SchemaName:          cfg.VectorStore.Schema,
			Dimensions:          cfg.VectorStore.Dimensions,
			SimilarityThreshold: cfg.VectorStore.SimilarityThreshold,
		})
		if err := pgStore.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to vector store: %w", err)
		}
		defer pgStore.Close()
		if err := pgStore.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize vector store: %w", err)
		}
		store = pgStore
	} else {
		store = knowledge.NewMemoryStore()
	}

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		OpenAIAPIKey: cfg.Embedding.OpenAIAPIKey,
		OllamaURL:    cfg.Embedding.OllamaURL,
		Dimensions:   cfg.Embedding.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}

	model, err := llm.NewClient(llm.Config{
		Provider:        cfg.LLM.Provider,
		Model:           cfg.LLM.Model,
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.LLM.OpenAIAPIKey,
		OllamaURL:       cfg.LLM.OllamaURL,
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	var runSQL engine.RunSQLFunc
	if execute {
		if cfg.Database.User == "" {
			return fmt.Errorf("database.user is required to execute queries")
		}
		dbCfg := cfg.Database
		if dbCfg.Password == "" {
			password, err := chat.ReadPassword(fmt.Sprintf("Password for %s@%s: ", dbCfg.User, dbCfg.Host))
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			dbCfg.Password = password
		}
		runner, err := database.Connect(ctx, dbCfg.BuildConnectionString())
		if err != nil {
			return err
		}
		defer runner.Close()
		runSQL = runner.RunSQL
	}

	eng, err := engine.New(engine.Config{
		Store:    store,
		Embedder: embedder,
		Model:    model,
		RunSQL:   runSQL,
		Dialect:  cfg.Generation.Dialect,
	})
	if err != nil {
		return err
	}

	var history *chat.History
	if !noHistory && cfg.Chat.HistoryPath != "" {
		history, err = chat.OpenHistory(cfg.Chat.HistoryPath)
		if err != nil {
			// History is a convenience; run without it rather than fail
			fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
		} else {
			defer history.Close()
		}
	}

	client := chat.NewClient(eng, history)
	return client.Run(ctx, model.ModelName())
}
