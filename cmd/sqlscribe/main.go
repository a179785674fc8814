/*-------------------------------------------------------------------------
 *
 * SQLScribe - Command Line Interface
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sqlscribe/internal/chat"
	"sqlscribe/internal/config"
	"sqlscribe/internal/database"
	"sqlscribe/internal/docconv"
	"sqlscribe/internal/embedding"
	"sqlscribe/internal/engine"
	"sqlscribe/internal/knowledge"
	"sqlscribe/internal/llm"
	"sqlscribe/internal/schema"
)

var (
	configFile string

	// ask flags
	askExecute     bool
	askExplain     bool
	askFormat      string
	askNoAutoTrain bool
	askSeeData     bool

	// train flags
	trainQuestion string
	trainSQL      string
	trainDDL      string
	trainDDLFile  string
	trainDocText  string
	trainDocFile  string
	trainPlanFile string

	// generate flags
	genQuestions  int
	genCategories []string

	// export/import/schema flags
	outputFile   string
	schemaFormat string
)

var rootCmd = &cobra.Command{
	Use:   "sqlscribe",
	Short: "SQLScribe - Generate SQL from natural language questions",
	Long: `sqlscribe turns plain-language questions into SQL using a trained
knowledge store of schema definitions, documentation, and confirmed
question/SQL pairs.

Train it with your schema and past queries, then ask questions. With a
pgvector-backed store (vectorstore.enabled in the config file) the
knowledge persists across runs; without one, use export and import to
carry knowledge between sessions.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Path to configuration file (default: ~/.sqlscribe/config.yaml)")

	askCmd.Flags().BoolVar(&askExecute, "execute", false,
		"Run the generated SQL against the configured database")
	askCmd.Flags().BoolVar(&askExplain, "explain", false,
		"Ask the model for an explanation alongside the SQL")
	askCmd.Flags().StringVar(&askFormat, "format", "sql",
		"Output format: sql or orm")
	askCmd.Flags().BoolVar(&askNoAutoTrain, "no-auto-train", false,
		"Do not store the question/SQL pair after a successful execution")
	askCmd.Flags().BoolVar(&askSeeData, "allow-see-data", false,
		"Permit the model to run an exploratory query against your data")

	trainCmd.Flags().StringVar(&trainQuestion, "question", "", "Natural language question (requires --sql)")
	trainCmd.Flags().StringVar(&trainSQL, "sql", "", "SQL paired with --question (question is synthesized if omitted)")
	trainCmd.Flags().StringVar(&trainDDL, "ddl", "", "Schema definition statement")
	trainCmd.Flags().StringVar(&trainDDLFile, "ddl-file", "", "File containing schema definitions")
	trainCmd.Flags().StringVar(&trainDocText, "doc", "", "Documentation text")
	trainCmd.Flags().StringVar(&trainDocFile, "doc-file", "", "Documentation file (markdown, HTML, or plain text)")
	trainCmd.Flags().StringVar(&trainPlanFile, "plan", "", "Training plan file (YAML or JSON)")

	generateCmd.Flags().IntVarP(&genQuestions, "num-questions", "n", 0,
		"Number of question/SQL pairs to generate (default from config)")
	generateCmd.Flags().StringSliceVar(&genCategories, "categories", nil,
		"Categories to generate: basic, joins, analytics (default: all)")

	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to file instead of stdout")
	schemaCmd.Flags().StringVar(&schemaFormat, "format", "markdown", "Output format: markdown or json")
	schemaCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to file instead of stdout")

	rootCmd.AddCommand(askCmd, trainCmd, generateCmd, exportCmd, importCmd,
		statsCmd, clearCmd, removeCmd, schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.GetDefaultConfigPath()
		if !config.ConfigFileExists(path) {
			// No config file is fine; defaults and env vars apply
			path = ""
		}
	}
	return config.LoadConfig(path)
}

// buildStore creates the knowledge store named by the config: the durable
// pgvector store when enabled, otherwise the in-memory store. The cleanup
// function is safe to call for either.
func buildStore(ctx context.Context, cfg *config.Config) (knowledge.Store, func(), error) {
	if !cfg.VectorStore.Enabled {
		return knowledge.NewMemoryStore(), func() {}, nil
	}

	store := knowledge.NewPgvectorStore(knowledge.PgvectorConfig{
		Host:                cfg.VectorStore.Host,
		Port:                cfg.VectorStore.Port,
		User:                cfg.VectorStore.User,
		Password:            cfg.VectorStore.Password,
		Database:            cfg.VectorStore.Database,
		SchemaName:          cfg.VectorStore.Schema,
		Dimensions:          cfg.VectorStore.Dimensions,
		SimilarityThreshold: cfg.VectorStore.SimilarityThreshold,
	})
	if err := store.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to vector store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	return store, store.Close, nil
}

// buildEngine wires the store, embedding provider, and model into an
// engine. runSQL may be nil for commands that never execute queries.
func buildEngine(ctx context.Context, cfg *config.Config, runSQL engine.RunSQLFunc) (*engine.Engine, func(), error) {
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		OpenAIAPIKey: cfg.Embedding.OpenAIAPIKey,
		OllamaURL:    cfg.Embedding.OllamaURL,
		Dimensions:   cfg.Embedding.Dimensions,
	})
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("failed to create embedding provider: %w", err)
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
		closeStore()
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Store:    store,
		Embedder: embedder,
		Model:    model,
		RunSQL:   runSQL,
		Dialect:  cfg.Generation.Dialect,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return eng, closeStore, nil
}

// connectRunner opens the execution database, prompting for a password
// when the config leaves it empty and stdin is a terminal
func connectRunner(ctx context.Context, cfg *config.Config) (*database.Runner, error) {
	dbCfg := cfg.Database
	if dbCfg.User == "" {
		return nil, fmt.Errorf("database.user is required to execute queries")
	}
	if dbCfg.Password == "" {
		password, err := chat.ReadPassword(fmt.Sprintf("Password for %s@%s: ", dbCfg.User, dbCfg.Host))
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		dbCfg.Password = password
	}
	return database.Connect(ctx, dbCfg.BuildConnectionString())
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Generate SQL for a natural language question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var runSQL engine.RunSQLFunc
		if askExecute {
			runner, err := connectRunner(ctx, cfg)
			if err != nil {
				return err
			}
			defer runner.Close()
			runSQL = runner.RunSQL
		}

		eng, cleanup, err := buildEngine(ctx, cfg, runSQL)
		if err != nil {
			return err
		}
		defer cleanup()

		question := strings.Join(args, " ")
		result, err := eng.Ask(ctx, question, engine.AskOptions{
			DisableAutoTrain:  askNoAutoTrain,
			AllowLLMToSeeData: askSeeData || cfg.Generation.AllowLLMToSeeData,
			WithExplanation:   askExplain,
			OutputFormat:      askFormat,
		})
		if err != nil {
			return err
		}

		fmt.Println(result.SQL)
		if result.Explanation != "" {
			fmt.Printf("\n%s\n", result.Explanation)
		}
		if result.ORMCode != "" {
			fmt.Printf("\n%s\n", result.ORMCode)
		}
		if result.Results != nil {
			out, err := json.MarshalIndent(result.Results, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format results: %w", err)
			}
			fmt.Printf("\n%s\n", out)
		}
		return nil
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Add schema, documentation, or question/SQL pairs to the knowledge store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		eng, cleanup, err := buildEngine(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		req, err := buildTrainRequest()
		if err != nil {
			return err
		}

		status, err := eng.Train(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}

// buildTrainRequest resolves the train flags, reading file-based inputs.
// Documentation files pass through the converter so HTML sources land in
// the store as markdown.
func buildTrainRequest() (engine.TrainRequest, error) {
	req := engine.TrainRequest{
		Question:      trainQuestion,
		SQL:           trainSQL,
		DDL:           trainDDL,
		Documentation: trainDocText,
	}

	if trainDDLFile != "" {
		content, err := os.ReadFile(trainDDLFile)
		if err != nil {
			return req, fmt.Errorf("failed to read DDL file: %w", err)
		}
		req.DDL = string(content)
	}

	if trainDocFile != "" {
		content, err := os.ReadFile(trainDocFile)
		if err != nil {
			return req, fmt.Errorf("failed to read documentation file: %w", err)
		}
		markdown, _, err := docconv.Convert(content, docconv.DetectDocumentType(trainDocFile))
		if err != nil {
			return req, fmt.Errorf("failed to convert %s: %w", trainDocFile, err)
		}
		req.Documentation = markdown
	}

	if trainPlanFile != "" {
		plan, err := loadTrainingPlan(trainPlanFile)
		if err != nil {
			return req, err
		}
		req.Plan = plan
	}

	return req, nil
}

func loadTrainingPlan(path string) (*knowledge.TrainingPlan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training plan: %w", err)
	}

	var plan knowledge.TrainingPlan
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(content, &plan); err != nil {
			return nil, fmt.Errorf("failed to parse training plan %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(content, &plan); err != nil {
			return nil, fmt.Errorf("failed to parse training plan %s: %w", path, err)
		}
	}
	if len(plan.Items) == 0 {
		return nil, fmt.Errorf("training plan %s contains no items", path)
	}
	return &plan, nil
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate training question/SQL pairs from the stored schema",
	Long: `generate asks the model to produce question/SQL pairs grounded
in the DDL already stored in the knowledge store, and trains on each
pair. Use it to bootstrap retrieval quality after loading a schema.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		eng, cleanup, err := buildEngine(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		numQuestions := genQuestions
		if numQuestions <= 0 {
			numQuestions = cfg.Generation.NumQuestions
		}

		result, err := eng.GenerateTrainingData(ctx, engine.GeneratorOptions{
			NumQuestions: numQuestions,
			Categories:   genCategories,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Generated and stored %d question/SQL pair(s):\n", result.GeneratedCount)
		for _, q := range result.Questions {
			fmt.Printf("  - %s\n", q)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the knowledge store as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, cleanup, err := buildStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		data, err := store.Export(ctx)
		if err != nil {
			return err
		}
		if outputFile != "" {
			if err := os.WriteFile(outputFile, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputFile, err)
			}
			fmt.Printf("Exported knowledge store to %s\n", outputFile)
			return nil
		}
		fmt.Println(string(data))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import knowledge from a previous export",
	Long: `import loads a JSON export into the knowledge store. Only the
sections present in the file are replaced; absent sections keep their
current contents.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, cleanup, err := buildStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		if err := store.Import(ctx, data); err != nil {
			return err
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Imported knowledge store: %d question/SQL pairs, %d DDL items, %d documentation items\n",
			stats.QuestionSQL, stats.DDL, stats.Documentation)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, cleanup, err := buildStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Question/SQL pairs:  %d\n", stats.QuestionSQL)
		fmt.Printf("DDL items:           %d\n", stats.DDL)
		fmt.Printf("Documentation items: %d\n", stats.Documentation)
		fmt.Printf("Total:               %d\n", stats.Total)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all items from the knowledge store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, cleanup, err := buildStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := store.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Knowledge store cleared.")
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove one item from the knowledge store by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, cleanup, err := buildStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		removed, err := store.Remove(ctx, args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no item with id %s", args[0])
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Render the stored schema as markdown or JSON",
	Long: `schema parses the DDL fragments in the knowledge store into a
structured schema model and renders it for documentation or review.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, cleanup, err := buildStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		snapshot, err := store.GetAll(ctx)
		if err != nil {
			return err
		}
		fragments := make([]string, 0, len(snapshot.DDL))
		for _, item := range snapshot.DDL {
			fragments = append(fragments, item.DDL)
		}
		parsed := schema.ParseItems(fragments)
		parsed.DatabaseName = cfg.Database.Database

		out, err := schema.Export(parsed, schemaFormat)
		if err != nil {
			return err
		}
		if outputFile != "" {
			if err := os.WriteFile(outputFile, []byte(out), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputFile, err)
			}
			fmt.Printf("Wrote schema to %s\n", outputFile)
			return nil
		}
		fmt.Println(out)
		return nil
	},
}
