/*-------------------------------------------------------------------------
 *
 * SQLScribe - Ask/Train Engine
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package engine ties the knowledge store, embedding provider, and
// language model together: questions are answered by retrieving context,
// prompting the model, and extracting SQL from its reply; training inputs
// are embedded and stored for future retrieval.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"sqlscribe/internal/embedding"
	"sqlscribe/internal/extract"
	"sqlscribe/internal/knowledge"
	"sqlscribe/internal/llm"
	"sqlscribe/internal/logging"
	"sqlscribe/internal/prompt"
)

// RunSQLFunc executes SQL against a live database. The row shape is opaque
// to the engine; it is only JSON-serialized for logging and for feeding
// intermediate results back into a prompt.
type RunSQLFunc func(ctx context.Context, sql string) (any, error)

// Config wires the engine's capabilities. Store, Embedder, and Model are
// required; RunSQL is optional and its absence makes the engine a pure SQL
// generator.
type Config struct {
	Store    knowledge.Store
	Embedder embedding.Provider
	Model    llm.Client
	RunSQL   RunSQLFunc

	// Dialect is the default SQL dialect for prompts (default PostgreSQL)
	Dialect string
}

// Engine is the ask/train orchestrator. It is ready on return from New;
// there is no separate initialization step.
type Engine struct {
	store    knowledge.Store
	embedder embedding.Provider
	model    llm.Client
	runSQL   RunSQLFunc
	dialect  string
}

// New validates the capability set and returns a ready engine
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("knowledge store is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("language model client is required")
	}
	return &Engine{
		store:    cfg.Store,
		embedder: cfg.Embedder,
		model:    cfg.Model,
		runSQL:   cfg.RunSQL,
		dialect:  cfg.Dialect,
	}, nil
}

// Store exposes the knowledge store for direct manipulation and seeding
func (e *Engine) Store() knowledge.Store {
	return e.store
}

// AskOptions controls one Ask call. The zero value gives the default
// behavior: auto-training on successful execution, no data visibility for
// the model.
type AskOptions struct {
	// DisableAutoTrain skips storing the question/SQL pair after a
	// successful execution
	DisableAutoTrain bool

	// AllowLLMToSeeData permits the one-round intermediate-query
	// escalation, which sends live query results back to the model
	AllowLLMToSeeData bool

	// WithExplanation asks the model for a labeled explanation
	WithExplanation bool

	// OutputFormat is prompt.FormatSQL or prompt.FormatORM
	OutputFormat string

	// Dialect overrides the engine's default dialect
	Dialect string
}

// AskResult is the terminal state of one Ask call. Results is nil when no
// execution callback is configured or execution failed; SQL is always
// present when generation succeeded.
type AskResult struct {
	SQL         string
	Results     any
	Explanation string
	ORMCode     string
}

// Ask answers a question end to end: generate SQL, optionally execute it,
// optionally train on the confirmed pair. Generation failure is returned
// as an error; execution failure is logged and the generated SQL is still
// returned with nil Results.
func (e *Engine) Ask(ctx context.Context, question string, opts AskOptions) (AskResult, error) {
	gen, err := e.GenerateSQL(ctx, question, GenerateOptions{
		Dialect:           opts.Dialect,
		OutputFormat:      opts.OutputFormat,
		WithExplanation:   opts.WithExplanation,
		AllowLLMToSeeData: opts.AllowLLMToSeeData,
	})
	if err != nil {
		return AskResult{}, err
	}

	result := AskResult{
		SQL:         gen.SQL,
		Explanation: gen.Explanation,
		ORMCode:     gen.ORMCode,
	}

	if e.runSQL == nil {
		return result, nil
	}

	rows, err := e.runSQL(ctx, gen.SQL)
	if err != nil {
		logging.Warn("sql execution failed", "error", err)
		return result, nil
	}
	result.Results = rows

	if !opts.DisableAutoTrain {
		emb, err := e.embedder.Embed(ctx, question)
		if err == nil {
			_, err = e.store.AddQuestionSQL(ctx, question, gen.SQL, emb)
		}
		if err != nil {
			// Auto-training is best effort; a storage or embedding
			// failure must not fail the Ask call itself
			logging.Warn("auto-training failed", "error", err)
		}
	}

	return result, nil
}

// GenerateOptions controls a single generation round
type GenerateOptions struct {
	Dialect           string
	OutputFormat      string
	WithExplanation   bool
	AllowLLMToSeeData bool
}

// Metadata carries the retrieved context and derived classification for
// caller introspection
type Metadata struct {
	Tables    []string
	Columns   []string
	QueryType string

	SimilarQuestions     []knowledge.QuestionSQLPair
	RelatedDDL           []knowledge.DDLItem
	RelatedDocumentation []knowledge.DocumentationItem
}

// GenerateResult is the outcome of one GenerateSQL call
type GenerateResult struct {
	SQL         string
	ORMCode     string
	Explanation string
	Metadata    Metadata
}

// GenerateSQL retrieves context, prompts the model, and extracts SQL. The
// three retrieval calls are independent and issued concurrently. When the
// model requests an exploratory query and AllowLLMToSeeData permits it,
// one intermediate round runs before the final answer.
func (e *Engine) GenerateSQL(ctx context.Context, question string, opts GenerateOptions) (*GenerateResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question must not be empty")
	}
	switch opts.OutputFormat {
	case "", prompt.FormatSQL, prompt.FormatORM:
	default:
		return nil, fmt.Errorf("unsupported output format %q: expected %q or %q", opts.OutputFormat, prompt.FormatSQL, prompt.FormatORM)
	}

	emb, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	examples, ddl, docs, err := e.retrieveContext(ctx, emb)
	if err != nil {
		return nil, err
	}

	promptOpts := prompt.Options{
		Dialect:         e.resolveDialect(opts.Dialect),
		OutputFormat:    opts.OutputFormat,
		WithExplanation: opts.WithExplanation,
	}
	messages := prompt.Build(question, examples, ddl, docs, promptOpts)

	response, err := e.model.SubmitPrompt(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	sql := extract.SQL(response)

	if extract.HasIntermediateMarker(sql) && opts.AllowLLMToSeeData && e.runSQL != nil {
		sql, response = e.intermediateRound(ctx, question, sql, response, docs, examples, ddl, promptOpts)
	}

	result := &GenerateResult{
		SQL:         sql,
		Explanation: extract.Explanation(response),
		Metadata: Metadata{
			Tables:               extract.TableNames(sql),
			Columns:              []string{},
			QueryType:            extract.QueryType(sql),
			SimilarQuestions:     examples,
			RelatedDDL:           ddl,
			RelatedDocumentation: docs,
		},
	}

	if opts.OutputFormat == prompt.FormatORM {
		code, err := e.convertToORM(ctx, sql)
		if err != nil {
			return nil, fmt.Errorf("orm conversion failed: %w", err)
		}
		result.ORMCode = code
	}

	return result, nil
}

// retrieveContext issues the three similarity searches concurrently
func (e *Engine) retrieveContext(ctx context.Context, emb []float64) ([]knowledge.QuestionSQLPair, []knowledge.DDLItem, []knowledge.DocumentationItem, error) {
	var (
		wg       sync.WaitGroup
		examples []knowledge.QuestionSQLPair
		ddl      []knowledge.DDLItem
		docs     []knowledge.DocumentationItem
		errs     [3]error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		examples, errs[0] = e.store.SimilarQuestionSQL(ctx, emb, 0)
	}()
	go func() {
		defer wg.Done()
		ddl, errs[1] = e.store.RelatedDDL(ctx, emb, 0)
	}()
	go func() {
		defer wg.Done()
		docs, errs[2] = e.store.RelatedDocumentation(ctx, emb, 0)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, nil, fmt.Errorf("context retrieval failed: %w", err)
		}
	}
	return examples, ddl, docs, nil
}

// intermediateRound executes the exploratory query and asks the model once
// more with its results injected as additional context. Any failure keeps
// the marker-bearing SQL as the answer.
func (e *Engine) intermediateRound(ctx context.Context, question, sql, response string, docs []knowledge.DocumentationItem, examples []knowledge.QuestionSQLPair, ddl []knowledge.DDLItem, promptOpts prompt.Options) (string, string) {
	rows, err := e.runSQL(ctx, sql)
	if err != nil {
		logging.Warn("intermediate query failed", "error", err)
		return sql, response
	}

	serialized, err := json.Marshal(rows)
	if err != nil {
		logging.Warn("intermediate results not serializable", "error", err)
		return sql, response
	}

	augmented := append(append([]knowledge.DocumentationItem(nil), docs...), knowledge.DocumentationItem{
		Documentation: fmt.Sprintf("Results of the exploratory query:\n%s", serialized),
	})
	messages := prompt.Build(question, examples, ddl, augmented, promptOpts)

	final, err := e.model.SubmitPrompt(ctx, messages)
	if err != nil {
		logging.Warn("intermediate round model call failed", "error", err)
		return sql, response
	}
	return extract.SQL(final), final
}

// convertToORM is a second model round-trip turning SQL into type-safe
// query-builder code
func (e *Engine) convertToORM(ctx context.Context, sql string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You convert SQL queries into equivalent type-safe GORM query-builder code in Go. Respond with a single code block containing properly imported code."},
		{Role: llm.RoleUser, Content: sql},
	}
	response, err := e.model.SubmitPrompt(ctx, messages)
	if err != nil {
		return "", err
	}
	return extract.GeneratedCode(response), nil
}

func (e *Engine) resolveDialect(override string) string {
	if override != "" {
		return override
	}
	return e.dialect
}
