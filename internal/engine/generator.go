/*-------------------------------------------------------------------------
 *
 * SQLScribe - Training-Data Generator
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sqlscribe/internal/llm"
	"sqlscribe/internal/logging"
	"sqlscribe/internal/schema"
)

// Generation categories
const (
	CategoryBasic     = "basic"
	CategoryJoins     = "joins"
	CategoryAnalytics = "analytics"
)

var categoryInstructions = map[string]string{
	CategoryBasic:     "basic CRUD queries: simple SELECT, INSERT, UPDATE, and DELETE statements with straightforward WHERE clauses",
	CategoryJoins:     "advanced queries using joins across tables, subqueries, and EXISTS/IN predicates",
	CategoryAnalytics: "analytics and reporting queries using aggregation, GROUP BY, HAVING, and window functions",
}

// GeneratorOptions controls one training-data generation run
type GeneratorOptions struct {
	// NumQuestions is the total pair count requested across all
	// categories (default 10)
	NumQuestions int

	// Categories to generate for (default: basic, joins, analytics)
	Categories []string
}

// GeneratorResult reports what a generation run produced
type GeneratorResult struct {
	GeneratedCount int
	Questions      []string
}

var (
	questionLineRe = regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?(?:\*\*)?question(?:\*\*)?\s*:\s*(.*)$`)
	sqlLineRe      = regexp.MustCompile(`(?i)^\s*(?:\*\*)?sql(?:\*\*)?\s*:\s*(.*)$`)
)

// GenerateTrainingData asks the model to synthesize question/SQL pairs
// from the accumulated DDL, one category at a time. A category whose model
// call fails is logged and skipped; questions already stored (or already
// generated this run) are dropped by case-insensitive text match.
func (e *Engine) GenerateTrainingData(ctx context.Context, opts GeneratorOptions) (*GeneratorResult, error) {
	if opts.NumQuestions <= 0 {
		opts.NumQuestions = 10
	}
	if len(opts.Categories) == 0 {
		opts.Categories = []string{CategoryBasic, CategoryJoins, CategoryAnalytics}
	}

	snap, err := e.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge store: %w", err)
	}
	if len(snap.DDL) == 0 {
		return nil, fmt.Errorf("no DDL trained yet: train with schema definitions before generating training data")
	}

	fragments := make([]string, len(snap.DDL))
	for i, item := range snap.DDL {
		fragments[i] = item.DDL
	}
	view := schema.ParseItems(fragments)
	if len(view.Tables) == 0 {
		return nil, fmt.Errorf("stored DDL contains no parseable CREATE TABLE statements")
	}
	description := describeSchema(view)

	seen := make(map[string]bool)
	for _, pair := range snap.QuestionSQL {
		seen[strings.ToLower(pair.Question)] = true
	}

	perCategory := (opts.NumQuestions + len(opts.Categories) - 1) / len(opts.Categories)
	result := &GeneratorResult{}

	for _, category := range opts.Categories {
		instruction, ok := categoryInstructions[category]
		if !ok {
			logging.Warn("unknown generation category skipped", "category", category)
			continue
		}

		response, err := e.model.SubmitPrompt(ctx, generatorMessages(description, instruction, perCategory))
		if err != nil {
			logging.Warn("category generation failed", "category", category, "error", err)
			continue
		}

		for _, pair := range parseGeneratedPairs(response) {
			key := strings.ToLower(pair.question)
			if seen[key] {
				continue
			}
			seen[key] = true

			if _, err := e.trainQuestionSQL(ctx, pair.question, pair.sql); err != nil {
				logging.Warn("failed to train generated pair", "question", pair.question, "error", err)
				continue
			}
			result.GeneratedCount++
			result.Questions = append(result.Questions, pair.question)
		}
	}

	return result, nil
}

func generatorMessages(schemaDescription, instruction string, count int) []llm.Message {
	system := fmt.Sprintf(`You generate training data for a natural-language-to-SQL system.

Database schema:

%s

Generate exactly %d realistic question/SQL pairs covering %s.

Format each pair as two lines:
Question: <the natural-language question>
SQL: <the SQL query; it may continue on following lines>

Do not number the pairs or add commentary.`, schemaDescription, count, instruction)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: "Generate the pairs now."},
	}
}

// describeSchema renders the parsed schema compactly for the generation
// prompt: every table's columns, primary key, and foreign keys
func describeSchema(view *schema.DatabaseSchema) string {
	var b strings.Builder
	for _, table := range view.Tables {
		fmt.Fprintf(&b, "Table %s:\n", table.Name)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  - %s %s", col.Name, col.Type)
			if !col.Nullable {
				b.WriteString(" NOT NULL")
			}
			b.WriteString("\n")
		}
		if len(table.PrimaryKey) > 0 {
			fmt.Fprintf(&b, "  primary key: %s\n", strings.Join(table.PrimaryKey, ", "))
		}
		for _, fk := range table.ForeignKeys {
			ref := fk.ReferencesTable
			if fk.ReferencesColumn != "" {
				ref = fmt.Sprintf("%s(%s)", fk.ReferencesTable, fk.ReferencesColumn)
			}
			fmt.Fprintf(&b, "  foreign key: %s references %s\n", fk.Column, ref)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

type generatedPair struct {
	question string
	sql      string
}

// parseGeneratedPairs scans the model response line by line. A Question:
// label starts a new pair, flushing the previous one if complete; an SQL:
// label starts SQL capture; further non-empty lines extend the SQL until
// the next Question: label.
func parseGeneratedPairs(text string) []generatedPair {
	var (
		pairs   []generatedPair
		current generatedPair
		inSQL   bool
	)

	flush := func() {
		if current.question != "" && strings.TrimSpace(current.sql) != "" {
			current.sql = strings.TrimSpace(current.sql)
			pairs = append(pairs, current)
		}
		current = generatedPair{}
		inSQL = false
	}

	for _, line := range strings.Split(text, "\n") {
		if match := questionLineRe.FindStringSubmatch(line); match != nil {
			flush()
			current.question = strings.TrimSpace(match[1])
			continue
		}
		if match := sqlLineRe.FindStringSubmatch(line); match != nil {
			current.sql = strings.TrimSpace(match[1])
			inSQL = true
			continue
		}
		if inSQL {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || trimmed == "```" || strings.HasPrefix(trimmed, "```") {
				continue
			}
			current.sql += "\n" + trimmed
		}
	}
	flush()

	return pairs
}
