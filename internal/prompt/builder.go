/*-------------------------------------------------------------------------
 *
 * SQLScribe - Prompt Builder
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package prompt assembles the message sequence sent to the language
// model: one system message carrying schema and documentation context plus
// response guidelines, alternating user/assistant pairs for worked
// examples, and the user's question last.
package prompt

import (
	"fmt"
	"strings"

	"sqlscribe/internal/extract"
	"sqlscribe/internal/knowledge"
	"sqlscribe/internal/llm"
)

// Output formats
const (
	FormatSQL = "sql"
	FormatORM = "orm"
)

const (
	// MaxExamples caps the worked examples included in a prompt
	MaxExamples = 3

	// DefaultMaxTokens caps the estimated size of the system message;
	// context items that would push past it are dropped
	DefaultMaxTokens = 14000

	// DefaultDialect is used when options leave the dialect empty
	DefaultDialect = "PostgreSQL"
)

// Options controls prompt construction
type Options struct {
	// Dialect is the target SQL dialect named in the system message
	Dialect string

	// OutputFormat is FormatSQL for raw SQL or FormatORM for type-safe
	// query-builder code
	OutputFormat string

	// WithExplanation asks the model to append a labeled explanation
	WithExplanation bool

	// MaxTokens bounds the estimated system-message size; zero means
	// DefaultMaxTokens
	MaxTokens int
}

func (o Options) dialect() string {
	if o.Dialect == "" {
		return DefaultDialect
	}
	return o.Dialect
}

func (o Options) format() string {
	if o.OutputFormat == "" {
		return FormatSQL
	}
	return o.OutputFormat
}

func (o Options) maxTokens() int {
	if o.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return o.MaxTokens
}

// estimateTokens approximates token usage as one token per four
// characters, which is close enough for budget-keeping across the
// supported models
func estimateTokens(text string) int {
	return len(text) / 4
}

// Build assembles the full message sequence for a question given the
// retrieved context. Examples beyond MaxExamples are dropped from the
// front of the prompt budget, keeping the most similar ones.
func Build(question string, examples []knowledge.QuestionSQLPair, ddl []knowledge.DDLItem, docs []knowledge.DocumentationItem, opts Options) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemMessage(ddl, docs, opts)},
	}

	if len(examples) > MaxExamples {
		examples = examples[:MaxExamples]
	}
	for _, example := range examples {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: example.Question},
			llm.Message{Role: llm.RoleAssistant, Content: example.SQL},
		)
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})
	return messages
}

func systemMessage(ddl []knowledge.DDLItem, docs []knowledge.DocumentationItem, opts Options) string {
	var b strings.Builder

	output := "SQL queries"
	if opts.format() == FormatORM {
		output = "object-relational-mapper query-builder code"
	}
	fmt.Fprintf(&b, "You are a %s expert. Generate %s to answer the user's question based on the provided context.\n",
		opts.dialect(), output)

	// Context sections are filled most-similar-first until the token
	// budget runs out; the guidelines are always appended.
	budget := opts.maxTokens() - estimateTokens(b.String())

	ddlTexts := make([]string, 0, len(ddl))
	for _, item := range ddl {
		text := strings.TrimSpace(item.DDL)
		cost := estimateTokens(text)
		if cost > budget {
			break
		}
		budget -= cost
		ddlTexts = append(ddlTexts, text)
	}
	if len(ddlTexts) > 0 {
		b.WriteString("\n## Tables\n")
		for _, text := range ddlTexts {
			b.WriteString("\n")
			b.WriteString(text)
			b.WriteString("\n")
		}
	}

	docTexts := make([]string, 0, len(docs))
	for _, item := range docs {
		text := strings.TrimSpace(item.Documentation)
		cost := estimateTokens(text)
		if cost > budget {
			break
		}
		budget -= cost
		docTexts = append(docTexts, text)
	}
	if len(docTexts) > 0 {
		b.WriteString("\n## Additional Context\n")
		for _, text := range docTexts {
			b.WriteString("\n")
			b.WriteString(text)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Response Guidelines\n")
	fmt.Fprintf(&b, "1. If the provided context is sufficient, respond with valid SQL only, without any explanation.\n")
	fmt.Fprintf(&b, "2. If the context is almost sufficient but requires inspecting stored values first, respond with an exploratory query marked with the comment %s, asking permission to run it before answering.\n", extract.IntermediateMarker)
	fmt.Fprintf(&b, "3. If the context is insufficient, explain why the question cannot be answered.\n")
	fmt.Fprintf(&b, "4. Use the most relevant table or tables available.\n")
	fmt.Fprintf(&b, "5. Ensure the output is valid %s syntax.\n", opts.dialect())
	if opts.format() == FormatORM {
		fmt.Fprintf(&b, "6. Produce properly imported, type-safe query-builder code rather than raw SQL strings.\n")
	}
	if opts.WithExplanation {
		b.WriteString("\nAfter the SQL, add a section starting with \"Explanation:\" describing what the query does.\n")
	}

	return b.String()
}
