/*-------------------------------------------------------------------------
 *
 * SQLScribe - Knowledge Store
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package knowledge

import (
	"math"
	"strings"
)

// Default result limits for similarity retrieval, per collection
const (
	DefaultQuestionSQLLimit   = 5
	DefaultDDLLimit           = 10
	DefaultDocumentationLimit = 5
)

// QuestionSQLPair is one confirmed natural-language-question to SQL mapping.
// Pairs are created by explicit training or by auto-training after a
// successful execution, and are immutable once stored except for removal.
type QuestionSQLPair struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// DDLItem is one schema definition fragment; it may describe several tables.
// TableName is best-effort, extracted by pattern match on the DDL text.
type DDLItem struct {
	ID        string    `json:"id"`
	DDL       string    `json:"ddl"`
	TableName string    `json:"table_name,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// DocumentationItem is free-text domain knowledge (business rules,
// schema narrative). Title is best-effort, taken from the first heading
// or line of the text.
type DocumentationItem struct {
	ID            string    `json:"id"`
	Documentation string    `json:"documentation"`
	Title         string    `json:"title,omitempty"`
	Embedding     []float64 `json:"embedding,omitempty"`
}

// Snapshot is a full copy of the three collections. Mutating a snapshot
// never affects store state.
type Snapshot struct {
	QuestionSQL   []QuestionSQLPair   `json:"questionSQLPairs"`
	DDL           []DDLItem           `json:"ddlItems"`
	Documentation []DocumentationItem `json:"documentationItems"`
}

// Stats holds per-collection item counts
type Stats struct {
	QuestionSQL   int `json:"questionSQLPairs"`
	DDL           int `json:"ddlItems"`
	Documentation int `json:"documentationItems"`
	Total         int `json:"total"`
}

// Training plan item types
const (
	PlanItemDDL           = "ddl"
	PlanItemDocumentation = "documentation"
	PlanItemQuestionSQL   = "question-sql"
)

// TrainingPlanItem is one step in a declarative replay log. For
// question-sql items Name carries the question and Value the SQL; for
// ddl and documentation items Name is a label and Value the text.
type TrainingPlanItem struct {
	Type  string `json:"type" yaml:"type"`
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// TrainingPlan bootstraps a knowledge store from a saved item sequence
type TrainingPlan struct {
	Items []TrainingPlanItem `json:"items" yaml:"items"`
}

// CosineSimilarity returns dot(a,b) / (|a| * |b|). A zero-norm vector or
// mismatched lengths yield zero rather than an error, so degenerate
// embeddings never abort a ranking pass.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// docTitle extracts a best-effort title from documentation text: the first
// markdown heading if present, otherwise a truncated first line
func docTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if title := strings.TrimSpace(strings.TrimLeft(line, "#")); strings.HasPrefix(line, "#") && title != "" {
			return title
		}
		if runes := []rune(line); len(runes) > 80 {
			return string(runes[:77]) + "..."
		}
		return line
	}
	return ""
}
