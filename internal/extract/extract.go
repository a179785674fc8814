/*-------------------------------------------------------------------------
 *
 * SQLScribe - Response Extractor
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package extract parses unstructured model output back into a SQL
// statement, an optional explanation, and optional generated code. Models
// wrap their answers in prose unpredictably, so extraction walks a fixed
// chain of patterns from most explicit to least.
package extract

import (
	"regexp"
	"strings"
)

// IntermediateMarker is the token a model places in its SQL to request an
// exploratory query round before giving a final answer
const IntermediateMarker = "intermediate_sql"

// Query type classifications
const (
	QuerySelect = "SELECT"
	QueryInsert = "INSERT"
	QueryUpdate = "UPDATE"
	QueryDelete = "DELETE"
)

var (
	sqlFenceRe = regexp.MustCompile("(?is)```sql\\s*(.*?)```")
	anyFenceRe = regexp.MustCompile("(?is)```[a-zA-Z0-9_+-]*\\s*\\n?(.*?)```")

	createTableAsRe = regexp.MustCompile(`(?is)\bCREATE\s+TABLE\s+.*?\bAS\b.*?;`)
	withRe          = regexp.MustCompile(`(?is)\bWITH\s+.*?;`)
	selectRe        = regexp.MustCompile(`(?is)\bSELECT\s+.*?;`)

	explanationRe = regexp.MustCompile(`(?is)(?:explanation|description)\s*:\s*(.*?)(?:\n\s*\n|$)`)

	tableRefRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|UPDATE|INSERT\s+INTO)\s+([\w."]+)`)
)

// SQL extracts the SQL statement from raw model output. Patterns are tried
// in a fixed order and the first match wins: a fenced block labeled sql,
// any fenced block, a CREATE TABLE AS statement, a WITH statement, a
// SELECT statement, and finally the whole trimmed text.
func SQL(text string) string {
	if match := sqlFenceRe.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	if match := anyFenceRe.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	if match := createTableAsRe.FindString(text); match != "" {
		return strings.TrimSpace(match)
	}
	if match := withRe.FindString(text); match != "" {
		return strings.TrimSpace(match)
	}
	if match := selectRe.FindString(text); match != "" {
		return strings.TrimSpace(match)
	}
	return strings.TrimSpace(text)
}

// Explanation captures the text after an "Explanation:" or "Description:"
// label up to the next blank line. Returns an empty string when no label
// is present; an explanation is always optional.
func Explanation(text string) string {
	match := explanationRe.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// GeneratedCode extracts the first fenced code block from a model response
// regardless of its language label, falling back to the whole trimmed
// text. Used for the ORM conversion round where the answer is code, not
// SQL.
func GeneratedCode(text string) string {
	if match := anyFenceRe.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(text)
}

// QueryType classifies SQL by its leading keyword. Statements with no
// recognized leading keyword default to SELECT.
func QueryType(sql string) string {
	trimmed := strings.TrimSpace(sql)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return QuerySelect
	}
	switch strings.ToUpper(fields[0]) {
	case QueryInsert:
		return QueryInsert
	case QueryUpdate:
		return QueryUpdate
	case QueryDelete:
		return QueryDelete
	default:
		return QuerySelect
	}
}

// HasIntermediateMarker reports whether the SQL contains the exploratory
// query request marker
func HasIntermediateMarker(sql string) bool {
	return strings.Contains(strings.ToLower(sql), IntermediateMarker)
}

// TableNames collects identifiers referenced after FROM, JOIN, UPDATE, or
// INSERT INTO, de-duplicated in first-seen order. Subqueries and other
// non-identifier operands are skipped.
func TableNames(sql string) []string {
	var names []string
	seen := make(map[string]bool)

	for _, match := range tableRefRe.FindAllStringSubmatch(sql, -1) {
		name := strings.Trim(match[1], `"`)
		if name == "" || strings.HasPrefix(name, "(") {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}
