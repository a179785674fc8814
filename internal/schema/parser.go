/*-------------------------------------------------------------------------
 *
 * SQLScribe - Schema Parser
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package schema reconstructs a queryable view of the database structure
// from accumulated DDL text. The view is derived on demand and never
// persisted; the DDL items in the knowledge store remain the source of
// truth.
package schema

import (
	"regexp"
	"strings"
)

// DatabaseSchema is the parsed view of all accumulated DDL
type DatabaseSchema struct {
	DatabaseName string        `json:"databaseName,omitempty"`
	Version      string        `json:"version,omitempty"`
	Tables       []TableSchema `json:"tables"`
}

// TableSchema describes one table reconstructed from a CREATE TABLE
// statement
type TableSchema struct {
	Name        string         `json:"name"`
	Columns     []ColumnSchema `json:"columns"`
	PrimaryKey  []string       `json:"primaryKey,omitempty"`
	ForeignKeys []ForeignKey   `json:"foreignKeys,omitempty"`
	Indexes     []Index        `json:"indexes,omitempty"`
}

// ColumnSchema describes a single column definition
type ColumnSchema struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Nullable      bool   `json:"nullable"`
	DefaultValue  string `json:"defaultValue,omitempty"`
	PrimaryKey    bool   `json:"primaryKey,omitempty"`
	AutoIncrement bool   `json:"autoIncrement,omitempty"`
	Unique        bool   `json:"unique,omitempty"`
}

// ForeignKey records a column-level reference to another table
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"referencesTable"`
	ReferencesColumn string `json:"referencesColumn,omitempty"`
}

// Index records a secondary index parsed from CREATE INDEX
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// ident matches a plain, schema-qualified, double-quoted, or backtick-quoted
// identifier
const ident = `(?:"[^"]+"|` + "`[^`]+`" + `|[\w.]+)`

var (
	createTableRe = regexp.MustCompile(`(?is)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(` + ident + `)\s*\(`)
	createIndexRe = regexp.MustCompile(`(?is)CREATE\s+(UNIQUE\s+)?INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?(` + ident + `)\s+ON\s+(` + ident + `)\s*\(([^)]*)\)`)
	referencesRe  = regexp.MustCompile(`(?i)REFERENCES\s+(` + ident + `)\s*(?:\(\s*(` + ident + `)\s*\))?`)
	fkRe          = regexp.MustCompile(`(?i)FOREIGN\s+KEY\s*\(\s*([^)]+)\s*\)\s*REFERENCES\s+(` + ident + `)\s*(?:\(\s*([^)]+)\s*\))?`)
	pkConstraint  = regexp.MustCompile(`(?i)PRIMARY\s+KEY\s*\(\s*([^)]+)\s*\)`)
	defaultRe     = regexp.MustCompile(`(?i)\bDEFAULT\s+((?:[\w.'-]+\s*\([^)]*\))|'[^']*'|[\w.-]+)`)
)

// TableNameFromDDL extracts the first table name from a DDL fragment.
// Best effort: returns an empty string when no CREATE TABLE is found.
func TableNameFromDDL(ddl string) string {
	match := createTableRe.FindStringSubmatch(ddl)
	if match == nil {
		return ""
	}
	return cleanIdentifier(match[1])
}

// Parse builds a DatabaseSchema from one or more DDL fragments. Statements
// other than CREATE TABLE and CREATE INDEX are ignored; a fragment with no
// recognizable statements yields an empty table list, not an error.
func Parse(ddl string) *DatabaseSchema {
	result := &DatabaseSchema{}

	for _, loc := range createTableRe.FindAllStringSubmatchIndex(ddl, -1) {
		name := cleanIdentifier(ddl[loc[2]:loc[3]])
		body, ok := balancedBody(ddl, loc[1]-1)
		if !ok {
			continue
		}
		table := parseTableBody(name, body)
		result.Tables = append(result.Tables, table)
	}

	for _, match := range createIndexRe.FindAllStringSubmatch(ddl, -1) {
		unique := strings.TrimSpace(match[1]) != ""
		indexName := cleanIdentifier(match[2])
		tableName := cleanIdentifier(match[3])
		columns := splitIdentifierList(match[4])
		for i := range result.Tables {
			if strings.EqualFold(result.Tables[i].Name, tableName) {
				result.Tables[i].Indexes = append(result.Tables[i].Indexes, Index{
					Name:    indexName,
					Columns: columns,
					Unique:  unique,
				})
				break
			}
		}
	}

	return result
}

// ParseItems parses a set of independent DDL fragments into one schema
func ParseItems(fragments []string) *DatabaseSchema {
	return Parse(strings.Join(fragments, "\n"))
}

// balancedBody returns the text between the opening paren at openIdx and
// its matching close, handling nested parens in column types
func balancedBody(s string, openIdx int) (string, bool) {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[openIdx+1 : i], true
			}
		}
	}
	return "", false
}

func parseTableBody(name, body string) TableSchema {
	table := TableSchema{Name: name}

	for _, item := range splitTopLevel(body) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		upper := strings.ToUpper(item)
		switch {
		case strings.HasPrefix(upper, "PRIMARY KEY"):
			if match := pkConstraint.FindStringSubmatch(item); match != nil {
				cols := splitIdentifierList(match[1])
				table.PrimaryKey = append(table.PrimaryKey, cols...)
				markPrimaryColumns(&table, cols)
			}
		case strings.HasPrefix(upper, "FOREIGN KEY"), strings.HasPrefix(upper, "CONSTRAINT"):
			if match := fkRe.FindStringSubmatch(item); match != nil {
				localCols := splitIdentifierList(match[1])
				refTable := cleanIdentifier(match[2])
				refCols := splitIdentifierList(match[3])
				for i, col := range localCols {
					fk := ForeignKey{Column: col, ReferencesTable: refTable}
					if i < len(refCols) {
						fk.ReferencesColumn = refCols[i]
					}
					table.ForeignKeys = append(table.ForeignKeys, fk)
				}
			} else if match := pkConstraint.FindStringSubmatch(item); match != nil {
				cols := splitIdentifierList(match[1])
				table.PrimaryKey = append(table.PrimaryKey, cols...)
				markPrimaryColumns(&table, cols)
			}
		case strings.HasPrefix(upper, "UNIQUE"), strings.HasPrefix(upper, "CHECK"),
			strings.HasPrefix(upper, "KEY "), strings.HasPrefix(upper, "INDEX "):
			// table-level constraints we do not model individually
		default:
			if col, fk, ok := parseColumn(item); ok {
				table.Columns = append(table.Columns, col)
				if col.PrimaryKey {
					table.PrimaryKey = append(table.PrimaryKey, col.Name)
				}
				if fk != nil {
					table.ForeignKeys = append(table.ForeignKeys, *fk)
				}
			}
		}
	}

	return table
}

// parseColumn parses a single column definition line. Returns the column,
// an optional inline foreign key, and whether the line looked like a
// column at all.
func parseColumn(item string) (ColumnSchema, *ForeignKey, bool) {
	fields := strings.Fields(item)
	if len(fields) < 2 {
		return ColumnSchema{}, nil, false
	}

	col := ColumnSchema{
		Name:     cleanIdentifier(fields[0]),
		Nullable: true,
	}

	// The type is the second token plus any parenthesized argument list
	// attached to it, e.g. NUMERIC(10, 2)
	rest := strings.TrimSpace(item[strings.Index(item, fields[0])+len(fields[0]):])
	col.Type = extractType(rest)

	upper := strings.ToUpper(item)
	if strings.Contains(upper, "NOT NULL") {
		col.Nullable = false
	}
	if strings.Contains(upper, "PRIMARY KEY") {
		col.PrimaryKey = true
		col.Nullable = false
	}
	if strings.Contains(upper, "UNIQUE") {
		col.Unique = true
	}
	typeUpper := strings.ToUpper(col.Type)
	if strings.Contains(upper, "AUTO_INCREMENT") || strings.Contains(upper, "AUTOINCREMENT") ||
		strings.Contains(upper, "GENERATED ALWAYS AS IDENTITY") ||
		typeUpper == "SERIAL" || typeUpper == "BIGSERIAL" || typeUpper == "SMALLSERIAL" {
		col.AutoIncrement = true
	}
	if match := defaultRe.FindStringSubmatch(item); match != nil {
		col.DefaultValue = strings.Trim(match[1], "'")
	}

	var fk *ForeignKey
	if match := referencesRe.FindStringSubmatch(item); match != nil {
		fk = &ForeignKey{
			Column:           col.Name,
			ReferencesTable:  cleanIdentifier(match[1]),
			ReferencesColumn: cleanIdentifier(match[2]),
		}
	}

	return col, fk, true
}

// extractType takes the text after the column name and returns the type
// token with its optional parenthesized arguments
func extractType(rest string) string {
	if rest == "" {
		return ""
	}
	end := len(rest)
	if idx := strings.IndexFunc(rest, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }); idx >= 0 {
		end = idx
	}
	typ := rest[:end]

	// Pull in the argument list when the base token does not contain it
	if !strings.Contains(typ, "(") {
		after := strings.TrimSpace(rest[end:])
		if strings.HasPrefix(after, "(") {
			if close := strings.Index(after, ")"); close >= 0 {
				typ += after[:close+1]
			}
		}
	} else if !strings.Contains(typ, ")") {
		if close := strings.Index(rest, ")"); close >= 0 {
			typ = rest[:close+1]
		}
	}
	return typ
}

func markPrimaryColumns(table *TableSchema, names []string) {
	for i := range table.Columns {
		for _, name := range names {
			if strings.EqualFold(table.Columns[i].Name, name) {
				table.Columns[i].PrimaryKey = true
				table.Columns[i].Nullable = false
			}
		}
	}
}

// splitTopLevel splits a table body on commas outside parens and quotes
func splitTopLevel(body string) []string {
	var parts []string
	depth := 0
	inQuote := byte(0)
	start := 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			inQuote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, body[start:i])
			start = i + 1
		}
	}
	parts = append(parts, body[start:])
	return parts
}

func splitIdentifierList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if name := cleanIdentifier(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// cleanIdentifier strips quoting and any schema qualifier
func cleanIdentifier(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"`")
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.Trim(s, "\"`")
}
