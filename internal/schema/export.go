/*-------------------------------------------------------------------------
 *
 * SQLScribe - Schema Export
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Export formats (case-insensitive)
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Export renders the schema view in the requested format. An empty schema
// or an unsupported format is rejected rather than producing empty output.
func Export(s *DatabaseSchema, format string) (string, error) {
	if s == nil || len(s.Tables) == 0 {
		return "", fmt.Errorf("no schema loaded: train with DDL before exporting")
	}

	switch strings.ToLower(format) {
	case FormatMarkdown, "md":
		return exportMarkdown(s), nil
	case FormatJSON:
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to serialize schema: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported schema export format: %q (expected markdown or json)", format)
	}
}

func exportMarkdown(s *DatabaseSchema) string {
	var b strings.Builder

	title := "Database Schema"
	if s.DatabaseName != "" {
		title = fmt.Sprintf("Database Schema: %s", s.DatabaseName)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if s.Version != "" {
		fmt.Fprintf(&b, "Version: %s\n\n", s.Version)
	}

	for _, table := range s.Tables {
		fmt.Fprintf(&b, "## %s\n\n", table.Name)
		b.WriteString("| Column | Type | Nullable | Default | Attributes |\n")
		b.WriteString("|--------|------|----------|---------|------------|\n")
		for _, col := range table.Columns {
			nullable := "yes"
			if !col.Nullable {
				nullable = "no"
			}
			var attrs []string
			if col.PrimaryKey {
				attrs = append(attrs, "primary key")
			}
			if col.AutoIncrement {
				attrs = append(attrs, "auto-increment")
			}
			if col.Unique {
				attrs = append(attrs, "unique")
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				col.Name, col.Type, nullable, col.DefaultValue, strings.Join(attrs, ", "))
		}
		b.WriteString("\n")

		if len(table.ForeignKeys) > 0 {
			b.WriteString("Foreign keys:\n\n")
			for _, fk := range table.ForeignKeys {
				target := fk.ReferencesTable
				if fk.ReferencesColumn != "" {
					target = fmt.Sprintf("%s(%s)", fk.ReferencesTable, fk.ReferencesColumn)
				}
				fmt.Fprintf(&b, "- %s references %s\n", fk.Column, target)
			}
			b.WriteString("\n")
		}

		if len(table.Indexes) > 0 {
			b.WriteString("Indexes:\n\n")
			for _, idx := range table.Indexes {
				kind := "index"
				if idx.Unique {
					kind = "unique index"
				}
				fmt.Fprintf(&b, "- %s (%s) on (%s)\n", idx.Name, kind, strings.Join(idx.Columns, ", "))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
