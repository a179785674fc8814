/*-------------------------------------------------------------------------
 *
 * SQLScribe - Schema Parser Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package schema

import (
	"strings"
	"testing"
)

const usersDDL = `CREATE TABLE users (
    id SERIAL PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    name VARCHAR(50),
    balance NUMERIC(10, 2) DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const ordersDDL = `CREATE TABLE orders (
    id BIGSERIAL,
    user_id INTEGER NOT NULL REFERENCES users(id),
    status TEXT DEFAULT 'pending',
    total NUMERIC(12, 2),
    PRIMARY KEY (id)
);
CREATE INDEX idx_orders_user ON orders (user_id);`

func TestTableNameFromDDL(t *testing.T) {
	tests := []struct {
		name string
		ddl  string
		want string
	}{
		{"simple", "CREATE TABLE users (id INT);", "users"},
		{"if not exists", "CREATE TABLE IF NOT EXISTS orders (id INT);", "orders"},
		{"quoted", `CREATE TABLE "Order Items" (id INT);`, "Order Items"},
		{"schema qualified", "CREATE TABLE public.accounts (id INT);", "accounts"},
		{"lowercase keywords", "create table events (id int);", "events"},
		{"no create table", "ALTER TABLE users ADD COLUMN x INT;", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TableNameFromDDL(tt.ddl); got != tt.want {
				t.Errorf("TableNameFromDDL(%q) = %q, want %q", tt.ddl, got, tt.want)
			}
		})
	}
}

func TestParseColumns(t *testing.T) {
	s := Parse(usersDDL)
	if len(s.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(s.Tables))
	}

	table := s.Tables[0]
	if table.Name != "users" {
		t.Errorf("table name = %q, want users", table.Name)
	}
	if len(table.Columns) != 5 {
		t.Fatalf("expected 5 columns, got %d: %+v", len(table.Columns), table.Columns)
	}

	id := table.Columns[0]
	if id.Name != "id" || !id.PrimaryKey || !id.AutoIncrement || id.Nullable {
		t.Errorf("id column parsed wrong: %+v", id)
	}
	if len(table.PrimaryKey) != 1 || table.PrimaryKey[0] != "id" {
		t.Errorf("primary key = %v, want [id]", table.PrimaryKey)
	}

	email := table.Columns[1]
	if email.Type != "VARCHAR(255)" || email.Nullable || !email.Unique {
		t.Errorf("email column parsed wrong: %+v", email)
	}

	name := table.Columns[2]
	if !name.Nullable || name.PrimaryKey {
		t.Errorf("name column parsed wrong: %+v", name)
	}

	balance := table.Columns[3]
	if balance.Type != "NUMERIC(10, 2)" {
		t.Errorf("balance type = %q, want NUMERIC(10, 2)", balance.Type)
	}
	if balance.DefaultValue != "0" {
		t.Errorf("balance default = %q, want 0", balance.DefaultValue)
	}

	created := table.Columns[4]
	if created.DefaultValue != "now()" {
		t.Errorf("created_at default = %q, want now()", created.DefaultValue)
	}
}

func TestParseConstraintsAndIndexes(t *testing.T) {
	s := Parse(ordersDDL)
	if len(s.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(s.Tables))
	}
	table := s.Tables[0]

	if len(table.PrimaryKey) != 1 || table.PrimaryKey[0] != "id" {
		t.Errorf("primary key = %v, want [id]", table.PrimaryKey)
	}
	for _, col := range table.Columns {
		if col.Name == "id" && !col.PrimaryKey {
			t.Error("id column not marked primary by table-level constraint")
		}
	}

	if len(table.ForeignKeys) != 1 {
		t.Fatalf("expected 1 foreign key, got %d", len(table.ForeignKeys))
	}
	fk := table.ForeignKeys[0]
	if fk.Column != "user_id" || fk.ReferencesTable != "users" || fk.ReferencesColumn != "id" {
		t.Errorf("foreign key parsed wrong: %+v", fk)
	}

	status := findColumn(t, table, "status")
	if status.DefaultValue != "pending" {
		t.Errorf("status default = %q, want pending", status.DefaultValue)
	}

	if len(table.Indexes) != 1 {
		t.Fatalf("expected 1 index, got %d", len(table.Indexes))
	}
	idx := table.Indexes[0]
	if idx.Name != "idx_orders_user" || len(idx.Columns) != 1 || idx.Columns[0] != "user_id" {
		t.Errorf("index parsed wrong: %+v", idx)
	}
}

func TestParseMultipleTables(t *testing.T) {
	s := ParseItems([]string{usersDDL, ordersDDL})
	if len(s.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(s.Tables))
	}
	if s.Tables[0].Name != "users" || s.Tables[1].Name != "orders" {
		t.Errorf("table order wrong: %s, %s", s.Tables[0].Name, s.Tables[1].Name)
	}
}

func TestParseIgnoresOtherStatements(t *testing.T) {
	s := Parse("INSERT INTO users VALUES (1); ALTER TABLE users ADD COLUMN x INT;")
	if len(s.Tables) != 0 {
		t.Errorf("expected no tables, got %d", len(s.Tables))
	}
}

func TestParseCompositeForeignKey(t *testing.T) {
	ddl := `CREATE TABLE line_items (
        order_id INT,
        item_no INT,
        sku TEXT NOT NULL,
        PRIMARY KEY (order_id, item_no),
        FOREIGN KEY (order_id) REFERENCES orders(id)
    );`

	s := Parse(ddl)
	if len(s.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(s.Tables))
	}
	table := s.Tables[0]

	if len(table.PrimaryKey) != 2 {
		t.Errorf("composite primary key = %v", table.PrimaryKey)
	}
	if len(table.ForeignKeys) != 1 || table.ForeignKeys[0].ReferencesTable != "orders" {
		t.Errorf("foreign keys = %+v", table.ForeignKeys)
	}
}

func TestExportMarkdown(t *testing.T) {
	s := Parse(usersDDL)
	out, err := Export(s, FormatMarkdown)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	for _, want := range []string{"## users", "| id |", "primary key", "VARCHAR(255)"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown export missing %q:\n%s", want, out)
		}
	}
}

func TestExportJSON(t *testing.T) {
	s := Parse(usersDDL)
	out, err := Export(s, FormatJSON)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(out, `"name": "users"`) {
		t.Errorf("json export missing table name:\n%s", out)
	}
}

func TestExportErrors(t *testing.T) {
	t.Run("empty schema", func(t *testing.T) {
		if _, err := Export(&DatabaseSchema{}, FormatMarkdown); err == nil {
			t.Error("expected error for empty schema")
		}
	})
	t.Run("nil schema", func(t *testing.T) {
		if _, err := Export(nil, FormatJSON); err == nil {
			t.Error("expected error for nil schema")
		}
	})
	t.Run("unsupported format", func(t *testing.T) {
		s := Parse(usersDDL)
		if _, err := Export(s, "xml"); err == nil {
			t.Error("expected error for unsupported format")
		}
	})
}

func findColumn(t *testing.T, table TableSchema, name string) ColumnSchema {
	t.Helper()
	for _, col := range table.Columns {
		if col.Name == name {
			return col
		}
	}
	t.Fatalf("column %s not found in %s", name, table.Name)
	return ColumnSchema{}
}
