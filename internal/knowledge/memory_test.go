/*-------------------------------------------------------------------------
 *
 * SQLScribe - Knowledge Store Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package knowledge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestAddAndStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	id1, err := store.AddQuestionSQL(ctx, "count users", "SELECT COUNT(*) FROM users;", []float64{1, 0})
	if err != nil {
		t.Fatalf("AddQuestionSQL failed: %v", err)
	}
	id2, err := store.AddDDL(ctx, "CREATE TABLE users (id SERIAL PRIMARY KEY, name VARCHAR(50));", []float64{0, 1})
	if err != nil {
		t.Fatalf("AddDDL failed: %v", err)
	}
	id3, err := store.AddDocumentation(ctx, "# Users\nEvery signup creates a row.", []float64{1, 1})
	if err != nil {
		t.Fatalf("AddDocumentation failed: %v", err)
	}

	for _, id := range []string{id1, id2, id3} {
		if id == "" {
			t.Error("expected non-empty id")
		}
	}
	if id1 == id2 || id2 == id3 {
		t.Error("ids must be unique across collections")
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.QuestionSQL != 1 || stats.DDL != 1 || stats.Documentation != 1 || stats.Total != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestAddDDLExtractsTableName(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.AddDDL(ctx, "CREATE TABLE orders (id INT);", nil); err != nil {
		t.Fatalf("AddDDL failed: %v", err)
	}
	if _, err := store.AddDDL(ctx, "ALTER TABLE orders ADD COLUMN x INT;", nil); err != nil {
		t.Fatalf("AddDDL failed: %v", err)
	}

	snap, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if snap.DDL[0].TableName != "orders" {
		t.Errorf("table name = %q, want orders", snap.DDL[0].TableName)
	}
	if snap.DDL[1].TableName != "" {
		t.Errorf("expected absent table name, got %q", snap.DDL[1].TableName)
	}
}

func TestSimilarQuestionSQLRanking(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Query vector points along the x axis; similarity descends as the
	// stored vectors rotate away from it.
	mustAdd := func(question string, embedding []float64) {
		t.Helper()
		if _, err := store.AddQuestionSQL(ctx, question, "SELECT 1;", embedding); err != nil {
			t.Fatalf("AddQuestionSQL failed: %v", err)
		}
	}
	mustAdd("far", []float64{0, 1})
	mustAdd("near", []float64{1, 0.1})
	mustAdd("exact", []float64{1, 0})
	mustAdd("no embedding", nil)

	results, err := store.SimilarQuestionSQL(ctx, []float64{1, 0}, 2)
	if err != nil {
		t.Fatalf("SimilarQuestionSQL failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Question != "exact" || results[1].Question != "near" {
		t.Errorf("ranking wrong: %q, %q", results[0].Question, results[1].Question)
	}
}

func TestRankingTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, q := range []string{"first", "second", "third"} {
		if _, err := store.AddQuestionSQL(ctx, q, "SELECT 1;", []float64{1, 0}); err != nil {
			t.Fatalf("AddQuestionSQL failed: %v", err)
		}
	}

	results, err := store.SimilarQuestionSQL(ctx, []float64{1, 0}, 0)
	if err != nil {
		t.Fatalf("SimilarQuestionSQL failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"first", "second", "third"} {
		if results[i].Question != want {
			t.Errorf("result %d = %q, want %q", i, results[i].Question, want)
		}
	}
}

func TestDefaultLimits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 15; i++ {
		if _, err := store.AddQuestionSQL(ctx, "q", "s", []float64{1, 0}); err != nil {
			t.Fatal(err)
		}
		if _, err := store.AddDDL(ctx, "CREATE TABLE t (id INT);", []float64{1, 0}); err != nil {
			t.Fatal(err)
		}
		if _, err := store.AddDocumentation(ctx, "doc", []float64{1, 0}); err != nil {
			t.Fatal(err)
		}
	}

	pairs, _ := store.SimilarQuestionSQL(ctx, []float64{1, 0}, 0)
	if len(pairs) != DefaultQuestionSQLLimit {
		t.Errorf("question/sql default limit = %d, want %d", len(pairs), DefaultQuestionSQLLimit)
	}
	ddl, _ := store.RelatedDDL(ctx, []float64{1, 0}, 0)
	if len(ddl) != DefaultDDLLimit {
		t.Errorf("ddl default limit = %d, want %d", len(ddl), DefaultDDLLimit)
	}
	docs, _ := store.RelatedDocumentation(ctx, []float64{1, 0}, 0)
	if len(docs) != DefaultDocumentationLimit {
		t.Errorf("documentation default limit = %d, want %d", len(docs), DefaultDocumentationLimit)
	}
}

func TestRemoveAcrossCollections(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	qsID, _ := store.AddQuestionSQL(ctx, "q", "s", nil)
	ddlID, _ := store.AddDDL(ctx, "CREATE TABLE t (id INT);", nil)
	docID, _ := store.AddDocumentation(ctx, "doc", nil)

	for _, id := range []string{ddlID, qsID, docID} {
		removed, err := store.Remove(ctx, id)
		if err != nil {
			t.Fatalf("Remove(%s) failed: %v", id, err)
		}
		if !removed {
			t.Errorf("Remove(%s) = false, want true", id)
		}
	}

	removed, err := store.Remove(ctx, "missing-id")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed {
		t.Error("Remove of unknown id reported true")
	}

	stats, _ := store.Stats(ctx)
	if stats.Total != 0 {
		t.Errorf("expected empty store, got %+v", stats)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.AddQuestionSQL(ctx, "q", "s", nil)
	store.AddDDL(ctx, "CREATE TABLE t (id INT);", nil)
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	stats, _ := store.Stats(ctx)
	if stats.Total != 0 {
		t.Errorf("expected empty store after Clear, got %+v", stats)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.AddQuestionSQL(ctx, "original", "SELECT 1;", []float64{1, 2})

	snap, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	snap.QuestionSQL[0].Question = "mutated"
	snap.QuestionSQL[0].Embedding[0] = 99

	again, _ := store.GetAll(ctx)
	if again.QuestionSQL[0].Question != "original" {
		t.Error("snapshot mutation leaked into store text")
	}
	if again.QuestionSQL[0].Embedding[0] != 1 {
		t.Error("snapshot mutation leaked into store embedding")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.AddQuestionSQL(ctx, "count users", "SELECT COUNT(*) FROM users;", []float64{1, 0})
	store.AddDDL(ctx, "CREATE TABLE users (id INT);", []float64{0, 1})
	store.AddDocumentation(ctx, "# Users", []float64{1, 1})

	data, err := store.Export(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	for _, key := range []string{"questionSQLPairs", "ddlItems", "documentationItems", "exportedAt"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("export missing key %q", key)
		}
	}

	restored := NewMemoryStore()
	if err := restored.Import(ctx, data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	snap, _ := restored.GetAll(ctx)
	if len(snap.QuestionSQL) != 1 || len(snap.DDL) != 1 || len(snap.Documentation) != 1 {
		t.Fatalf("round trip lost items: %+v", snap)
	}
	if snap.QuestionSQL[0].Question != "count users" {
		t.Errorf("question = %q", snap.QuestionSQL[0].Question)
	}
	if snap.DDL[0].TableName != "users" {
		t.Errorf("table name = %q, want users", snap.DDL[0].TableName)
	}
}

func TestImportPartialSections(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.AddQuestionSQL(ctx, "keep me", "SELECT 1;", nil)
	store.AddDDL(ctx, "CREATE TABLE old (id INT);", nil)

	// Only ddlItems is present, so only the DDL collection is replaced
	data := []byte(`{"ddlItems": [{"id": "ddl-1", "ddl": "CREATE TABLE fresh (id INT);", "table_name": "fresh"}]}`)
	if err := store.Import(ctx, data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	snap, _ := store.GetAll(ctx)
	if len(snap.QuestionSQL) != 1 || snap.QuestionSQL[0].Question != "keep me" {
		t.Errorf("absent section replaced question/sql collection: %+v", snap.QuestionSQL)
	}
	if len(snap.DDL) != 1 || snap.DDL[0].TableName != "fresh" {
		t.Errorf("present section not replaced: %+v", snap.DDL)
	}
}

func TestImportEmptySectionClears(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.AddQuestionSQL(ctx, "q", "s", nil)

	if err := store.Import(ctx, []byte(`{"questionSQLPairs": []}`)); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	stats, _ := store.Stats(ctx)
	if stats.QuestionSQL != 0 {
		t.Errorf("empty present section did not clear collection: %+v", stats)
	}
}

func TestImportMalformedJSON(t *testing.T) {
	store := NewMemoryStore()
	err := store.Import(context.Background(), []byte("{not json"))
	if err == nil {
		t.Fatal("expected error for malformed import data")
	}
	if !strings.Contains(err.Error(), "import") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestScenarioTrainThenRetrieve(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.AddDDL(ctx, "CREATE TABLE users (id SERIAL PRIMARY KEY, name VARCHAR(50));", []float64{0, 1, 0})
	store.AddQuestionSQL(ctx, "count users", "SELECT COUNT(*) FROM users;", []float64{0.9, 0.1, 0})

	// "how many users" embeds close to the stored question
	results, err := store.SimilarQuestionSQL(ctx, []float64{0.85, 0.2, 0}, 0)
	if err != nil {
		t.Fatalf("SimilarQuestionSQL failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
	if results[0].Question != "count users" || results[0].SQL != "SELECT COUNT(*) FROM users;" {
		t.Errorf("unexpected top result: %+v", results[0])
	}
}

func TestPgvectorStoreRequiresConnect(t *testing.T) {
	ctx := context.Background()
	store := NewPgvectorStore(PgvectorConfig{})

	if _, err := store.AddQuestionSQL(ctx, "q", "s", nil); err != ErrNotConnected {
		t.Errorf("AddQuestionSQL error = %v, want ErrNotConnected", err)
	}
	if _, err := store.SimilarQuestionSQL(ctx, nil, 0); err != ErrNotConnected {
		t.Errorf("SimilarQuestionSQL error = %v, want ErrNotConnected", err)
	}
	if err := store.Init(ctx); err != ErrNotConnected {
		t.Errorf("Init error = %v, want ErrNotConnected", err)
	}
	if _, err := store.Stats(ctx); err != ErrNotConnected {
		t.Errorf("Stats error = %v, want ErrNotConnected", err)
	}
}

func TestPgvectorConfigDefaults(t *testing.T) {
	store := NewPgvectorStore(PgvectorConfig{})
	cfg := store.cfg
	if cfg.Host != "localhost" || cfg.Port != 5432 {
		t.Errorf("connection defaults wrong: %+v", cfg)
	}
	if cfg.SchemaName != "sqlscribe" {
		t.Errorf("schema default = %q", cfg.SchemaName)
	}
	if cfg.Dimensions != DefaultPgDimensions {
		t.Errorf("dimensions default = %d", cfg.Dimensions)
	}
	if cfg.SimilarityThreshold != DefaultSimilarityThreshold {
		t.Errorf("threshold default = %v", cfg.SimilarityThreshold)
	}
}
