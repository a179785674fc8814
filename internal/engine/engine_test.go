/*-------------------------------------------------------------------------
 *
 * SQLScribe - Engine Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sqlscribe/internal/embedding"
	"sqlscribe/internal/knowledge"
	"sqlscribe/internal/llm"
	"sqlscribe/internal/prompt"
)

// mockModel returns canned responses in order, repeating the last one
type mockModel struct {
	responses []string
	err       error
	calls     int
	prompts   [][]llm.Message
}

func (m *mockModel) SubmitPrompt(_ context.Context, messages []llm.Message) (string, error) {
	m.prompts = append(m.prompts, messages)
	if m.err != nil {
		return "", m.err
	}
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	return m.responses[idx], nil
}

func (m *mockModel) ModelName() string { return "mock" }

func newTestEngine(t *testing.T, model llm.Client, runSQL RunSQLFunc) *Engine {
	t.Helper()
	e, err := New(Config{
		Store:    knowledge.NewMemoryStore(),
		Embedder: embedding.NewLocalProvider(0),
		Model:    model,
		RunSQL:   runSQL,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func TestNewRequiresCapabilities(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no store", Config{Embedder: embedding.NewLocalProvider(0), Model: &mockModel{}}},
		{"no embedder", Config{Store: knowledge.NewMemoryStore(), Model: &mockModel{}}},
		{"no model", Config{Store: knowledge.NewMemoryStore(), Embedder: embedding.NewLocalProvider(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAskWithoutDB(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{"```sql\nSELECT COUNT(*) FROM users;\n```"}}
	e := newTestEngine(t, model, nil)

	result, err := e.Ask(ctx, "how many users are there?", AskOptions{})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.SQL != "SELECT COUNT(*) FROM users;" {
		t.Errorf("sql = %q", result.SQL)
	}
	if result.Results != nil {
		t.Errorf("results = %v, want nil without execution callback", result.Results)
	}

	// No execution means no auto-training
	stats, _ := e.Store().Stats(ctx)
	if stats.QuestionSQL != 0 {
		t.Errorf("auto-training ran without execution: %+v", stats)
	}
}

func TestAskWithFailingExecution(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{"SELECT * FROM users;"}}
	runSQL := func(context.Context, string) (any, error) {
		return nil, errors.New("relation does not exist")
	}
	e := newTestEngine(t, model, runSQL)

	result, err := e.Ask(ctx, "list users", AskOptions{})
	if err != nil {
		t.Fatalf("execution failure must not fail Ask: %v", err)
	}
	if result.SQL != "SELECT * FROM users;" {
		t.Errorf("sql = %q, generated SQL must survive execution failure", result.SQL)
	}
	if result.Results != nil {
		t.Errorf("results = %v, want nil after failed execution", result.Results)
	}

	stats, _ := e.Store().Stats(ctx)
	if stats.QuestionSQL != 0 {
		t.Error("auto-training ran after failed execution")
	}
}

func TestAskAutoTrains(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{"SELECT COUNT(*) FROM users;"}}
	runSQL := func(context.Context, string) (any, error) {
		return []map[string]any{{"count": 42}}, nil
	}
	e := newTestEngine(t, model, runSQL)

	result, err := e.Ask(ctx, "count users", AskOptions{})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.Results == nil {
		t.Error("expected execution results")
	}

	stats, _ := e.Store().Stats(ctx)
	if stats.QuestionSQL != 1 {
		t.Errorf("expected auto-trained pair, stats %+v", stats)
	}

	snap, _ := e.Store().GetAll(ctx)
	if snap.QuestionSQL[0].Question != "count users" {
		t.Errorf("trained question = %q", snap.QuestionSQL[0].Question)
	}
}

func TestAskDisableAutoTrain(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{"SELECT 1;"}}
	runSQL := func(context.Context, string) (any, error) { return "ok", nil }
	e := newTestEngine(t, model, runSQL)

	if _, err := e.Ask(ctx, "q", AskOptions{DisableAutoTrain: true}); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	stats, _ := e.Store().Stats(ctx)
	if stats.QuestionSQL != 0 {
		t.Error("auto-training ran despite DisableAutoTrain")
	}
}

func TestAskGenerationFailure(t *testing.T) {
	model := &mockModel{err: errors.New("model unavailable")}
	e := newTestEngine(t, model, nil)

	result, err := e.Ask(context.Background(), "q", AskOptions{})
	if err == nil {
		t.Fatal("expected error when generation fails")
	}
	if result.SQL != "" {
		t.Errorf("sql = %q, want empty on generation failure", result.SQL)
	}
}

func TestGenerateSQLEmptyQuestion(t *testing.T) {
	e := newTestEngine(t, &mockModel{responses: []string{"SELECT 1;"}}, nil)
	if _, err := e.GenerateSQL(context.Background(), "   ", GenerateOptions{}); err == nil {
		t.Error("expected error for empty question")
	}
}

func TestGenerateSQLMetadata(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{
		"```sql\nSELECT o.id FROM orders o JOIN users u ON o.user_id = u.id;\n```\nExplanation: joins orders to users.",
	}}
	e := newTestEngine(t, model, nil)

	if _, err := e.Train(ctx, TrainRequest{DDL: "CREATE TABLE orders (id INT);"}); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	result, err := e.GenerateSQL(ctx, "order ids with owners", GenerateOptions{WithExplanation: true})
	if err != nil {
		t.Fatalf("GenerateSQL failed: %v", err)
	}
	if result.Metadata.QueryType != "SELECT" {
		t.Errorf("query type = %q", result.Metadata.QueryType)
	}
	if len(result.Metadata.Tables) != 2 {
		t.Errorf("tables = %v", result.Metadata.Tables)
	}
	if len(result.Metadata.Columns) != 0 {
		t.Errorf("columns = %v, want empty", result.Metadata.Columns)
	}
	if len(result.Metadata.RelatedDDL) != 1 {
		t.Errorf("retrieved ddl = %v", result.Metadata.RelatedDDL)
	}
	if result.Explanation != "joins orders to users." {
		t.Errorf("explanation = %q", result.Explanation)
	}
}

func TestGenerateSQLIntermediateRound(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{
		"```sql\n-- intermediate_sql\nSELECT DISTINCT status FROM orders;\n```",
		"```sql\nSELECT COUNT(*) FROM orders WHERE status = 'shipped';\n```",
	}}

	var executed []string
	runSQL := func(_ context.Context, sql string) (any, error) {
		executed = append(executed, sql)
		return []string{"shipped", "pending"}, nil
	}
	e := newTestEngine(t, model, runSQL)

	result, err := e.GenerateSQL(ctx, "how many shipped orders?", GenerateOptions{AllowLLMToSeeData: true})
	if err != nil {
		t.Fatalf("GenerateSQL failed: %v", err)
	}
	if result.SQL != "SELECT COUNT(*) FROM orders WHERE status = 'shipped';" {
		t.Errorf("final sql = %q", result.SQL)
	}
	if len(executed) != 1 || !strings.Contains(executed[0], "DISTINCT status") {
		t.Errorf("intermediate execution wrong: %v", executed)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2", model.calls)
	}

	// The second prompt must carry the intermediate results as context
	second := model.prompts[1]
	if !strings.Contains(second[0].Content, "shipped") {
		t.Error("intermediate results not injected into the second prompt")
	}
}

func TestGenerateSQLIntermediateNotAllowed(t *testing.T) {
	ctx := context.Background()
	marker := "```sql\n-- intermediate_sql\nSELECT DISTINCT status FROM orders;\n```"
	model := &mockModel{responses: []string{marker}}
	runSQL := func(context.Context, string) (any, error) {
		t.Fatal("intermediate query executed without permission")
		return nil, nil
	}
	e := newTestEngine(t, model, runSQL)

	result, err := e.GenerateSQL(ctx, "q", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateSQL failed: %v", err)
	}
	if !strings.Contains(result.SQL, "intermediate_sql") {
		t.Errorf("marker-bearing sql should be returned as is: %q", result.SQL)
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1", model.calls)
	}
}

func TestGenerateSQLIntermediateFailureKeepsSQL(t *testing.T) {
	ctx := context.Background()
	marker := "-- intermediate_sql\nSELECT DISTINCT status FROM orders;"
	model := &mockModel{responses: []string{"```sql\n" + marker + "\n```"}}
	runSQL := func(context.Context, string) (any, error) {
		return nil, errors.New("permission denied")
	}
	e := newTestEngine(t, model, runSQL)

	result, err := e.GenerateSQL(ctx, "q", GenerateOptions{AllowLLMToSeeData: true})
	if err != nil {
		t.Fatalf("GenerateSQL failed: %v", err)
	}
	if result.SQL != marker {
		t.Errorf("sql = %q, want the marker-bearing query kept", result.SQL)
	}
}

func TestGenerateSQLORMFormat(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{
		"```sql\nSELECT COUNT(*) FROM users;\n```",
		"```go\nvar n int64\ndb.Model(&User{}).Count(&n)\n```",
	}}
	e := newTestEngine(t, model, nil)

	result, err := e.GenerateSQL(ctx, "count users", GenerateOptions{OutputFormat: prompt.FormatORM})
	if err != nil {
		t.Fatalf("GenerateSQL failed: %v", err)
	}
	if !strings.Contains(result.ORMCode, "db.Model(&User{})") {
		t.Errorf("orm code = %q", result.ORMCode)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2 (generation + conversion)", model.calls)
	}
}

func TestGenerateSQLUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{"SELECT 1;"}}
	e := newTestEngine(t, model, nil)

	_, err := e.GenerateSQL(ctx, "count users", GenerateOptions{OutputFormat: "parquet"})
	if err == nil {
		t.Fatal("expected error for unsupported output format")
	}
	if !strings.Contains(err.Error(), "parquet") {
		t.Errorf("error should name the rejected format, got %v", err)
	}
	if model.calls != 0 {
		t.Errorf("model calls = %d, want 0 (format rejected before prompting)", model.calls)
	}

	for _, format := range []string{"", prompt.FormatSQL} {
		if _, err := e.GenerateSQL(ctx, "count users", GenerateOptions{OutputFormat: format}); err != nil {
			t.Errorf("GenerateSQL(format=%q) failed: %v", format, err)
		}
	}
}

func TestTrainDispatchPriority(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, &mockModel{responses: []string{"unused"}}, nil)

	status, err := e.Train(ctx, TrainRequest{
		Documentation: "Invoices are net-30.",
		DDL:           "CREATE TABLE invoices (id INT);",
	})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if !strings.Contains(status, "documentation") {
		t.Errorf("status = %q", status)
	}

	stats, _ := e.Store().Stats(ctx)
	if stats.Documentation != 1 {
		t.Errorf("documentation count = %d, want 1", stats.Documentation)
	}
	if stats.DDL != 0 {
		t.Errorf("ddl count = %d, want 0: lower-priority input must be ignored", stats.DDL)
	}
}

func TestTrainErrors(t *testing.T) {
	e := newTestEngine(t, &mockModel{responses: []string{"x"}}, nil)
	ctx := context.Background()

	t.Run("empty request", func(t *testing.T) {
		if _, err := e.Train(ctx, TrainRequest{}); err == nil {
			t.Error("expected error for empty training request")
		}
	})
	t.Run("question without sql", func(t *testing.T) {
		if _, err := e.Train(ctx, TrainRequest{Question: "count users"}); err == nil {
			t.Error("expected error for question without SQL")
		}
	})
}

func TestTrainSynthesizesQuestion(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{"How many users are there?"}}
	e := newTestEngine(t, model, nil)

	status, err := e.Train(ctx, TrainRequest{SQL: "SELECT COUNT(*) FROM users;"})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if !strings.Contains(status, "How many users are there?") {
		t.Errorf("status = %q", status)
	}

	snap, _ := e.Store().GetAll(ctx)
	if len(snap.QuestionSQL) != 1 || snap.QuestionSQL[0].Question != "How many users are there?" {
		t.Errorf("stored pair wrong: %+v", snap.QuestionSQL)
	}
}

func TestTrainPlan(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, &mockModel{responses: []string{"x"}}, nil)

	plan := &knowledge.TrainingPlan{Items: []knowledge.TrainingPlanItem{
		{Type: knowledge.PlanItemDDL, Name: "users", Value: "CREATE TABLE users (id INT);"},
		{Type: knowledge.PlanItemDocumentation, Name: "rules", Value: "Users must verify email."},
		{Type: knowledge.PlanItemQuestionSQL, Name: "count users", Value: "SELECT COUNT(*) FROM users;"},
	}}

	status, err := e.Train(ctx, TrainRequest{Plan: plan})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if lines := strings.Split(status, "\n"); len(lines) != 3 {
		t.Errorf("expected 3 status lines, got %d: %q", len(lines), status)
	}

	stats, _ := e.Store().Stats(ctx)
	if stats.Total != 3 || stats.DDL != 1 || stats.Documentation != 1 || stats.QuestionSQL != 1 {
		t.Errorf("unexpected stats after plan replay: %+v", stats)
	}
}

func TestTrainPlanUnknownType(t *testing.T) {
	e := newTestEngine(t, &mockModel{responses: []string{"x"}}, nil)
	plan := &knowledge.TrainingPlan{Items: []knowledge.TrainingPlanItem{{Type: "mystery", Value: "v"}}}
	if _, err := e.Train(context.Background(), TrainRequest{Plan: plan}); err == nil {
		t.Error("expected error for unknown plan item type")
	}
}

func TestScenarioTrainThenAsk(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{responses: []string{"SELECT COUNT(*) FROM users;"}}
	e := newTestEngine(t, model, nil)

	if _, err := e.Train(ctx, TrainRequest{DDL: "CREATE TABLE users (id SERIAL PRIMARY KEY, name VARCHAR(50));"}); err != nil {
		t.Fatalf("Train ddl failed: %v", err)
	}
	if _, err := e.Train(ctx, TrainRequest{Question: "count users", SQL: "SELECT COUNT(*) FROM users;"}); err != nil {
		t.Fatalf("Train pair failed: %v", err)
	}

	result, err := e.GenerateSQL(ctx, "how many users", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateSQL failed: %v", err)
	}

	// The single stored pair must come back as the only retrieved example
	if len(result.Metadata.SimilarQuestions) != 1 {
		t.Fatalf("similar questions = %d, want 1", len(result.Metadata.SimilarQuestions))
	}
	if result.Metadata.SimilarQuestions[0].Question != "count users" {
		t.Errorf("top example = %q", result.Metadata.SimilarQuestions[0].Question)
	}

	// And it must appear as a worked example in the prompt
	sent := model.prompts[0]
	foundExample := false
	for _, msg := range sent {
		if msg.Role == "assistant" && msg.Content == "SELECT COUNT(*) FROM users;" {
			foundExample = true
		}
	}
	if !foundExample {
		t.Error("worked example missing from prompt")
	}
}
