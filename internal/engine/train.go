/*-------------------------------------------------------------------------
 *
 * SQLScribe - Train Dispatcher
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
	"strings"

	"sqlscribe/internal/knowledge"
	"sqlscribe/internal/llm"
	"sqlscribe/internal/logging"
)

// TrainRequest carries one training input. The fields are mutually
// exclusive and dispatched in a fixed priority order: Documentation, then
// SQL (with or without Question), then DDL, then Plan.
type TrainRequest struct {
	Question      string
	SQL           string
	DDL           string
	Documentation string
	Plan          *knowledge.TrainingPlan
}

// Train stores one training artifact and returns a status message.
// Embedding failures propagate; training is supervised, so a silent
// failure would hide data loss.
func (e *Engine) Train(ctx context.Context, req TrainRequest) (string, error) {
	switch {
	case req.Documentation != "":
		return e.trainDocumentation(ctx, req.Documentation)

	case req.SQL != "":
		return e.trainQuestionSQL(ctx, req.Question, req.SQL)

	case req.Question != "":
		return "", fmt.Errorf("question provided without SQL: a question alone has no retrievable answer to pair it with")

	case req.DDL != "":
		return e.trainDDL(ctx, req.DDL)

	case req.Plan != nil:
		return e.trainPlan(ctx, req.Plan)

	default:
		return "", fmt.Errorf("no training input provided: expected documentation, sql, ddl, or a training plan")
	}
}

func (e *Engine) trainDocumentation(ctx context.Context, documentation string) (string, error) {
	emb, err := e.embedder.Embed(ctx, documentation)
	if err != nil {
		return "", fmt.Errorf("failed to embed documentation: %w", err)
	}
	id, err := e.store.AddDocumentation(ctx, documentation, emb)
	if err != nil {
		return "", fmt.Errorf("failed to store documentation: %w", err)
	}
	return fmt.Sprintf("Added documentation (%s)", id), nil
}

func (e *Engine) trainQuestionSQL(ctx context.Context, question, sql string) (string, error) {
	if question == "" {
		synthesized, err := e.synthesizeQuestion(ctx, sql)
		if err != nil {
			return "", fmt.Errorf("failed to synthesize question for sql: %w", err)
		}
		question = synthesized
	}

	emb, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("failed to embed question: %w", err)
	}
	id, err := e.store.AddQuestionSQL(ctx, question, sql, emb)
	if err != nil {
		return "", fmt.Errorf("failed to store question/sql pair: %w", err)
	}
	return fmt.Sprintf("Added question/SQL pair (%s): %s", id, question), nil
}

func (e *Engine) trainDDL(ctx context.Context, ddl string) (string, error) {
	emb, err := e.embedder.Embed(ctx, ddl)
	if err != nil {
		return "", fmt.Errorf("failed to embed ddl: %w", err)
	}
	id, err := e.store.AddDDL(ctx, ddl, emb)
	if err != nil {
		return "", fmt.Errorf("failed to store ddl: %w", err)
	}
	return fmt.Sprintf("Added DDL (%s)", id), nil
}

// trainPlan replays each item in order, concatenating per-item statuses
func (e *Engine) trainPlan(ctx context.Context, plan *knowledge.TrainingPlan) (string, error) {
	var statuses []string
	for i, item := range plan.Items {
		var (
			status string
			err    error
		)
		switch item.Type {
		case knowledge.PlanItemDDL:
			status, err = e.trainDDL(ctx, item.Value)
		case knowledge.PlanItemDocumentation:
			status, err = e.trainDocumentation(ctx, item.Value)
		case knowledge.PlanItemQuestionSQL:
			status, err = e.trainQuestionSQL(ctx, item.Name, item.Value)
		default:
			err = fmt.Errorf("unknown plan item type %q", item.Type)
		}
		if err != nil {
			return "", fmt.Errorf("plan item %d (%s) failed: %w", i, item.Type, err)
		}
		statuses = append(statuses, status)
	}
	logging.Info("training plan replayed", "items", len(plan.Items))
	return strings.Join(statuses, "\n"), nil
}

// synthesizeQuestion asks the model what question a bare SQL statement
// answers, so the pair is still retrievable by question similarity
func (e *Engine) synthesizeQuestion(ctx context.Context, sql string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "Given a SQL query, state the natural-language question it answers. Respond with the question only, no punctuation-heavy preamble."},
		{Role: llm.RoleUser, Content: sql},
	}
	response, err := e.model.SubmitPrompt(ctx, messages)
	if err != nil {
		return "", err
	}
	question := strings.TrimSpace(response)
	if question == "" {
		return "", fmt.Errorf("model returned an empty question")
	}
	return question, nil
}
