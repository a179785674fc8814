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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sqlscribe/internal/schema"
)

// MemoryStore is the in-process reference implementation of Store. It keeps
// the three collections as ordered slices and ranks retrievals with an
// exhaustive cosine scan; it is not a performance-oriented vector index.
type MemoryStore struct {
	mu sync.RWMutex

	questionSQL   []QuestionSQLPair
	ddl           []DDLItem
	documentation []DocumentationItem
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory knowledge store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// newID generates a process-unique item id
func newID(kind string) string {
	return kind + "-" + uuid.NewString()
}

// AddQuestionSQL stores a question/SQL pair and returns its id
func (s *MemoryStore) AddQuestionSQL(_ context.Context, question, sql string, embedding []float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := QuestionSQLPair{
		ID:        newID("qs"),
		Question:  question,
		SQL:       sql,
		Embedding: cloneVector(embedding),
	}
	s.questionSQL = append(s.questionSQL, pair)
	return pair.ID, nil
}

// AddDDL stores a DDL fragment and returns its id
func (s *MemoryStore) AddDDL(_ context.Context, ddl string, embedding []float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := DDLItem{
		ID:        newID("ddl"),
		DDL:       ddl,
		TableName: schema.TableNameFromDDL(ddl),
		Embedding: cloneVector(embedding),
	}
	s.ddl = append(s.ddl, item)
	return item.ID, nil
}

// AddDocumentation stores a documentation fragment and returns its id
func (s *MemoryStore) AddDocumentation(_ context.Context, documentation string, embedding []float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := DocumentationItem{
		ID:            newID("doc"),
		Documentation: documentation,
		Title:         docTitle(documentation),
		Embedding:     cloneVector(embedding),
	}
	s.documentation = append(s.documentation, item)
	return item.ID, nil
}

// scored pairs an item index with its similarity for stable ranking
type scored struct {
	index      int
	similarity float64
}

// rank returns indexes of the top items by cosine similarity, descending,
// with insertion order breaking ties. Items whose embedding is absent are
// excluded from ranking entirely.
func rank(query []float64, count int, embeddingAt func(int) []float64, limit int) []int {
	candidates := make([]scored, 0, count)
	for i := 0; i < count; i++ {
		emb := embeddingAt(i)
		if len(emb) == 0 {
			continue
		}
		candidates = append(candidates, scored{index: i, similarity: CosineSimilarity(query, emb)})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].similarity > candidates[b].similarity
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	indexes := make([]int, len(candidates))
	for i, c := range candidates {
		indexes[i] = c.index
	}
	return indexes
}

// SimilarQuestionSQL returns the most similar stored pairs
func (s *MemoryStore) SimilarQuestionSQL(_ context.Context, embedding []float64, limit int) ([]QuestionSQLPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultQuestionSQLLimit
	}

	indexes := rank(embedding, len(s.questionSQL), func(i int) []float64 { return s.questionSQL[i].Embedding }, limit)
	results := make([]QuestionSQLPair, 0, len(indexes))
	for _, i := range indexes {
		results = append(results, clonePair(s.questionSQL[i]))
	}
	return results, nil
}

// RelatedDDL returns the most similar stored DDL fragments
func (s *MemoryStore) RelatedDDL(_ context.Context, embedding []float64, limit int) ([]DDLItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultDDLLimit
	}

	indexes := rank(embedding, len(s.ddl), func(i int) []float64 { return s.ddl[i].Embedding }, limit)
	results := make([]DDLItem, 0, len(indexes))
	for _, i := range indexes {
		results = append(results, cloneDDL(s.ddl[i]))
	}
	return results, nil
}

// RelatedDocumentation returns the most similar stored documentation
func (s *MemoryStore) RelatedDocumentation(_ context.Context, embedding []float64, limit int) ([]DocumentationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultDocumentationLimit
	}

	indexes := rank(embedding, len(s.documentation), func(i int) []float64 { return s.documentation[i].Embedding }, limit)
	results := make([]DocumentationItem, 0, len(indexes))
	for _, i := range indexes {
		results = append(results, cloneDoc(s.documentation[i]))
	}
	return results, nil
}

// Remove deletes an item by id from whichever collection holds it
func (s *MemoryStore) Remove(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, pair := range s.questionSQL {
		if pair.ID == id {
			s.questionSQL = append(s.questionSQL[:i], s.questionSQL[i+1:]...)
			return true, nil
		}
	}
	for i, item := range s.ddl {
		if item.ID == id {
			s.ddl = append(s.ddl[:i], s.ddl[i+1:]...)
			return true, nil
		}
	}
	for i, item := range s.documentation {
		if item.ID == id {
			s.documentation = append(s.documentation[:i], s.documentation[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// GetAll returns a deep-copied snapshot of all three collections
func (s *MemoryStore) GetAll(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

func (s *MemoryStore) snapshotLocked() Snapshot {
	snap := Snapshot{
		QuestionSQL:   make([]QuestionSQLPair, 0, len(s.questionSQL)),
		DDL:           make([]DDLItem, 0, len(s.ddl)),
		Documentation: make([]DocumentationItem, 0, len(s.documentation)),
	}
	for _, pair := range s.questionSQL {
		snap.QuestionSQL = append(snap.QuestionSQL, clonePair(pair))
	}
	for _, item := range s.ddl {
		snap.DDL = append(snap.DDL, cloneDDL(item))
	}
	for _, item := range s.documentation {
		snap.Documentation = append(snap.Documentation, cloneDoc(item))
	}
	return snap
}

// Clear empties all three collections
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.questionSQL = nil
	s.ddl = nil
	s.documentation = nil
	return nil
}

// Stats returns per-collection counts
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		QuestionSQL:   len(s.questionSQL),
		DDL:           len(s.ddl),
		Documentation: len(s.documentation),
		Total:         len(s.questionSQL) + len(s.ddl) + len(s.documentation),
	}, nil
}

// exportPayload is the serialized shape of a full store
type exportPayload struct {
	QuestionSQLPairs   []QuestionSQLPair   `json:"questionSQLPairs"`
	DDLItems           []DDLItem           `json:"ddlItems"`
	DocumentationItems []DocumentationItem `json:"documentationItems"`
	ExportedAt         string              `json:"exportedAt"`
}

// importPayload distinguishes absent sections (nil) from empty ones
type importPayload struct {
	QuestionSQLPairs   *[]QuestionSQLPair   `json:"questionSQLPairs"`
	DDLItems           *[]DDLItem           `json:"ddlItems"`
	DocumentationItems *[]DocumentationItem `json:"documentationItems"`
}

// Export serializes all three collections to JSON
func (s *MemoryStore) Export(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	snap := s.snapshotLocked()
	s.mu.RUnlock()

	payload := exportPayload{
		QuestionSQLPairs:   snap.QuestionSQL,
		DDLItems:           snap.DDL,
		DocumentationItems: snap.Documentation,
		ExportedAt:         time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize knowledge store: %w", err)
	}
	return data, nil
}

// Import replaces collections whose section is present in the data
func (s *MemoryStore) Import(_ context.Context, data []byte) error {
	var payload importPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to parse import data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if payload.QuestionSQLPairs != nil {
		s.questionSQL = append([]QuestionSQLPair(nil), *payload.QuestionSQLPairs...)
	}
	if payload.DDLItems != nil {
		s.ddl = append([]DDLItem(nil), *payload.DDLItems...)
	}
	if payload.DocumentationItems != nil {
		s.documentation = append([]DocumentationItem(nil), *payload.DocumentationItems...)
	}
	return nil
}

func cloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

func clonePair(p QuestionSQLPair) QuestionSQLPair {
	p.Embedding = cloneVector(p.Embedding)
	return p
}

func cloneDDL(d DDLItem) DDLItem {
	d.Embedding = cloneVector(d.Embedding)
	return d
}

func cloneDoc(d DocumentationItem) DocumentationItem {
	d.Embedding = cloneVector(d.Embedding)
	return d
}
