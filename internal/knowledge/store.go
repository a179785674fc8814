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

import "context"

// Store holds the three training collections (question/SQL pairs, DDL
// fragments, documentation fragments) behind one interface, regardless of
// backend. Both the in-memory reference implementation and the durable
// pgvector backend satisfy it, so callers never branch on the variant.
type Store interface {
	// AddQuestionSQL stores a confirmed question/SQL pair with its
	// embedding and returns the generated id
	AddQuestionSQL(ctx context.Context, question, sql string, embedding []float64) (string, error)

	// AddDDL stores a schema definition fragment with its embedding and
	// returns the generated id. The table name is extracted best-effort.
	AddDDL(ctx context.Context, ddl string, embedding []float64) (string, error)

	// AddDocumentation stores a documentation fragment with its embedding
	// and returns the generated id
	AddDocumentation(ctx context.Context, documentation string, embedding []float64) (string, error)

	// SimilarQuestionSQL returns up to limit pairs ranked by cosine
	// similarity to the query embedding, most similar first. Equal scores
	// preserve insertion order; items without embeddings are excluded.
	// A non-positive limit selects the collection default.
	SimilarQuestionSQL(ctx context.Context, embedding []float64, limit int) ([]QuestionSQLPair, error)

	// RelatedDDL returns up to limit DDL fragments ranked by similarity
	RelatedDDL(ctx context.Context, embedding []float64, limit int) ([]DDLItem, error)

	// RelatedDocumentation returns up to limit documentation fragments
	// ranked by similarity
	RelatedDocumentation(ctx context.Context, embedding []float64, limit int) ([]DocumentationItem, error)

	// Remove deletes the item with the given id from whichever collection
	// holds it; ids are not namespaced by collection. Returns true iff an
	// item was removed.
	Remove(ctx context.Context, id string) (bool, error)

	// GetAll returns a deep-copied snapshot of all three collections
	GetAll(ctx context.Context) (Snapshot, error)

	// Clear empties all three collections
	Clear(ctx context.Context) error

	// Stats returns per-collection counts
	Stats(ctx context.Context) (Stats, error)

	// Export serializes all three collections to JSON
	Export(ctx context.Context) ([]byte, error)

	// Import replaces a collection wholesale when its section is present
	// in the serialized data; absent sections leave the collection intact
	Import(ctx context.Context, data []byte) error
}
