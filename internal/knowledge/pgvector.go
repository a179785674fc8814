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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"sqlscribe/internal/logging"
	"sqlscribe/internal/schema"
)

// Sentinel errors for calls made before the store is usable
var (
	ErrNotConnected   = errors.New("pgvector store is not connected: call Connect first")
	ErrNotInitialized = errors.New("pgvector store schema is not initialized: call Init first")
)

const (
	// DefaultSimilarityThreshold filters durable-store retrievals; items
	// below it are not returned even when the limit is not reached
	DefaultSimilarityThreshold = 0.7

	// DefaultPgDimensions is the embedding column width when unspecified
	DefaultPgDimensions = 384
)

// PgvectorConfig holds connection and retrieval settings for the durable
// backend. Plumbing beyond these knobs (TLS, pgpass) follows pgx defaults.
type PgvectorConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// SchemaName is the Postgres schema holding the three tables
	// (default: sqlscribe)
	SchemaName string

	// Dimensions is the vector column width; must match the embedding
	// provider (default: 384)
	Dimensions int

	// SimilarityThreshold filters retrieval results (default: 0.7)
	SimilarityThreshold float64

	PoolMaxConns int
}

// PgvectorStore is the durable Store backend over Postgres + pgvector.
// Connect establishes the pool and Init creates the schema; every other
// method fails with a sentinel error until both have succeeded.
type PgvectorStore struct {
	cfg  PgvectorConfig
	pool *pgxpool.Pool

	initialized bool
}

var _ Store = (*PgvectorStore)(nil)

// NewPgvectorStore creates an unconnected durable store
func NewPgvectorStore(cfg PgvectorConfig) *PgvectorStore {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.Database == "" {
		cfg.Database = "postgres"
	}
	if cfg.SchemaName == "" {
		cfg.SchemaName = "sqlscribe"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultPgDimensions
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = 4
	}
	return &PgvectorStore{cfg: cfg}
}

// Connect establishes the connection pool and verifies connectivity
func (s *PgvectorStore) Connect(ctx context.Context) error {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s pool_max_conns=%d",
		s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password, s.cfg.Database, s.cfg.PoolMaxConns,
	)

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("failed to parse connection config: %w", err)
	}

	// Register pgvector types on every new connection so vector columns
	// scan and bind natively
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.pool = pool
	logging.Info("pgvector store connected",
		"host", s.cfg.Host, "database", s.cfg.Database, "schema", s.cfg.SchemaName)
	return nil
}

// Init creates the vector extension, schema, tables, and ANN indexes.
// It is idempotent and must run once before the store is used.
func (s *PgvectorStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return ErrNotConnected
	}

	ddl := fmt.Sprintf(`
    CREATE EXTENSION IF NOT EXISTS vector;
    CREATE SCHEMA IF NOT EXISTS %[1]s;

    CREATE TABLE IF NOT EXISTS %[1]s.question_sql (
        id TEXT PRIMARY KEY,
        seq BIGINT GENERATED ALWAYS AS IDENTITY,
        question TEXT NOT NULL,
        sql_text TEXT NOT NULL,
        embedding vector(%[2]d),
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );

    CREATE TABLE IF NOT EXISTS %[1]s.ddl_items (
        id TEXT PRIMARY KEY,
        seq BIGINT GENERATED ALWAYS AS IDENTITY,
        ddl TEXT NOT NULL,
        table_name TEXT,
        embedding vector(%[2]d),
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );

    CREATE TABLE IF NOT EXISTS %[1]s.documentation_items (
        id TEXT PRIMARY KEY,
        seq BIGINT GENERATED ALWAYS AS IDENTITY,
        documentation TEXT NOT NULL,
        title TEXT,
        embedding vector(%[2]d),
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );

    CREATE INDEX IF NOT EXISTS idx_question_sql_embedding
        ON %[1]s.question_sql USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
    CREATE INDEX IF NOT EXISTS idx_ddl_items_embedding
        ON %[1]s.ddl_items USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
    CREATE INDEX IF NOT EXISTS idx_documentation_items_embedding
        ON %[1]s.documentation_items USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
    `, pgx.Identifier{s.cfg.SchemaName}.Sanitize(), s.cfg.Dimensions)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize pgvector schema: %w", err)
	}

	s.initialized = true
	return nil
}

// Close releases the connection pool
func (s *PgvectorStore) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
		s.initialized = false
	}
}

// ready guards every data operation
func (s *PgvectorStore) ready() error {
	if s.pool == nil {
		return ErrNotConnected
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (s *PgvectorStore) table(name string) string {
	return pgx.Identifier{s.cfg.SchemaName, name}.Sanitize()
}

// toVector converts an embedding to the pgvector wire type; nil stays nil
// so items without embeddings store a NULL column
func toVector(embedding []float64) any {
	if len(embedding) == 0 {
		return nil
	}
	v := make([]float32, len(embedding))
	for i, f := range embedding {
		v[i] = float32(f)
	}
	vec := pgvector.NewVector(v)
	return vec
}

// fromVector converts a scanned vector column back to []float64
func fromVector(vec *pgvector.Vector) []float64 {
	if vec == nil {
		return nil
	}
	slice := vec.Slice()
	if len(slice) == 0 {
		return nil
	}
	out := make([]float64, len(slice))
	for i, f := range slice {
		out[i] = float64(f)
	}
	return out
}

// AddQuestionSQL stores a question/SQL pair and returns its id
func (s *PgvectorStore) AddQuestionSQL(ctx context.Context, question, sql string, embedding []float64) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	id := newID("qs")
	query := fmt.Sprintf(
		"INSERT INTO %s (id, question, sql_text, embedding) VALUES ($1, $2, $3, $4)",
		s.table("question_sql"))
	if _, err := s.pool.Exec(ctx, query, id, question, sql, toVector(embedding)); err != nil {
		return "", fmt.Errorf("failed to insert question/sql pair: %w", err)
	}
	return id, nil
}

// AddDDL stores a DDL fragment and returns its id
func (s *PgvectorStore) AddDDL(ctx context.Context, ddl string, embedding []float64) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	id := newID("ddl")
	tableName := schema.TableNameFromDDL(ddl)
	query := fmt.Sprintf(
		"INSERT INTO %s (id, ddl, table_name, embedding) VALUES ($1, $2, NULLIF($3, ''), $4)",
		s.table("ddl_items"))
	if _, err := s.pool.Exec(ctx, query, id, ddl, tableName, toVector(embedding)); err != nil {
		return "", fmt.Errorf("failed to insert ddl item: %w", err)
	}
	return id, nil
}

// AddDocumentation stores a documentation fragment and returns its id
func (s *PgvectorStore) AddDocumentation(ctx context.Context, documentation string, embedding []float64) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	id := newID("doc")
	query := fmt.Sprintf(
		"INSERT INTO %s (id, documentation, title, embedding) VALUES ($1, $2, NULLIF($3, ''), $4)",
		s.table("documentation_items"))
	if _, err := s.pool.Exec(ctx, query, id, documentation, docTitle(documentation), toVector(embedding)); err != nil {
		return "", fmt.Errorf("failed to insert documentation item: %w", err)
	}
	return id, nil
}

// SimilarQuestionSQL runs a ranked cosine search with the configured
// similarity threshold
func (s *PgvectorStore) SimilarQuestionSQL(ctx context.Context, embedding []float64, limit int) ([]QuestionSQLPair, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultQuestionSQLLimit
	}

	query := fmt.Sprintf(`
        SELECT id, question, sql_text, embedding
        FROM %s
        WHERE embedding IS NOT NULL
          AND 1 - (embedding <=> $1) >= $2
        ORDER BY embedding <=> $1, seq
        LIMIT $3`, s.table("question_sql"))

	rows, err := s.pool.Query(ctx, query, toVector(embedding), s.cfg.SimilarityThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []QuestionSQLPair
	for rows.Next() {
		var pair QuestionSQLPair
		var vec pgvector.Vector
		if err := rows.Scan(&pair.ID, &pair.Question, &pair.SQL, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan question/sql row: %w", err)
		}
		pair.Embedding = fromVector(&vec)
		results = append(results, pair)
	}
	return results, rows.Err()
}

// RelatedDDL runs a ranked cosine search over DDL fragments
func (s *PgvectorStore) RelatedDDL(ctx context.Context, embedding []float64, limit int) ([]DDLItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultDDLLimit
	}

	query := fmt.Sprintf(`
        SELECT id, ddl, COALESCE(table_name, ''), embedding
        FROM %s
        WHERE embedding IS NOT NULL
          AND 1 - (embedding <=> $1) >= $2
        ORDER BY embedding <=> $1, seq
        LIMIT $3`, s.table("ddl_items"))

	rows, err := s.pool.Query(ctx, query, toVector(embedding), s.cfg.SimilarityThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []DDLItem
	for rows.Next() {
		var item DDLItem
		var vec pgvector.Vector
		if err := rows.Scan(&item.ID, &item.DDL, &item.TableName, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan ddl row: %w", err)
		}
		item.Embedding = fromVector(&vec)
		results = append(results, item)
	}
	return results, rows.Err()
}

// RelatedDocumentation runs a ranked cosine search over documentation
func (s *PgvectorStore) RelatedDocumentation(ctx context.Context, embedding []float64, limit int) ([]DocumentationItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultDocumentationLimit
	}

	query := fmt.Sprintf(`
        SELECT id, documentation, COALESCE(title, ''), embedding
        FROM %s
        WHERE embedding IS NOT NULL
          AND 1 - (embedding <=> $1) >= $2
        ORDER BY embedding <=> $1, seq
        LIMIT $3`, s.table("documentation_items"))

	rows, err := s.pool.Query(ctx, query, toVector(embedding), s.cfg.SimilarityThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []DocumentationItem
	for rows.Next() {
		var item DocumentationItem
		var vec pgvector.Vector
		if err := rows.Scan(&item.ID, &item.Documentation, &item.Title, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan documentation row: %w", err)
		}
		item.Embedding = fromVector(&vec)
		results = append(results, item)
	}
	return results, rows.Err()
}

// Remove deletes an item by id, checking all three tables
func (s *PgvectorStore) Remove(ctx context.Context, id string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}

	for _, table := range []string{"question_sql", "ddl_items", "documentation_items"} {
		tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table(table)), id)
		if err != nil {
			return false, fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		if tag.RowsAffected() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// GetAll returns every stored item in insertion order
func (s *PgvectorStore) GetAll(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := s.ready(); err != nil {
		return snap, err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		"SELECT id, question, sql_text, embedding FROM %s ORDER BY seq", s.table("question_sql")))
	if err != nil {
		return snap, fmt.Errorf("failed to query question/sql pairs: %w", err)
	}
	for rows.Next() {
		var pair QuestionSQLPair
		var vec *pgvector.Vector
		if err := rows.Scan(&pair.ID, &pair.Question, &pair.SQL, &vec); err != nil {
			rows.Close()
			return snap, fmt.Errorf("failed to scan question/sql row: %w", err)
		}
		pair.Embedding = fromVector(vec)
		snap.QuestionSQL = append(snap.QuestionSQL, pair)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = s.pool.Query(ctx, fmt.Sprintf(
		"SELECT id, ddl, COALESCE(table_name, ''), embedding FROM %s ORDER BY seq", s.table("ddl_items")))
	if err != nil {
		return snap, fmt.Errorf("failed to query ddl items: %w", err)
	}
	for rows.Next() {
		var item DDLItem
		var vec *pgvector.Vector
		if err := rows.Scan(&item.ID, &item.DDL, &item.TableName, &vec); err != nil {
			rows.Close()
			return snap, fmt.Errorf("failed to scan ddl row: %w", err)
		}
		item.Embedding = fromVector(vec)
		snap.DDL = append(snap.DDL, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = s.pool.Query(ctx, fmt.Sprintf(
		"SELECT id, documentation, COALESCE(title, ''), embedding FROM %s ORDER BY seq", s.table("documentation_items")))
	if err != nil {
		return snap, fmt.Errorf("failed to query documentation items: %w", err)
	}
	for rows.Next() {
		var item DocumentationItem
		var vec *pgvector.Vector
		if err := rows.Scan(&item.ID, &item.Documentation, &item.Title, &vec); err != nil {
			rows.Close()
			return snap, fmt.Errorf("failed to scan documentation row: %w", err)
		}
		item.Embedding = fromVector(vec)
		snap.Documentation = append(snap.Documentation, item)
	}
	rows.Close()
	return snap, rows.Err()
}

// Clear empties all three tables
func (s *PgvectorStore) Clear(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	query := fmt.Sprintf("TRUNCATE %s, %s, %s",
		s.table("question_sql"), s.table("ddl_items"), s.table("documentation_items"))
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to clear knowledge store: %w", err)
	}
	return nil
}

// Stats returns per-collection counts
func (s *PgvectorStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.ready(); err != nil {
		return stats, err
	}

	query := fmt.Sprintf(`
        SELECT
            (SELECT COUNT(*) FROM %s),
            (SELECT COUNT(*) FROM %s),
            (SELECT COUNT(*) FROM %s)`,
		s.table("question_sql"), s.table("ddl_items"), s.table("documentation_items"))

	if err := s.pool.QueryRow(ctx, query).Scan(&stats.QuestionSQL, &stats.DDL, &stats.Documentation); err != nil {
		return stats, fmt.Errorf("failed to count knowledge items: %w", err)
	}
	stats.Total = stats.QuestionSQL + stats.DDL + stats.Documentation
	return stats, nil
}

// Export serializes all three tables to the portable JSON shape
func (s *PgvectorStore) Export(ctx context.Context) ([]byte, error) {
	snap, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}

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

// Import replaces tables whose section is present in the data
func (s *PgvectorStore) Import(ctx context.Context, data []byte) error {
	if err := s.ready(); err != nil {
		return err
	}

	var payload importPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to parse import data: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if payload.QuestionSQLPairs != nil {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table("question_sql"))); err != nil {
			return fmt.Errorf("failed to replace question/sql pairs: %w", err)
		}
		for _, pair := range *payload.QuestionSQLPairs {
			_, err := tx.Exec(ctx, fmt.Sprintf(
				"INSERT INTO %s (id, question, sql_text, embedding) VALUES ($1, $2, $3, $4)",
				s.table("question_sql")),
				pair.ID, pair.Question, pair.SQL, toVector(pair.Embedding))
			if err != nil {
				return fmt.Errorf("failed to import question/sql pair %s: %w", pair.ID, err)
			}
		}
	}

	if payload.DDLItems != nil {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table("ddl_items"))); err != nil {
			return fmt.Errorf("failed to replace ddl items: %w", err)
		}
		for _, item := range *payload.DDLItems {
			_, err := tx.Exec(ctx, fmt.Sprintf(
				"INSERT INTO %s (id, ddl, table_name, embedding) VALUES ($1, $2, NULLIF($3, ''), $4)",
				s.table("ddl_items")),
				item.ID, item.DDL, item.TableName, toVector(item.Embedding))
			if err != nil {
				return fmt.Errorf("failed to import ddl item %s: %w", item.ID, err)
			}
		}
	}

	if payload.DocumentationItems != nil {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table("documentation_items"))); err != nil {
			return fmt.Errorf("failed to replace documentation items: %w", err)
		}
		for _, item := range *payload.DocumentationItems {
			_, err := tx.Exec(ctx, fmt.Sprintf(
				"INSERT INTO %s (id, documentation, title, embedding) VALUES ($1, $2, NULLIF($3, ''), $4)",
				s.table("documentation_items")),
				item.ID, item.Documentation, item.Title, toVector(item.Embedding))
			if err != nil {
				return fmt.Errorf("failed to import documentation item %s: %w", item.ID, err)
			}
		}
	}

	return tx.Commit(ctx)
}
