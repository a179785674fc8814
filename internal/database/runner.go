/*-------------------------------------------------------------------------
 *
 * SQLScribe - Query Runner
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package database provides the optional execution backend: a pgx pool
// wrapped as a RunSQL callback returning JSON-serializable rows.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sqlscribe/internal/logging"
)

// Runner executes generated SQL against a live PostgreSQL database
type Runner struct {
	pool *pgxpool.Pool
}

// Connect establishes the connection pool and verifies connectivity
func Connect(ctx context.Context, connStr string) (*Runner, error) {
	enhanced, err := addApplicationName(connStr, "sqlscribe")
	if err != nil {
		return nil, fmt.Errorf("unable to enhance connection string: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(enhanced)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &Runner{pool: pool}, nil
}

// Close releases the connection pool
func (r *Runner) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// RunSQL executes one statement and returns its rows as a slice of
// column-name to value maps. Statements without a result set return nil
// rows.
func (r *Runner) RunSQL(ctx context.Context, sql string) (any, error) {
	start := time.Now()

	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.Name
	}

	var results []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	logging.Debug("executed sql", "rows", len(results), "duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

// addApplicationName sets application_name in the connection string when
// the caller has not set one already
func addApplicationName(connStr, appName string) (string, error) {
	if strings.Contains(connStr, "application_name") {
		return connStr, nil
	}
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		sep := "?"
		if strings.Contains(connStr, "?") {
			sep = "&"
		}
		return connStr + sep + "application_name=" + appName, nil
	}
	if strings.TrimSpace(connStr) == "" {
		return "", fmt.Errorf("empty connection string")
	}
	return connStr + " application_name=" + appName, nil
}
