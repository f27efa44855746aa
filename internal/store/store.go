// Package store caches analysis history in PostgreSQL so dashboards and
// history views can be rebuilt without the analysis service.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can use pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateSchema = `
        CREATE TABLE IF NOT EXISTS analysis_results (
            id TEXT PRIMARY KEY,
            input_type TEXT NOT NULL,
            content TEXT NOT NULL,
            risk_score INTEGER NOT NULL,
            vulnerabilities JSONB NOT NULL DEFAULT '[]'::jsonb,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            cached_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );
        CREATE INDEX IF NOT EXISTS analysis_results_created_at_idx ON analysis_results (created_at DESC);
    `

	sqlUpsertResult = `
        INSERT INTO analysis_results (id, input_type, content, risk_score, vulnerabilities, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            input_type = EXCLUDED.input_type,
            content = EXCLUDED.content,
            risk_score = EXCLUDED.risk_score,
            vulnerabilities = EXCLUDED.vulnerabilities,
            created_at = EXCLUDED.created_at,
            updated_at = EXCLUDED.updated_at,
            cached_at = now();
    `

	sqlSelectResults = `
        SELECT id, input_type, content, risk_score, vulnerabilities, created_at, updated_at
        FROM analysis_results`

	sqlCountResults = `SELECT count(*) FROM analysis_results;`
)

// Query narrows ListResults. The zero value lists everything.
type Query struct {
	InputTypes []schemas.InputType
	Limit      int
}

// Store is the PostgreSQL result cache.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the cache table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateSchema); err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// SaveResults upserts every result in a single transaction. createdAt and
// updatedAt are stored verbatim so malformed values survive a round trip.
func (s *Store) SaveResults(ctx context.Context, results []schemas.AnalysisResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	for i, r := range results {
		if r.ID == "" {
			return 0, fmt.Errorf("result at index %d: %w", i, schemas.ErrMissingID)
		}
		vulns, err := encodeVulnerabilities(r.Vulnerabilities)
		if err != nil {
			return 0, fmt.Errorf("failed to encode vulnerabilities for result %s: %w", r.ID, err)
		}
		if _, err := tx.Exec(ctx, sqlUpsertResult,
			r.ID, string(r.InputType), r.Content, r.RiskScore, vulns, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert result %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Cached analysis results", zap.Int("count", len(results)))
	return len(results), nil
}

// ListResults returns cached results newest first by the stored createdAt
// string, ties broken by id.
func (s *Store) ListResults(ctx context.Context, q Query) ([]schemas.AnalysisResult, error) {
	query, args := buildListQuery(q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	out := []schemas.AnalysisResult{}
	for rows.Next() {
		var (
			r         schemas.AnalysisResult
			inputType string
			vulns     []byte
		)
		if err := rows.Scan(&r.ID, &inputType, &r.Content, &r.RiskScore, &vulns, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.InputType = schemas.InputType(inputType)
		if r.Vulnerabilities, err = decodeVulnerabilities(vulns); err != nil {
			return nil, fmt.Errorf("failed to decode vulnerabilities for result %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// History lists the whole cache, making the store a drop-in source for the
// results pipeline.
func (s *Store) History(ctx context.Context) ([]schemas.AnalysisResult, error) {
	return s.ListResults(ctx, Query{})
}

// Count returns the number of cached results.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, sqlCountResults).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return int(n), nil
}

func buildListQuery(q Query) (string, []interface{}) {
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(sqlSelectResults)
	if len(q.InputTypes) > 0 {
		types := make([]string, len(q.InputTypes))
		for i, t := range q.InputTypes {
			types[i] = string(t)
		}
		args = append(args, types)
		fmt.Fprintf(&sb, "\n        WHERE input_type = ANY($%d)", len(args))
	}
	sb.WriteString("\n        ORDER BY created_at DESC, id ASC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, "\n        LIMIT $%d", len(args))
	}
	sb.WriteString(";")
	return sb.String(), args
}

func encodeVulnerabilities(v []schemas.Vulnerability) ([]byte, error) {
	if v == nil {
		v = []schemas.Vulnerability{}
	}
	return json.Marshal(v)
}

func decodeVulnerabilities(raw []byte) ([]schemas.Vulnerability, error) {
	out := []schemas.Vulnerability{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
