// Package querystore implements the Query Store (C5): the persistent,
// progressively-updated record of each question a user asked and the
// fast/accurate answers produced for it.
package querystore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/lexrag/internal/model"
)

// Store is the Query Store (C5).
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new QueryRecord in the initial state (no fast/accurate
// slot populated yet) and returns its generated id.
func (s *Store) Create(ctx context.Context, userID, questionText string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queries (id, user_id, question_text, created_at)
		VALUES ($1, $2, $3, now())`,
		id, userID, questionText,
	)
	if err != nil {
		return "", fmt.Errorf("querystore.Create: %w", err)
	}
	return id, nil
}

// GetByID returns the record, scoped to userID. Returns (nil, nil) when no
// matching row exists, mirroring the teacher's ErrNoRows-to-nil convention.
func (s *Store) GetByID(ctx context.Context, queryID, userID string) (*model.QueryRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, question_text, created_at,
			fast_content, fast_model_name, fast_generation_ms, fast_sources,
			accurate_content, accurate_model_name, accurate_generation_ms
		FROM queries WHERE id = $1 AND user_id = $2`, queryID, userID)

	rec, err := scanRecord(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querystore.GetByID: %w", err)
	}
	return rec, nil
}

// ListByUser returns a page of records for userID, most recent first by
// default, plus the total matching count for pagination.
func (s *Store) ListByUser(ctx context.Context, userID string, page, perPage int, order string) ([]model.QueryRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if order != "asc" {
		order = "desc"
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM queries WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("querystore.ListByUser: count: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, question_text, created_at,
			fast_content, fast_model_name, fast_generation_ms, fast_sources,
			accurate_content, accurate_model_name, accurate_generation_ms
		FROM queries WHERE user_id = $1
		ORDER BY created_at %s
		LIMIT $2 OFFSET $3`, order)

	rows, err := s.pool.Query(ctx, query, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("querystore.ListByUser: %w", err)
	}
	defer rows.Close()

	var records []model.QueryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("querystore.ListByUser: scan: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("querystore.ListByUser: %w", err)
	}

	return records, total, nil
}

// UpdateFast populates the fast response slot. Per the store's invariant
// ordering, this must only ever be called after Create and before
// UpdateAccurate.
func (s *Store) UpdateFast(ctx context.Context, queryID string, content string, sources []model.Source, modelName string, generationMs int64) error {
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("querystore.UpdateFast: marshal sources: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE queries
		SET fast_content = $1, fast_model_name = $2, fast_generation_ms = $3, fast_sources = $4
		WHERE id = $5`,
		content, modelName, generationMs, sourcesJSON, queryID,
	)
	if err != nil {
		return fmt.Errorf("querystore.UpdateFast: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("querystore.UpdateFast: no record with id %s", queryID)
	}
	return nil
}

// UpdateAccurate populates the accurate response slot.
func (s *Store) UpdateAccurate(ctx context.Context, queryID string, content string, modelName string, generationMs int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queries
		SET accurate_content = $1, accurate_model_name = $2, accurate_generation_ms = $3
		WHERE id = $4`,
		content, modelName, generationMs, queryID,
	)
	if err != nil {
		return fmt.Errorf("querystore.UpdateAccurate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("querystore.UpdateAccurate: no record with id %s", queryID)
	}
	return nil
}

// Delete removes a user-scoped record. Idempotent: deleting an
// already-absent id is not an error, but the returned bool reports whether
// a row actually existed.
func (s *Store) Delete(ctx context.Context, queryID, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM queries WHERE id = $1 AND user_id = $2`, queryID, userID)
	if err != nil {
		return false, fmt.Errorf("querystore.Delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// rowScanner abstracts over pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.QueryRecord, error) {
	var rec model.QueryRecord
	var fastContent, fastModelName *string
	var fastGenerationMs *int64
	var fastSourcesJSON []byte
	var accurateContent, accurateModelName *string
	var accurateGenerationMs *int64

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.QuestionText, &rec.CreatedAt,
		&fastContent, &fastModelName, &fastGenerationMs, &fastSourcesJSON,
		&accurateContent, &accurateModelName, &accurateGenerationMs,
	)
	if err != nil {
		return nil, err
	}

	if fastContent != nil {
		rec.Fast = &model.ResponseTier{
			Content:   *fastContent,
			ModelName: derefStr(fastModelName),
		}
		if fastGenerationMs != nil {
			rec.Fast.GenerationMs = *fastGenerationMs
		}
		if len(fastSourcesJSON) > 0 {
			var sources []model.Source
			if err := json.Unmarshal(fastSourcesJSON, &sources); err == nil {
				rec.Fast.Sources = sources
			}
		}
	}

	if accurateContent != nil {
		rec.Accurate = &model.ResponseTier{
			Content:   *accurateContent,
			ModelName: derefStr(accurateModelName),
		}
		if accurateGenerationMs != nil {
			rec.Accurate.GenerationMs = *accurateGenerationMs
		}
	}

	return &rec, nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
