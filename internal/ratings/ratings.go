// Package ratings implements the cross-cutting ratings contract named in
// spec.md §1/§8: a per-(query, user) thumbs up/down judgment, idempotent
// under repeated upsert with the same value.
package ratings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/lexrag/internal/model"
)

// ErrInvalidValue is returned when Upsert is called with a RatingValue other
// than RatingUp or RatingDown.
var ErrInvalidValue = errors.New("ratings: value must be RatingUp or RatingDown")

// ErrNotFound is returned by Delete when no rating exists for the given
// query and user.
var ErrNotFound = errors.New("ratings: not found")

// Store is the ratings repository.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert creates or updates the (queryID, userID) rating. Repeating the
// same value is observably equivalent to doing it once, aside from
// updatedAt, per spec.md §8's idempotence law.
func (s *Store) Upsert(ctx context.Context, queryID, userID string, value model.RatingValue) error {
	if value != model.RatingUp && value != model.RatingDown {
		return ErrInvalidValue
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ratings (query_id, user_id, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (query_id, user_id)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		queryID, userID, int(value),
	)
	if err != nil {
		return fmt.Errorf("ratings.Upsert: %w", err)
	}
	return nil
}

// rowScanner is satisfied by pgx.Row and by test doubles.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRating reads one (query_id, user_id, value, updated_at) row.
func scanRating(row rowScanner) (*model.Rating, error) {
	var r model.Rating
	var value int
	if err := row.Scan(&r.QueryID, &r.UserID, &value, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.Value = model.RatingValue(value)
	return &r, nil
}

// Get returns the rating for (queryID, userID), or (nil, nil) if none exists.
func (s *Store) Get(ctx context.Context, queryID, userID string) (*model.Rating, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT query_id, user_id, value, updated_at
		FROM ratings
		WHERE query_id = $1 AND user_id = $2`,
		queryID, userID,
	)

	r, err := scanRating(row)
	if err != nil {
		return nil, fmt.Errorf("ratings.Get: %w", err)
	}
	return r, nil
}

// ListByQuery returns every rating recorded against queryID.
func (s *Store) ListByQuery(ctx context.Context, queryID string) ([]model.Rating, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT query_id, user_id, value, updated_at
		FROM ratings
		WHERE query_id = $1
		ORDER BY updated_at DESC`,
		queryID,
	)
	if err != nil {
		return nil, fmt.Errorf("ratings.ListByQuery: %w", err)
	}
	defer rows.Close()

	var out []model.Rating
	for rows.Next() {
		var r model.Rating
		var value int
		if err := rows.Scan(&r.QueryID, &r.UserID, &value, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ratings.ListByQuery: %w", err)
		}
		r.Value = model.RatingValue(value)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ratings.ListByQuery: %w", err)
	}
	return out, nil
}

// Delete removes the (queryID, userID) rating. Deleting a rating that does
// not exist is a no-op returning ErrNotFound rather than failing — it never
// panics or returns a generic driver error for a missing row.
func (s *Store) Delete(ctx context.Context, queryID, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM ratings WHERE query_id = $1 AND user_id = $2`,
		queryID, userID,
	)
	if err != nil {
		return fmt.Errorf("ratings.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
