package ratings

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/connexus-ai/lexrag/internal/model"
)

type fakeRow struct {
	values []any
	err    error
}

func (f *fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = f.values[i].(string)
		case *int:
			*v = f.values[i].(int)
		case *time.Time:
			*v = f.values[i].(time.Time)
		}
	}
	return nil
}

func TestScanRating_Success(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	row := &fakeRow{values: []any{"q1", "user-1", int(model.RatingUp), now}}

	r, err := scanRating(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.QueryID != "q1" || r.UserID != "user-1" || r.Value != model.RatingUp || !r.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected rating: %+v", r)
	}
}

func TestScanRating_NoRowsIsNotAnError(t *testing.T) {
	row := &fakeRow{err: pgx.ErrNoRows}

	r, err := scanRating(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil rating on no rows, got %+v", r)
	}
}

func TestUpsert_RejectsInvalidValue(t *testing.T) {
	s := &Store{}
	err := s.Upsert(context.Background(), "q1", "user-1", model.RatingValue(42))
	if err != ErrInvalidValue {
		t.Fatalf("err = %v, want %v", err, ErrInvalidValue)
	}
}
