package querystore

import (
	"testing"
	"time"
)

// fakeRow implements rowScanner by copying canned values into Scan's
// destination pointers, in column order — enough to exercise scanRecord's
// null-handling without a live Postgres connection.
type fakeRow struct {
	values []any
}

func (f *fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		if i >= len(f.values) {
			break
		}
		assign(d, f.values[i])
	}
	return nil
}

func assign(dest, value any) {
	switch d := dest.(type) {
	case *string:
		*d = value.(string)
	case **string:
		if value == nil {
			*d = nil
		} else if p, ok := value.(*string); ok {
			*d = p
		} else {
			v := value.(string)
			*d = &v
		}
	case *time.Time:
		*d = value.(time.Time)
	case **int64:
		if value == nil {
			*d = nil
		} else if p, ok := value.(*int64); ok {
			*d = p
		} else {
			v := value.(int64)
			*d = &v
		}
	case *[]byte:
		if value == nil {
			*d = nil
		} else {
			*d = value.([]byte)
		}
	}
}

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }

func TestScanRecord_NoFastOrAccurateYet(t *testing.T) {
	row := &fakeRow{values: []any{
		"q1", "u1", "question?", time.Now(),
		nil, nil, nil, []byte(nil),
		nil, nil, nil,
	}}

	rec, err := scanRecord(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Fast != nil {
		t.Fatalf("expected no fast tier, got %+v", rec.Fast)
	}
	if rec.Accurate != nil {
		t.Fatalf("expected no accurate tier, got %+v", rec.Accurate)
	}
}

func TestScanRecord_FastOnly(t *testing.T) {
	row := &fakeRow{values: []any{
		"q1", "u1", "question?", time.Now(),
		strPtr("answer text"), strPtr("fast-model"), i64Ptr(1200), []byte(`[]`),
		nil, nil, nil,
	}}

	rec, err := scanRecord(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Fast == nil || rec.Fast.Content != "answer text" {
		t.Fatalf("expected fast tier populated, got %+v", rec.Fast)
	}
	if rec.Accurate != nil {
		t.Fatalf("expected accurate tier still empty (invariant: accurate implies fast, not the reverse), got %+v", rec.Accurate)
	}
}

func TestScanRecord_FastAndAccurate(t *testing.T) {
	row := &fakeRow{values: []any{
		"q1", "u1", "question?", time.Now(),
		strPtr("fast answer"), strPtr("fast-model"), i64Ptr(1200), []byte(`[]`),
		strPtr("accurate answer"), strPtr("accurate-model"), i64Ptr(90000),
	}}

	rec, err := scanRecord(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Fast == nil || rec.Accurate == nil {
		t.Fatalf("expected both tiers populated, got fast=%+v accurate=%+v", rec.Fast, rec.Accurate)
	}
	if rec.Accurate.ModelName != "accurate-model" {
		t.Fatalf("unexpected accurate model name: %q", rec.Accurate.ModelName)
	}
}
