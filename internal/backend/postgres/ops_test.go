package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

func TestPrefilterClause(t *testing.T) {
	t.Parallel()

	where, args := prefilterClause(query.Prefilter{})
	if where != "" || args != nil {
		t.Fatalf("empty prefilter: got %q %v", where, args)
	}

	where, args = prefilterClause(query.Prefilter{Label: "Person"})
	if where != " WHERE label = $1" || len(args) != 1 {
		t.Fatalf("label only: got %q %v", where, args)
	}

	where, args = prefilterClause(query.Prefilter{
		Label:  "Person",
		Equals: map[string]any{"team": "x", "tags": []any{"a"}},
	})
	if !strings.Contains(where, "properties @> $2::jsonb") || len(args) != 2 {
		t.Fatalf("label and equals: got %q %v", where, args)
	}

	if string(args[1].([]byte)) != `{"team":"x"}` {
		t.Errorf("non-scalar values must stay with the evaluator, got %s", args[1])
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		check  func(error) bool
		expect string
	}{
		{
			name:   "unique violation",
			err:    &pgconn.PgError{Code: "23505", Detail: "Key (id)=(n1) already exists."},
			check:  func(err error) bool { return errors.Is(err, models.ErrDuplicateKey) },
			expect: "ErrDuplicateKey",
		},
		{
			name:   "foreign key violation",
			err:    fmt.Errorf("inserting edge: %w", &pgconn.PgError{Code: "23503"}),
			check:  func(err error) bool { return errors.Is(err, models.ErrNodeNotFound) },
			expect: "ErrNodeNotFound",
		},
		{
			name:   "auth failure",
			err:    &pgconn.PgError{Code: "28P01"},
			check:  func(err error) bool { return models.IsRetryable(err) },
			expect: "ConnectionError",
		},
		{
			name:   "admin shutdown",
			err:    &pgconn.PgError{Code: "57P01"},
			check:  func(err error) bool { return models.IsRetryable(err) },
			expect: "ConnectionError",
		},
		{
			name:   "syntax error passes through",
			err:    &pgconn.PgError{Code: "42601"},
			check:  func(err error) bool { return !models.IsRetryable(err) },
			expect: "unchanged",
		},
		{
			name:   "domain error passes through",
			err:    models.ErrEdgeNotFound,
			check:  func(err error) bool { return errors.Is(err, models.ErrEdgeNotFound) },
			expect: "ErrEdgeNotFound",
		},
	}

	for _, tt := range tests {
		if got := classify("postgres:test", "op", tt.err); !tt.check(got) {
			t.Errorf("%s: expected %s, got %v", tt.name, tt.expect, got)
		}
	}

	if classify("postgres:test", "op", nil) != nil {
		t.Error("nil must stay nil")
	}
}
