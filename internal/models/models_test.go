package models_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/persistorai/graphrouter/internal/models"
)

func assertErrorContains(t *testing.T, err error, want string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}

	if !strings.Contains(err.Error(), want) {
		t.Errorf("expected error containing %q, got %q", want, err.Error())
	}
}

func TestCreateNodeRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     models.CreateNodeRequest
		wantErr string
	}{
		{name: "valid with id", req: models.CreateNodeRequest{ID: "n1", Label: "Person"}},
		{name: "valid without id", req: models.CreateNodeRequest{Label: "Person"}},
		{name: "missing label", req: models.CreateNodeRequest{ID: "n1"}, wantErr: "label is required"},
		{name: "id too long", req: models.CreateNodeRequest{ID: strings.Repeat("x", 256), Label: "Person"}, wantErr: "id exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}

				if tt.req.ID == "" {
					t.Error("expected generated id")
				}

				return
			}

			assertErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCreateEdgeRequest_NormalizesLabel(t *testing.T) {
	req := models.CreateEdgeRequest{From: "a", To: "b", Label: "  HAS_FILE "}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if req.Label != "has_file" {
		t.Errorf("expected label has_file, got %q", req.Label)
	}
}

func TestCreateEdgeRequest_MissingEndpoints(t *testing.T) {
	req := models.CreateEdgeRequest{To: "b", Label: "x"}
	if err := req.Validate(); !errors.Is(err, models.ErrMissingSource) {
		t.Errorf("expected ErrMissingSource, got %v", err)
	}

	req = models.CreateEdgeRequest{From: "a", Label: "x"}
	if err := req.Validate(); !errors.Is(err, models.ErrMissingTarget) {
		t.Errorf("expected ErrMissingTarget, got %v", err)
	}
}

func TestNodeClone_Independent(t *testing.T) {
	n := models.Node{ID: "n1", Label: "Person", Properties: map[string]any{"name": "Ada"}}
	c := n.Clone()
	c.Properties["name"] = "Grace"

	if n.Properties["name"] != "Ada" {
		t.Errorf("clone mutated original: %v", n.Properties["name"])
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection", &models.ConnectionError{Backend: "local", Op: "open", Err: errors.New("refused")}, true},
		{"pool exhausted", fmt.Errorf("acquire: %w", models.ErrPoolExhausted), true},
		{"deadline", context.DeadlineExceeded, true},
		{"query", &models.QueryError{Reason: "bad plan"}, false},
		{"validation", &models.ValidationError{Kind: models.MissingField, Label: "Person", Field: "name"}, false},
	}

	for _, tt := range tests {
		if got := models.IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &models.ValidationError{Kind: models.MissingField, Label: "Person", Field: "name"}
	assertErrorContains(t, err, "missing_field")
	assertErrorContains(t, err, `"name"`)

	if !models.IsValidation(fmt.Errorf("wrapped: %w", err)) {
		t.Error("expected IsValidation to see through wrapping")
	}
}
