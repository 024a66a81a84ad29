package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/graphrouter/internal/api"
	"github.com/persistorai/graphrouter/internal/models"
)

func edgeRouter(svc *mockEdgeService) *gin.Engine {
	r := gin.New()
	h := api.NewEdgeHandler(svc, testLogger())
	r.POST("/edges", h.Create)
	r.GET("/edges/:id", h.Get)
	r.DELETE("/edges/:id", h.Delete)
	r.GET("/nodes/:id/edges", h.ListForNode)

	return r
}

func TestEdgeCreate(t *testing.T) {
	t.Parallel()

	svc := &mockEdgeService{
		createFn: func(_ context.Context, from, to, label string, _ map[string]any) (*models.Edge, error) {
			if to == "ghost" {
				return nil, models.ErrNodeNotFound
			}

			if label == "knows" {
				return nil, &models.ValidationError{Kind: models.ParallelEdge, Label: label}
			}

			return &models.Edge{ID: "e1", From: from, To: to, Label: label}, nil
		},
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"created", `{"from_id":"a","to_id":"b","label":"works_at"}`, http.StatusCreated},
		{"missing target", `{"from_id":"a","label":"works_at"}`, http.StatusBadRequest},
		{"unknown endpoint", `{"from_id":"a","to_id":"ghost","label":"works_at"}`, http.StatusNotFound},
		{"parallel edge", `{"from_id":"a","to_id":"b","label":"knows"}`, http.StatusUnprocessableEntity},
		{"malformed", `{"from_id":`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := doRequest(edgeRouter(svc), http.MethodPost, "/edges", tc.body)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestEdgeListForNode(t *testing.T) {
	t.Parallel()

	var (
		gotLabel string
		gotDir   models.Direction
	)

	svc := &mockEdgeService{
		listFn: func(_ context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error) {
			gotLabel, gotDir = label, dir

			return []models.Edge{{ID: "e1", From: nodeID, To: "b", Label: "knows"}}, nil
		},
	}

	w := doRequest(edgeRouter(svc), http.MethodGet, "/nodes/a/edges?label=knows&direction=out", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if gotLabel != "knows" || gotDir != models.DirectionOut {
		t.Errorf("expected knows/out, got %s/%s", gotLabel, gotDir)
	}
}

func TestEdgeListForNode_BadDirection(t *testing.T) {
	t.Parallel()

	w := doRequest(edgeRouter(&mockEdgeService{}), http.MethodGet, "/nodes/a/edges?direction=sideways", "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestEdgeDelete_NotFound(t *testing.T) {
	t.Parallel()

	svc := &mockEdgeService{
		deleteFn: func(context.Context, string) error { return models.ErrEdgeNotFound },
	}

	w := doRequest(edgeRouter(svc), http.MethodDelete, "/edges/e9", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
