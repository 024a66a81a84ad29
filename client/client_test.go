package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer creates a test server that routes to the given handler map.
// Keys are "METHOD /path", values are handler funcs.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithUserAgent("graphrouter-test"))
	return srv, c
}

func jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestHealth(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/health": func(w http.ResponseWriter, r *http.Request) {
			if ua := r.Header.Get("User-Agent"); ua != "graphrouter-test" {
				t.Errorf("got user agent %q", ua)
			}
			jsonResponse(w, 200, HealthResponse{Status: "ok", Version: "1.0.0", Backend: "local"})
		},
	})
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if resp.Status != "ok" || resp.Backend != "local" {
		t.Errorf("got %+v", resp)
	}
}

func TestReady_NotReady(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/ready": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "5")
			jsonResponse(w, 503, map[string]any{"code": "backend_unavailable", "message": "not ready"})
		},
	})
	_, err := c.Ready(context.Background())
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.RetryAfter != "5" {
		t.Errorf("expected Retry-After 5, got %+v", apiErr)
	}
}

func TestNodesCRUD(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/nodes": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("label"); got != "Person" {
				t.Errorf("got label %q, want Person", got)
			}
			if got := r.URL.Query().Get("limit"); got != "10" {
				t.Errorf("got limit %q, want 10", got)
			}
			jsonResponse(w, 200, NodeList{Nodes: []Node{{ID: "n1", Label: "Person"}}, Total: 1})
		},
		"POST /api/v1/nodes": func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Label string `json:"label"`
				Dedup *Dedup `json:"dedup"`
			}
			json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
			if body.Dedup == nil || !body.Dedup.Enabled {
				t.Error("expected dedup to be sent")
			}
			jsonResponse(w, 200, CreateResult{
				Node:     &Node{ID: "n1", Label: body.Label},
				Merged:   true,
				Decision: &Decision{Outcome: "merge", TargetID: "n1", Rule: "metadata"},
			})
		},
		"GET /api/v1/nodes/n1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, Node{ID: "n1", Label: "Person"})
		},
		"PATCH /api/v1/nodes/n1": func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Properties map[string]any `json:"properties"`
			}
			json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
			jsonResponse(w, 200, Node{ID: "n1", Label: "Person", Properties: body.Properties})
		},
		"DELETE /api/v1/nodes/n1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{"deleted": true, "removed_edges": 2})
		},
	})
	ctx := context.Background()

	list, err := c.Nodes.List(ctx, &ListOptions{Label: "Person", Limit: 10})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list.Nodes) != 1 || list.Total != 1 {
		t.Errorf("got %+v", list)
	}

	res, err := c.Nodes.Create(ctx, "Person", map[string]any{"name": "Ada"}, &Dedup{Enabled: true})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if !res.Merged || res.Decision.TargetID != "n1" {
		t.Errorf("got %+v", res)
	}

	node, err := c.Nodes.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if node.Label != "Person" {
		t.Errorf("got label %q", node.Label)
	}

	node, err = c.Nodes.Update(ctx, "n1", map[string]any{"age": 36})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if node.Properties["age"] != float64(36) {
		t.Errorf("got properties %v", node.Properties)
	}

	removed, err := c.Nodes.Delete(ctx, "n1")
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if removed != 2 {
		t.Errorf("got removed %d, want 2", removed)
	}
}

func TestEdges(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/edges": func(w http.ResponseWriter, r *http.Request) {
			var req CreateEdgeRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 201, Edge{ID: "e1", From: req.From, To: req.To, Label: req.Label})
		},
		"GET /api/v1/nodes/a/edges": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("direction"); got != "out" {
				t.Errorf("got direction %q, want out", got)
			}
			jsonResponse(w, 200, map[string]any{"edges": []Edge{{ID: "e1", From: "a", To: "b"}}})
		},
		"DELETE /api/v1/edges/e1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{"deleted": true})
		},
	})
	ctx := context.Background()

	e, err := c.Edges.Create(ctx, CreateEdgeRequest{From: "a", To: "b", Label: "KNOWS"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if e.From != "a" || e.To != "b" || e.Label != "KNOWS" {
		t.Errorf("got %+v", e)
	}

	edges, err := c.Nodes.Edges(ctx, "a", "", "out")
	if err != nil {
		t.Fatalf("Edges() error: %v", err)
	}
	if len(edges) != 1 {
		t.Errorf("got %d edges, want 1", len(edges))
	}

	if err := c.Edges.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/query": func(w http.ResponseWriter, r *http.Request) {
			var req queryRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			if len(req.Plan.Filters) != 1 || req.Plan.Filters[0].Op != "label_equals" {
				t.Errorf("got plan %+v", req.Plan)
			}
			if !req.Options.MergeOnQuery {
				t.Error("expected merge_on_query")
			}
			jsonResponse(w, 200, QueryResult{
				Nodes:  []Node{{ID: "n1"}},
				Total:  1,
				Merged: map[string][]string{"n1": {"n2"}},
			})
		},
	})

	res, err := c.Query(context.Background(), QuerySpec{
		Filters: []Filter{{Op: "label_equals", Value: "Person"}},
		Limit:   5,
	}, &QueryOptions{MergeOnQuery: true})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if res.Total != 1 || len(res.Merged["n1"]) != 1 {
		t.Errorf("got %+v", res)
	}
}

func TestTransaction_FailedIndex(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/transactions": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 422, map[string]any{
				"code":    "validation_error",
				"message": "operation 1 rejected",
				"details": map[string]any{"index": 1, "kind": "create_edge"},
			})
		},
	})

	_, err := c.Transactions.Execute(context.Background(), []Operation{
		{Kind: OpCreateNode, Label: "Person"},
		{Kind: OpCreateEdge, From: "a", To: "missing", Label: "KNOWS"},
	})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("expected *APIError")
	}
	idx, ok := apiErr.FailedIndex()
	if !ok || idx != 1 {
		t.Errorf("got index %d (%v), want 1", idx, ok)
	}
}

func TestOntologyAndStats(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/ontology": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 201, map[string]any{"registered": "Person", "kind": "node", "version": 3})
		},
		"GET /api/v1/stats/operations": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{"operations": map[string]OperationStats{"create_node": {Count: 4}}})
		},
		"DELETE /api/v1/stats/operations": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})
	ctx := context.Background()

	v, err := c.Ontology.Register(ctx, Type{Name: "Person", Kind: "node", Properties: map[string]string{"name": "string"}})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if v != 3 {
		t.Errorf("got version %d, want 3", v)
	}

	ops, err := c.Operations(ctx)
	if err != nil {
		t.Fatalf("Operations() error: %v", err)
	}
	if ops["create_node"].Count != 4 {
		t.Errorf("got %+v", ops)
	}

	if err := c.ResetOperations(ctx); err != nil {
		t.Fatalf("ResetOperations() error: %v", err)
	}
}

func TestAPIError(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/nodes/missing": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 404, map[string]any{"code": "not_found", "message": "node not found", "request_id": "r-1"})
		},
		"GET /api/v1/nodes/plain": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down")) //nolint:errcheck
		},
	})

	_, err := c.Nodes.Get(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := err.Error(); got != "graphrouter: 404 not_found: node not found (request_id=r-1)" {
		t.Errorf("got %q", got)
	}

	_, err = c.Nodes.Get(context.Background(), "plain")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "unknown" || apiErr.Message != "upstream down" {
		t.Errorf("got %+v", apiErr)
	}
}

func TestReady_ReturnsChecksWhenUnavailable(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/ready": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 503, ReadyResponse{Status: "not_ready", Checks: map[string]string{"backend": "error", "llm": "disabled"}})
		},
	})
	r, err := c.Ready(context.Background())
	if !IsRetryable(err) {
		t.Fatalf("expected 503 error, got %v", err)
	}
	if r == nil || r.Checks["backend"] != "error" {
		t.Fatalf("expected decoded checks, got %+v", r)
	}
}
