package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/graphrouter/internal/api"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/reasoning"
)

func TestReason_NotConfigured(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.POST("/reason", api.NewReasonHandler(nil, testLogger()).Reason)

	w := doRequest(r, http.MethodPost, "/reason", `{"question":"who knows Alice?"}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}

	if body := decodeError(t, w); body.Code != api.ErrCodeNotConfigured {
		t.Errorf("expected code %q, got %q", api.ErrCodeNotConfigured, body.Code)
	}
}

func TestReason(t *testing.T) {
	t.Parallel()

	reasoner := &mockReasoner{
		runFn: func(_ context.Context, q string) (*reasoning.Answer, error) {
			if q == "fail" {
				return nil, &models.ProviderError{Provider: "ollama", Err: context.DeadlineExceeded}
			}

			return &reasoning.Answer{Question: q, Answer: "Bob", Iterations: 2, StopReason: "finished"}, nil
		},
	}

	r := gin.New()
	r.POST("/reason", api.NewReasonHandler(reasoner, testLogger()).Reason)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"answered", `{"question":"who knows Alice?"}`, http.StatusOK},
		{"missing question", `{}`, http.StatusBadRequest},
		{"provider failure", `{"question":"fail"}`, http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := doRequest(r, http.MethodPost, "/reason", tc.body)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}

			if tc.want != http.StatusOK {
				return
			}

			var ans reasoning.Answer
			if err := json.Unmarshal(w.Body.Bytes(), &ans); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}

			if ans.Answer != "Bob" || ans.Iterations != 2 {
				t.Errorf("unexpected answer %+v", ans)
			}
		})
	}
}
