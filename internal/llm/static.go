package llm

import (
	"context"
	"sync/atomic"

	"github.com/persistorai/graphrouter/internal/models"
)

// Static is an offline Scorer. Fn, when set, computes the score; otherwise
// Score is returned for every pair. Err, when set, is returned instead.
type Static struct {
	Score float64
	Fn    func(a, b models.Node) float64
	Err   error

	calls atomic.Int64
}

// ScoreSimilarity implements Scorer.
func (s *Static) ScoreSimilarity(_ context.Context, a, b models.Node) (float64, error) {
	s.calls.Add(1)

	if s.Err != nil {
		return 0, &models.ProviderError{Provider: "static", Err: s.Err}
	}

	if s.Fn != nil {
		return Clamp(s.Fn(a, b)), nil
	}

	return Clamp(s.Score), nil
}

// Calls returns how many times ScoreSimilarity ran.
func (s *Static) Calls() int64 { return s.calls.Load() }
