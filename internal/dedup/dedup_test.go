package dedup_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/dedup"
	"github.com/persistorai/graphrouter/internal/llm"
	"github.com/persistorai/graphrouter/internal/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func person(id string, props map[string]any) models.Node {
	return models.Node{ID: id, Label: "Person", Properties: props}
}

func TestChain_EmptyKeepsDistinct(t *testing.T) {
	t.Parallel()

	d := dedup.NewChain(testLogger()).Evaluate(context.Background(), person("", nil), []models.Node{person("p1", nil)})
	if d.Outcome != dedup.KeepDistinct || d.Rule != "" {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestMetadataRule(t *testing.T) {
	t.Parallel()

	rule := &dedup.MetadataRule{Keys: []string{"email"}, ConflictKeys: []string{"dob"}}
	chain := dedup.NewChain(testLogger(), rule)
	existing := []models.Node{
		person("p1", map[string]any{"email": "ada@example.com", "dob": "1815-12-10"}),
		person("p2", map[string]any{"email": "grace@example.com"}),
	}

	tests := []struct {
		name    string
		props   map[string]any
		outcome dedup.Outcome
		target  string
		rule    string
	}{
		{"matching email merges", map[string]any{"email": "grace@example.com"}, dedup.Merge, "p2", "metadata"},
		{"conflicting dob vetoes", map[string]any{"email": "ada@example.com", "dob": "1900-01-01"}, dedup.KeepDistinct, "", "metadata"},
		{"same dob merges", map[string]any{"email": "ada@example.com", "dob": "1815-12-10"}, dedup.Merge, "p1", "metadata"},
		{"empty value abstains", map[string]any{"email": ""}, dedup.KeepDistinct, "", ""},
		{"no key abstains", map[string]any{"name": "Ada"}, dedup.KeepDistinct, "", ""},
	}

	for _, tt := range tests {
		d := chain.Evaluate(context.Background(), person("", tt.props), existing)
		if d.Outcome != tt.outcome || d.TargetID != tt.target || d.Rule != tt.rule {
			t.Errorf("%s: got %+v", tt.name, d)
		}
	}
}

func TestSimilarityRule_BelowThresholdKeepsDistinct(t *testing.T) {
	t.Parallel()

	chain := dedup.NewChain(testLogger(), &dedup.SimilarityRule{Field: "embedding", MinScore: 0.9})
	existing := []models.Node{person("p1", map[string]any{"embedding": []any{1.0, 0.0}})}

	d := chain.Evaluate(context.Background(), person("", map[string]any{"embedding": []float64{0, 1}}), existing)
	if d.Outcome != dedup.KeepDistinct || d.Rule != "similarity" {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestSimilarityRule_MergesBestWithoutLikelihood(t *testing.T) {
	t.Parallel()

	chain := dedup.NewChain(testLogger(), &dedup.SimilarityRule{Field: "embedding", MinScore: 0.8})
	existing := []models.Node{
		person("p1", map[string]any{"embedding": []any{0.9, 0.1}}),
		person("p2", map[string]any{"embedding": []any{1.0, 0.0}}),
		person("p3", map[string]any{"name": "no vector"}),
	}

	d := chain.Evaluate(context.Background(), person("", map[string]any{"embedding": []float64{1, 0}}), existing)
	if d.Outcome != dedup.Merge || d.TargetID != "p2" || d.Score < 0.999 {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestSimilarityRule_AbstainsWithoutEmbedding(t *testing.T) {
	t.Parallel()

	chain := dedup.NewChain(testLogger(),
		&dedup.SimilarityRule{Field: "embedding", MinScore: 0.8},
		&dedup.MetadataRule{Keys: []string{"email"}},
	)

	d := chain.Evaluate(context.Background(),
		person("", map[string]any{"email": "a@x"}),
		[]models.Node{person("p1", map[string]any{"email": "a@x", "embedding": []any{1.0}})})
	if d.Outcome != dedup.Merge || d.Rule != "metadata" {
		t.Errorf("expected metadata rule to decide, got %+v", d)
	}
}

func TestLikelihoodRule_ScoresNarrowedCandidates(t *testing.T) {
	t.Parallel()

	scorer := &llm.Static{Fn: func(_, b models.Node) float64 {
		if b.ID == "p2" {
			return 0.95
		}

		return 0.2
	}}

	chain := dedup.NewChain(testLogger(),
		&dedup.SimilarityRule{Field: "embedding", MinScore: 0.5},
		&dedup.LikelihoodRule{Scorer: scorer, Threshold: 0.9},
	)

	existing := []models.Node{
		person("p1", map[string]any{"embedding": []any{1.0, 0.0}}),
		person("p2", map[string]any{"embedding": []any{0.8, 0.6}}),
		person("far", map[string]any{"embedding": []any{-1.0, 0.0}}),
	}

	d := chain.Evaluate(context.Background(), person("", map[string]any{"embedding": []float64{1, 0}}), existing)
	if d.Outcome != dedup.Merge || d.TargetID != "p2" || d.Rule != "likelihood" {
		t.Fatalf("unexpected decision %+v", d)
	}

	if scorer.Calls() != 2 {
		t.Errorf("expected the far node to be filtered before scoring, got %d calls", scorer.Calls())
	}
}

func TestLikelihoodRule_BelowThreshold(t *testing.T) {
	t.Parallel()

	chain := dedup.NewChain(testLogger(), &dedup.LikelihoodRule{Scorer: &llm.Static{Score: 0.3}, Threshold: 0.7})

	d := chain.Evaluate(context.Background(), person("", nil), []models.Node{person("p1", nil)})
	if d.Outcome != dedup.KeepDistinct || d.Score != 0.3 {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestProviderErrorDegrades(t *testing.T) {
	t.Parallel()

	scorer := &llm.Static{Err: errors.New("connection refused")}
	chain := dedup.NewChain(testLogger(), &dedup.LikelihoodRule{Scorer: scorer, Threshold: 0.5})

	d := chain.Evaluate(context.Background(), person("", nil), []models.Node{person("p1", nil)})
	if d.Outcome != dedup.KeepDistinct || len(d.Warnings) != 1 {
		t.Errorf("expected keep-distinct with a warning, got %+v", d)
	}
}

func TestChain_SkipsSelf(t *testing.T) {
	t.Parallel()

	chain := dedup.NewChain(testLogger(), &dedup.MetadataRule{Keys: []string{"email"}})

	d := chain.Evaluate(context.Background(),
		person("p1", map[string]any{"email": "a@x"}),
		[]models.Node{person("p1", map[string]any{"email": "a@x"})})
	if d.Outcome != dedup.KeepDistinct {
		t.Errorf("a node must not merge with itself, got %+v", d)
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	chain := dedup.Build(dedup.Options{
		MetadataKeys:        []string{"email"},
		Field:               "embedding",
		MinScore:            0.8,
		LikelihoodThreshold: 0.7,
	}, &llm.Static{}, testLogger())

	rules := chain.Rules()
	if len(rules) != 3 || rules[0].Name() != "metadata" || rules[2].Name() != "likelihood" {
		t.Errorf("unexpected rules %v", rules)
	}

	if got := len(dedup.Build(dedup.Options{LikelihoodThreshold: 0.7}, nil, testLogger()).Rules()); got != 0 {
		t.Errorf("likelihood rule without scorer must be skipped, got %d rules", got)
	}
}
