// Package llm defines the external language-model capabilities the graph layer
// consumes (similarity scoring, structured extraction, embeddings and
// step-wise reasoning) and provides an Ollama client plus a static stand-in.
package llm

import (
	"context"
	"strings"

	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// Scorer rates how likely two nodes describe the same entity, in [0,1].
type Scorer interface {
	ScoreSimilarity(ctx context.Context, a, b models.Node) (float64, error)
}

// Extractor pulls structured fields out of free text. schema maps field name
// to a type name such as "string" or "number".
type Extractor interface {
	Extract(ctx context.Context, text string, schema map[string]string) (map[string]any, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Reasoner chooses the next step of a retrieval loop.
type Reasoner interface {
	Next(ctx context.Context, p Prompt) (Decision, error)
}

// Tool describes one action the reasoner may pick.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// Step is one completed iteration of a reasoning loop.
type Step struct {
	Thought string         `json:"thought"`
	Action  string         `json:"action"`
	Input   map[string]any `json:"input,omitempty"`
	Output  string         `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Prompt is everything the reasoner sees when choosing a step.
type Prompt struct {
	Question string
	// Schema summarizes the ontology so the model only asks for valid labels.
	Schema string
	Tools  []Tool
	Steps  []Step
}

// Decision is the reasoner's choice. Action "finish" ends the loop with Answer.
type Decision struct {
	Thought string         `json:"thought"`
	Action  string         `json:"action"`
	Input   map[string]any `json:"action_input,omitempty"`
	Answer  string         `json:"final_answer,omitempty"`
}

// ActionFinish ends a reasoning loop.
const ActionFinish = "finish"

// minVectorLen is the length from which a numeric list is treated as an
// embedding and left out of prompts.
const minVectorLen = 16

// Salient returns the properties worth showing a model: everything except
// embedding-sized numeric vectors.
func Salient(n models.Node) map[string]any {
	out := make(map[string]any, len(n.Properties))

	for k, v := range n.Properties {
		if vec, ok := query.AsVector(v); ok && len(vec) >= minVectorLen {
			continue
		}

		out[k] = v
	}

	return out
}

// Clamp bounds a score to [0,1].
func Clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}

	return score
}

// NormalizeAction lower-cases and trims an action name.
func NormalizeAction(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}
