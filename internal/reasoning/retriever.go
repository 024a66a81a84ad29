// Package reasoning answers questions over the graph with a bounded
// chain-of-thought loop: each step asks the reasoner for one action, runs the
// matching read-only tool, and feeds the observation back, until the
// reasoner finishes or the step budget runs out.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/llm"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// DefaultMaxIterations bounds a run when Options leave it unset.
const DefaultMaxIterations = 5

// maxObservation caps the tool output fed back to the reasoner.
const maxObservation = 4000

// Stop reasons.
const (
	StopFinished  = "finished"
	StopRepeated  = "repeated"
	StopExhausted = "exhausted"
	StopProvider  = "provider_error"
)

// Graph is the read surface the tools use.
type Graph interface {
	Query(ctx context.Context, plan *query.Plan) (*query.Result, error)
	GetNode(ctx context.Context, id string) (*models.Node, error)
	ListEdges(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error)
}

// Options configure a Retriever.
type Options struct {
	MaxIterations int
	// Schema returns the ontology summary shown to the reasoner.
	Schema func() string
}

// Answer is the outcome of one run.
type Answer struct {
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Steps      []llm.Step `json:"steps"`
	Iterations int        `json:"iterations"`
	Exhausted  bool       `json:"exhausted"`
	StopReason string     `json:"stop_reason"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// Retriever runs reasoning loops against one graph.
type Retriever struct {
	graph    Graph
	reasoner llm.Reasoner
	embedder llm.Embedder
	log      *logrus.Logger
	maxIter  int
	schema   func() string
	tools    map[string]tool
}

// New creates a retriever. embedder may be nil, which disables vector_search.
func New(graph Graph, reasoner llm.Reasoner, embedder llm.Embedder, log *logrus.Logger, opts Options) *Retriever {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	if opts.Schema == nil {
		opts.Schema = func() string { return "" }
	}

	r := &Retriever{
		graph:    graph,
		reasoner: reasoner,
		embedder: embedder,
		log:      log,
		maxIter:  opts.MaxIterations,
		schema:   opts.Schema,
	}
	r.tools = r.toolset()

	return r
}

// Tools describes the actions available to the reasoner, in prompt order.
func (r *Retriever) Tools() []llm.Tool {
	out := make([]llm.Tool, 0, len(toolOrder))
	for _, name := range toolOrder {
		out = append(out, r.tools[name].spec)
	}

	return out
}

// Run answers question. Only context errors fail the run; reasoner failures
// stop the loop early and tool failures are recorded on their step.
func (r *Retriever) Run(ctx context.Context, question string) (*Answer, error) {
	ans := &Answer{Question: question, Steps: []llm.Step{}}
	tools := r.Tools()
	schema := r.schema()

	for i := range r.maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ans.Iterations = i + 1

		d, err := r.reasoner.Next(ctx, llm.Prompt{Question: question, Schema: schema, Tools: tools, Steps: ans.Steps})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			r.log.WithError(err).WithField("iteration", ans.Iterations).Warn("reasoner failed, ending run")

			ans.Warnings = append(ans.Warnings, fmt.Sprintf("step %d: %v", ans.Iterations, err))
			ans.StopReason = StopProvider
			ans.Answer = fallback(ans.Steps)

			return ans, nil
		}

		action := llm.NormalizeAction(d.Action)

		if action == llm.ActionFinish {
			ans.Steps = append(ans.Steps, llm.Step{Thought: d.Thought, Action: action})
			ans.Answer = d.Answer
			ans.StopReason = StopFinished

			return ans, nil
		}

		if repeats(ans.Steps, action, d.Input) {
			r.log.WithFields(logrus.Fields{
				"iteration": ans.Iterations,
				"action":    action,
			}).Debug("reasoner repeated its last action, ending run")

			ans.StopReason = StopRepeated
			ans.Answer = fallback(ans.Steps)

			return ans, nil
		}

		step := llm.Step{Thought: d.Thought, Action: action, Input: d.Input}

		out, err := r.dispatch(ctx, action, d.Input)
		if err != nil {
			step.Error = err.Error()
		} else {
			step.Output = out
		}

		ans.Steps = append(ans.Steps, step)
	}

	ans.Exhausted = true
	ans.StopReason = StopExhausted
	ans.Answer = fallback(ans.Steps)

	return ans, nil
}

func (r *Retriever) dispatch(ctx context.Context, action string, input map[string]any) (string, error) {
	t, ok := r.tools[action]
	if !ok {
		return "", fmt.Errorf("unknown action %q", action)
	}

	v, err := t.run(ctx, args(input))
	if err != nil {
		return "", fmt.Errorf("%s: %w", action, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding %s output: %w", action, err)
	}

	return truncate(string(data), maxObservation), nil
}

// repeats reports whether action and input equal the previous step.
func repeats(steps []llm.Step, action string, input map[string]any) bool {
	if len(steps) == 0 {
		return false
	}

	last := steps[len(steps)-1]
	if last.Action != action {
		return false
	}

	if len(last.Input) == 0 && len(input) == 0 {
		return true
	}

	return reflect.DeepEqual(last.Input, input)
}

// fallback builds an answer from the observations gathered so far.
func fallback(steps []llm.Step) string {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Output != "" {
			return fmt.Sprintf("No final answer after %d steps. Last observation (%s): %s",
				len(steps), steps[i].Action, steps[i].Output)
		}
	}

	return fmt.Sprintf("No final answer after %d steps.", len(steps))
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut] + "...(truncated)"
}
