// Package dedup decides at write time whether a new node duplicates an
// existing one. Rules run in order; each either decides (merge or
// keep-distinct) or abstains. No decision means keep-distinct, and any rule
// failure degrades to keep-distinct with a warning.
package dedup

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/metrics"
	"github.com/persistorai/graphrouter/internal/models"
)

// Outcome is the final result of a chain evaluation.
type Outcome string

// Chain outcomes.
const (
	Merge        Outcome = "merge"
	KeepDistinct Outcome = "keep_distinct"
)

// Verdict is one rule's answer.
type Verdict int

// Rule verdicts.
const (
	Abstain Verdict = iota
	DecideMerge
	DecideDistinct
)

// Decision is the outcome of one Chain.Evaluate call.
type Decision struct {
	Outcome  Outcome  `json:"outcome"`
	TargetID string   `json:"target_id,omitempty"`
	Score    float64  `json:"score,omitempty"`
	Rule     string   `json:"rule,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Evaluation is the state threaded through the rules of one call.
type Evaluation struct {
	Candidate models.Node
	Existing  []models.Node

	// Narrowed, once set by a rule, replaces Existing for later rules.
	Narrowed   []models.Node
	IsNarrowed bool

	// LikelihoodFollows is true when a LikelihoodRule comes later in the chain.
	LikelihoodFollows bool

	// TargetID and Score are set by the rule that decides merge.
	TargetID string
	Score    float64
}

// Pool returns the nodes later rules should consider.
func (ev *Evaluation) Pool() []models.Node {
	if ev.IsNarrowed {
		return ev.Narrowed
	}

	return ev.Existing
}

// Narrow restricts later rules to nodes.
func (ev *Evaluation) Narrow(nodes []models.Node) {
	ev.Narrowed = nodes
	ev.IsNarrowed = true
}

// Rule is one step of the chain.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, ev *Evaluation) (Verdict, error)
}

// Chain is an ordered rule list.
type Chain struct {
	rules []Rule
	log   *logrus.Logger
}

// NewChain builds a chain evaluating rules in the given order.
func NewChain(log *logrus.Logger, rules ...Rule) *Chain {
	return &Chain{rules: rules, log: log}
}

// Rules returns the configured rules.
func (c *Chain) Rules() []Rule { return append([]Rule(nil), c.rules...) }

// Evaluate runs the chain for candidate against existing nodes of the same
// label. At most one decisive outcome is produced.
func (c *Chain) Evaluate(ctx context.Context, candidate models.Node, existing []models.Node) Decision {
	pool := make([]models.Node, 0, len(existing))
	for _, n := range existing {
		if n.ID != candidate.ID || candidate.ID == "" {
			pool = append(pool, n)
		}
	}

	ev := &Evaluation{Candidate: candidate, Existing: pool}

	for i, rule := range c.rules {
		ev.LikelihoodFollows = likelihoodAfter(c.rules[i+1:])

		verdict, err := rule.Evaluate(ctx, ev)
		if err != nil {
			warning := fmt.Sprintf("dedup rule %s failed: %v", rule.Name(), err)

			c.log.WithError(err).WithFields(logrus.Fields{
				"rule":  rule.Name(),
				"label": candidate.Label,
			}).Warn("dedup rule failed, keeping node distinct")
			metrics.DedupDecisions.WithLabelValues(string(KeepDistinct), "degraded").Inc()

			return Decision{Outcome: KeepDistinct, Rule: rule.Name(), Warnings: []string{warning}}
		}

		switch verdict {
		case DecideMerge:
			metrics.DedupDecisions.WithLabelValues(string(Merge), rule.Name()).Inc()

			return Decision{Outcome: Merge, TargetID: ev.TargetID, Score: ev.Score, Rule: rule.Name()}
		case DecideDistinct:
			metrics.DedupDecisions.WithLabelValues(string(KeepDistinct), rule.Name()).Inc()

			return Decision{Outcome: KeepDistinct, Score: ev.Score, Rule: rule.Name()}
		case Abstain:
		}
	}

	metrics.DedupDecisions.WithLabelValues(string(KeepDistinct), "default").Inc()

	return Decision{Outcome: KeepDistinct}
}

func likelihoodAfter(rules []Rule) bool {
	for _, r := range rules {
		if _, ok := r.(*LikelihoodRule); ok {
			return true
		}
	}

	return false
}
