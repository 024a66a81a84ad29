package dedup

import (
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/llm"
)

// Options describes a chain in configuration terms.
type Options struct {
	MetadataKeys []string `json:"metadata_keys,omitempty" yaml:"metadata_keys"`
	ConflictKeys []string `json:"conflict_keys,omitempty" yaml:"conflict_keys"`
	Field        string   `json:"field,omitempty" yaml:"field"`
	MinScore     float64  `json:"min_score,omitempty" yaml:"min_score"`
	// LikelihoodThreshold enables the LLM rule when positive and a scorer is given.
	LikelihoodThreshold float64 `json:"likelihood_threshold,omitempty" yaml:"likelihood_threshold"`
}

// Build assembles metadata, similarity and likelihood rules in that order,
// skipping the ones the options leave unconfigured.
func Build(opts Options, scorer llm.Scorer, log *logrus.Logger) *Chain {
	var rules []Rule

	if len(opts.MetadataKeys) > 0 {
		rules = append(rules, &MetadataRule{Keys: opts.MetadataKeys, ConflictKeys: opts.ConflictKeys})
	}

	if opts.Field != "" {
		rules = append(rules, &SimilarityRule{Field: opts.Field, MinScore: opts.MinScore})
	}

	if opts.LikelihoodThreshold > 0 && scorer != nil {
		rules = append(rules, &LikelihoodRule{Scorer: scorer, Threshold: opts.LikelihoodThreshold})
	}

	return NewChain(log, rules...)
}
