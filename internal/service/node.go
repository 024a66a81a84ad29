package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/dedup"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/ontology"
	"github.com/persistorai/graphrouter/internal/query"
)

// DedupOptions control write-time deduplication for one CreateNode call.
type DedupOptions struct {
	Enabled bool `json:"enabled"`
	// Rules replaces the configured chain for this call when set.
	Rules *dedup.Options `json:"rules,omitempty"`
}

// CreateResult reports what CreateNode did.
type CreateResult struct {
	Node     *models.Node    `json:"node"`
	Merged   bool            `json:"merged"`
	Decision *dedup.Decision `json:"decision,omitempty"`
}

// CreateNode validates and stores a node. With deduplication enabled, existing
// nodes of the same label are run through the rule chain first; a merge
// decision updates the matched node instead, with the new properties winning.
func (d *Database) CreateNode(
	ctx context.Context, label string, props map[string]any, opts DedupOptions,
) (*CreateResult, error) {
	req := models.CreateNodeRequest{Label: label, Properties: props}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := d.reg.Validate(req.Label, req.Properties, ontology.NodeKind); err != nil {
		return nil, err
	}

	out := &CreateResult{}

	err := d.run(ctx, "create_node", func(ctx context.Context, conn backend.Conn) error {
		if opts.Enabled {
			decision, err := d.deduplicate(ctx, conn, req, opts)
			if err != nil {
				return err
			}

			out.Decision = &decision

			if decision.Outcome == dedup.Merge {
				n, err := conn.UpdateNode(ctx, decision.TargetID, req.Properties)
				if err != nil {
					return fmt.Errorf("merging into node %s: %w", decision.TargetID, err)
				}

				out.Node, out.Merged = n, true

				return nil
			}
		}

		n, err := conn.CreateNode(ctx, req)
		if err != nil {
			return fmt.Errorf("creating node: %w", err)
		}

		out.Node = n

		return nil
	})
	if err != nil {
		return nil, err
	}

	d.cache.InvalidateNodeWrite(req.Label)

	if out.Merged {
		d.log.WithFields(logrus.Fields{
			"label":  req.Label,
			"target": out.Node.ID,
			"rule":   out.Decision.Rule,
			"score":  out.Decision.Score,
		}).Debug("node merged into existing")
		d.emit(EventNodeMerged, out)
	} else {
		d.emit(EventNodeCreated, out.Node)
		d.enqueueEmbedding(out.Node)
	}

	return out, nil
}

func (d *Database) deduplicate(
	ctx context.Context, conn backend.Conn, req models.CreateNodeRequest, opts DedupOptions,
) (dedup.Decision, error) {
	chain := d.chain
	if opts.Rules != nil {
		chain = dedup.Build(*opts.Rules, d.opts.Scorer, d.log)
	}

	existing, err := conn.ScanNodes(ctx, query.Prefilter{Label: req.Label})
	if err != nil {
		return dedup.Decision{}, fmt.Errorf("loading %s nodes for deduplication: %w", req.Label, err)
	}

	candidate := backend.NewNode(req, time.Now().UTC())

	return chain.Evaluate(ctx, candidate, existing), nil
}

// GetNode returns a node by id, serving repeat reads from the cache.
func (d *Database) GetNode(ctx context.Context, id string) (*models.Node, error) {
	if n, ok := d.cache.GetNode(id); ok {
		return n, nil
	}

	gen := d.cache.Generation()

	var n *models.Node

	err := d.run(ctx, "get_node", func(ctx context.Context, conn backend.Conn) error {
		var err error
		n, err = conn.GetNode(ctx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	d.cache.PutNodeIfCurrent(n, gen)

	return n, nil
}

// UpdateNode overlays props onto a node after validating them against the
// node's stored label.
func (d *Database) UpdateNode(ctx context.Context, id string, props map[string]any) (*models.Node, error) {
	upd := models.UpdateRequest{Properties: props}
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	var n *models.Node

	err := d.run(ctx, "update_node", func(ctx context.Context, conn backend.Conn) error {
		current, err := conn.GetNode(ctx, id)
		if err != nil {
			return err
		}

		if err := d.reg.ValidatePatch(current.Label, props, ontology.NodeKind); err != nil {
			return err
		}

		n, err = conn.UpdateNode(ctx, id, props)
		if err != nil {
			return fmt.Errorf("updating node %s: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	d.cache.InvalidateNodeWrite(n.Label)
	d.emit(EventNodeUpdated, n)

	return n, nil
}

// DeleteNode removes a node and its incident edges. It returns the number of
// edges removed with it.
func (d *Database) DeleteNode(ctx context.Context, id string) (int, error) {
	var (
		label   string
		removed int
	)

	err := d.run(ctx, "delete_node", func(ctx context.Context, conn backend.Conn) error {
		current, err := conn.GetNode(ctx, id)
		if err != nil {
			return err
		}

		label = current.Label

		removed, err = conn.DeleteNode(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting node %s: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	d.cache.InvalidateNodeDelete(label)
	d.emit(EventNodeDeleted, map[string]any{"id": id, "label": label, "removed_edges": removed})

	return removed, nil
}
