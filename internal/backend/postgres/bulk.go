package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
)

// maxBulkBatchSize limits the number of rows per INSERT statement to avoid
// exceeding PostgreSQL's parameter limit (65535 params).
const maxBulkBatchSize = 500

func (o ops) bulkNodes(ctx context.Context, reqs []models.CreateNodeRequest) ([]models.Node, error) {
	out := make([]models.Node, 0, len(reqs))

	for i := 0; i < len(reqs); i += maxBulkBatchSize {
		batch := reqs[i:min(i+maxBulkBatchSize, len(reqs))]

		valueParts := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*4)

		for j, req := range batch {
			n := backend.NewNode(req, o.now)

			props, err := encodeProps(n.Properties)
			if err != nil {
				return nil, fmt.Errorf("preparing node %s: %w", n.ID, err)
			}

			base := j*4 + 1
			valueParts = append(valueParts, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base, base+1, base+2, base+3, base+3))
			args = append(args, n.ID, n.Label, props, n.CreatedAt)
			out = append(out, n)
		}

		sql := `INSERT INTO gr_nodes (id, label, properties, created_at, updated_at) VALUES ` + strings.Join(valueParts, ", ")

		if _, err := o.q.Exec(ctx, sql, args...); err != nil {
			return nil, fmt.Errorf("bulk inserting nodes batch: %w", err)
		}
	}

	for _, n := range out {
		if err := o.publish(ctx, "node", "created", n.Label, n.ID); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (o ops) bulkEdges(ctx context.Context, reqs []models.CreateEdgeRequest) ([]models.Edge, error) {
	out := make([]models.Edge, 0, len(reqs))

	for i := 0; i < len(reqs); i += maxBulkBatchSize {
		batch := reqs[i:min(i+maxBulkBatchSize, len(reqs))]

		valueParts := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*6)

		for j, req := range batch {
			e := backend.NewEdge(req, o.now)

			props, err := encodeProps(e.Properties)
			if err != nil {
				return nil, fmt.Errorf("preparing edge %s: %w", e.ID, err)
			}

			base := j*6 + 1
			valueParts = append(valueParts, fmt.Sprintf(
				"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				base, base+1, base+2, base+3, base+4, base+5, base+5,
			))
			args = append(args, e.ID, e.From, e.To, e.Label, props, e.CreatedAt)
			out = append(out, e)
		}

		sql := `INSERT INTO gr_edges (id, from_id, to_id, label, properties, created_at, updated_at) VALUES ` +
			strings.Join(valueParts, ", ")

		if _, err := o.q.Exec(ctx, sql, args...); err != nil {
			return nil, fmt.Errorf("bulk inserting edges batch: %w", err)
		}
	}

	for _, e := range out {
		if err := o.publish(ctx, "edge", "created", e.Label, e.ID); err != nil {
			return nil, err
		}
	}

	return out, nil
}
