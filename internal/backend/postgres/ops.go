package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/db"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

const (
	nodeColumns = `id, label, properties, created_at, updated_at`
	edgeColumns = `id, from_id, to_id, label, properties, created_at, updated_at`
)

// queryer is satisfied by both *pgxpool.Conn and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ops runs graph operations on one queryer. notify, when set, publishes each
// write on db.ChangesChannel; inside a transaction the notification is only
// delivered if the transaction commits.
type ops struct {
	q      queryer
	now    time.Time
	origin string
	notify bool
}

func scanNode(scan func(dest ...any) error) (*models.Node, error) {
	var (
		n     models.Node
		props []byte
	)

	if err := scan(&n.ID, &n.Label, &props, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(props, &n.Properties); err != nil {
		return nil, fmt.Errorf("unmarshalling node properties: %w", err)
	}

	if n.Properties == nil {
		n.Properties = map[string]any{}
	}

	return &n, nil
}

func scanEdge(scan func(dest ...any) error) (*models.Edge, error) {
	var (
		e     models.Edge
		props []byte
	)

	if err := scan(&e.ID, &e.From, &e.To, &e.Label, &props, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(props, &e.Properties); err != nil {
		return nil, fmt.Errorf("unmarshalling edge properties: %w", err)
	}

	if e.Properties == nil {
		e.Properties = map[string]any{}
	}

	return &e, nil
}

func encodeProps(props map[string]any) ([]byte, error) {
	if props == nil {
		props = map[string]any{}
	}

	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("encoding properties: %w", err)
	}

	return data, nil
}

func collectNodes(rows pgx.Rows) ([]models.Node, error) {
	defer rows.Close()

	var out []models.Node

	for rows.Next() {
		n, err := scanNode(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning node row: %w", err)
		}

		out = append(out, *n)
	}

	return out, rows.Err()
}

func collectEdges(rows pgx.Rows) ([]models.Edge, error) {
	defer rows.Close()

	var out []models.Edge

	for rows.Next() {
		e, err := scanEdge(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning edge row: %w", err)
		}

		out = append(out, *e)
	}

	return out, rows.Err()
}

func (o ops) publish(ctx context.Context, kind, op, label, id string) error {
	if !o.notify {
		return nil
	}

	payload, _ := json.Marshal(db.Change{ //nolint:errcheck // plain strings, cannot fail.
		Kind:   kind,
		Op:     op,
		Label:  label,
		ID:     id,
		Origin: o.origin,
	})

	if _, err := o.q.Exec(ctx, "SELECT pg_notify($1, $2)", db.ChangesChannel, string(payload)); err != nil {
		return fmt.Errorf("publishing %s %s: %w", kind, op, err)
	}

	return nil
}

func (o ops) getNode(ctx context.Context, id string) (*models.Node, error) {
	row := o.q.QueryRow(ctx, "SELECT "+nodeColumns+" FROM gr_nodes WHERE id = $1", id)

	n, err := scanNode(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNodeNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("getting node: %w", err)
	}

	return n, nil
}

func (o ops) createNode(ctx context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	n := backend.NewNode(req, o.now)

	props, err := encodeProps(n.Properties)
	if err != nil {
		return nil, err
	}

	_, err = o.q.Exec(ctx,
		"INSERT INTO gr_nodes (id, label, properties, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)",
		n.ID, n.Label, props, n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting node %s: %w", n.ID, err)
	}

	return &n, o.publish(ctx, "node", "created", n.Label, n.ID)
}

func (o ops) updateNode(ctx context.Context, id string, props map[string]any) (*models.Node, error) {
	patch, err := encodeProps(props)
	if err != nil {
		return nil, err
	}

	row := o.q.QueryRow(ctx,
		"UPDATE gr_nodes SET properties = properties || $2::jsonb, updated_at = $3 WHERE id = $1 RETURNING "+nodeColumns,
		id, patch, o.now)

	n, err := scanNode(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNodeNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("updating node %s: %w", id, err)
	}

	return n, o.publish(ctx, "node", "updated", n.Label, n.ID)
}

// deleteNode removes incident edges and the node in one statement so the
// returned count matches what was removed.
func (o ops) deleteNode(ctx context.Context, id string) (int, error) {
	const stmt = `WITH removed AS (
			DELETE FROM gr_edges WHERE from_id = $1 OR to_id = $1 RETURNING id
		), gone AS (
			DELETE FROM gr_nodes WHERE id = $1 RETURNING label
		)
		SELECT (SELECT label FROM gone), (SELECT count(*) FROM removed)`

	var (
		label   *string
		removed int64
	)

	if err := o.q.QueryRow(ctx, stmt, id).Scan(&label, &removed); err != nil {
		return 0, fmt.Errorf("deleting node %s: %w", id, err)
	}

	if label == nil {
		return 0, models.ErrNodeNotFound
	}

	return int(removed), o.publish(ctx, "node", "deleted", *label, id)
}

func (o ops) createEdge(ctx context.Context, req models.CreateEdgeRequest) (*models.Edge, error) {
	e := backend.NewEdge(req, o.now)

	props, err := encodeProps(e.Properties)
	if err != nil {
		return nil, err
	}

	_, err = o.q.Exec(ctx,
		`INSERT INTO gr_edges (id, from_id, to_id, label, properties, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		e.ID, e.From, e.To, e.Label, props, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting edge %s: %w", e.ID, err)
	}

	return &e, o.publish(ctx, "edge", "created", e.Label, e.ID)
}

func (o ops) getEdge(ctx context.Context, id string) (*models.Edge, error) {
	row := o.q.QueryRow(ctx, "SELECT "+edgeColumns+" FROM gr_edges WHERE id = $1", id)

	e, err := scanEdge(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrEdgeNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("getting edge: %w", err)
	}

	return e, nil
}

func (o ops) updateEdge(ctx context.Context, id string, props map[string]any) (*models.Edge, error) {
	patch, err := encodeProps(props)
	if err != nil {
		return nil, err
	}

	row := o.q.QueryRow(ctx,
		"UPDATE gr_edges SET properties = properties || $2::jsonb, updated_at = $3 WHERE id = $1 RETURNING "+edgeColumns,
		id, patch, o.now)

	e, err := scanEdge(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrEdgeNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("updating edge %s: %w", id, err)
	}

	return e, o.publish(ctx, "edge", "updated", e.Label, e.ID)
}

func (o ops) deleteEdge(ctx context.Context, id string) error {
	var label string

	err := o.q.QueryRow(ctx, "DELETE FROM gr_edges WHERE id = $1 RETURNING label", id).Scan(&label)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrEdgeNotFound
	}

	if err != nil {
		return fmt.Errorf("deleting edge %s: %w", id, err)
	}

	return o.publish(ctx, "edge", "deleted", label, id)
}

func (o ops) scanNodes(ctx context.Context, pf query.Prefilter) ([]models.Node, error) {
	where, args := prefilterClause(pf)

	rows, err := o.q.Query(ctx, "SELECT "+nodeColumns+" FROM gr_nodes"+where+` ORDER BY id COLLATE "C"`, args...)
	if err != nil {
		return nil, fmt.Errorf("scanning nodes: %w", err)
	}

	return collectNodes(rows)
}

// prefilterClause pushes the label and scalar equality matches down as a
// jsonb containment test. Non-scalar values are left to the evaluator.
func prefilterClause(pf query.Prefilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if pf.Label != "" {
		args = append(args, pf.Label)
		conds = append(conds, fmt.Sprintf("label = $%d", len(args)))
	}

	contained := map[string]any{}

	for k, v := range pf.Equals {
		switch v.(type) {
		case string, bool, float64, float32, int, int32, int64:
			contained[k] = v
		}
	}

	if len(contained) > 0 {
		data, err := json.Marshal(contained)
		if err == nil {
			args = append(args, data)
			conds = append(conds, fmt.Sprintf("properties @> $%d::jsonb", len(args)))
		}
	}

	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

func (o ops) outgoingEdges(ctx context.Context, nodeID string, labels []string) ([]models.Edge, error) {
	rows, err := o.q.Query(ctx,
		"SELECT "+edgeColumns+` FROM gr_edges
		WHERE from_id = $1 AND (cardinality($2::text[]) = 0 OR label = ANY($2))
		ORDER BY id COLLATE "C"`,
		nodeID, nonNil(labels))
	if err != nil {
		return nil, fmt.Errorf("listing outgoing edges: %w", err)
	}

	return collectEdges(rows)
}

func (o ops) listEdges(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error) {
	var match string

	switch dir {
	case models.DirectionOut:
		match = "from_id = $1"
	case models.DirectionIn:
		match = "to_id = $1"
	default:
		match = "(from_id = $1 OR to_id = $1)"
	}

	rows, err := o.q.Query(ctx,
		"SELECT "+edgeColumns+" FROM gr_edges WHERE "+match+` AND ($2 = '' OR label = $2) ORDER BY id COLLATE "C"`,
		nodeID, label)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}

	return collectEdges(rows)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
