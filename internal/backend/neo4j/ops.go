package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// Stored layout: (:GRNode {id, label, props, created_at, updated_at}) and
// [:GR_EDGE {id, label, props, created_at, updated_at}]. Properties are kept as
// a JSON string because Neo4j cannot store nested maps.
const (
	nodeReturn = `n.id AS id, n.label AS label, n.props AS props, n.created_at AS created_at, n.updated_at AS updated_at`
	edgeReturn = `r.id AS id, a.id AS from_id, b.id AS to_id, r.label AS label, r.props AS props,
		r.created_at AS created_at, r.updated_at AS updated_at`
)

// runner is satisfied by both managed and explicit transactions.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
}

type ops struct {
	tx  runner
	now time.Time
}

func (o ops) collect(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := o.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	return res.Collect(ctx)
}

func encodeProps(props map[string]any) (string, error) {
	if props == nil {
		props = map[string]any{}
	}

	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encoding properties: %w", err)
	}

	return string(data), nil
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func str(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)

	return s
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // zero time for legacy rows.

	return t
}

func decodeProps(s string) (map[string]any, error) {
	props := map[string]any{}
	if s == "" {
		return props, nil
	}

	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, fmt.Errorf("decoding properties: %w", err)
	}

	return props, nil
}

func toNode(rec *neo4j.Record) (models.Node, error) {
	props, err := decodeProps(str(rec, "props"))
	if err != nil {
		return models.Node{}, err
	}

	return models.Node{
		ID:         str(rec, "id"),
		Label:      str(rec, "label"),
		Properties: props,
		CreatedAt:  parseTime(str(rec, "created_at")),
		UpdatedAt:  parseTime(str(rec, "updated_at")),
	}, nil
}

func toEdge(rec *neo4j.Record) (models.Edge, error) {
	props, err := decodeProps(str(rec, "props"))
	if err != nil {
		return models.Edge{}, err
	}

	return models.Edge{
		ID:         str(rec, "id"),
		From:       str(rec, "from_id"),
		To:         str(rec, "to_id"),
		Label:      str(rec, "label"),
		Properties: props,
		CreatedAt:  parseTime(str(rec, "created_at")),
		UpdatedAt:  parseTime(str(rec, "updated_at")),
	}, nil
}

func (o ops) nodes(ctx context.Context, cypher string, params map[string]any) ([]models.Node, error) {
	records, err := o.collect(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	out := make([]models.Node, 0, len(records))

	for _, rec := range records {
		n, err := toNode(rec)
		if err != nil {
			return nil, err
		}

		out = append(out, n)
	}

	return out, nil
}

func (o ops) edges(ctx context.Context, cypher string, params map[string]any) ([]models.Edge, error) {
	records, err := o.collect(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	out := make([]models.Edge, 0, len(records))

	for _, rec := range records {
		e, err := toEdge(rec)
		if err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	return out, nil
}

func (o ops) getNode(ctx context.Context, id string) (*models.Node, error) {
	nodes, err := o.nodes(ctx, `MATCH (n:GRNode {id: $id}) RETURN `+nodeReturn, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}

	if len(nodes) == 0 {
		return nil, models.ErrNodeNotFound
	}

	return &nodes[0], nil
}

func (o ops) getEdge(ctx context.Context, id string) (*models.Edge, error) {
	edges, err := o.edges(ctx,
		`MATCH (a:GRNode)-[r:GR_EDGE {id: $id}]->(b:GRNode) RETURN `+edgeReturn,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}

	if len(edges) == 0 {
		return nil, models.ErrEdgeNotFound
	}

	return &edges[0], nil
}

func (o ops) count(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	records, err := o.collect(ctx, cypher, params)
	if err != nil {
		return 0, err
	}

	if len(records) == 0 {
		return 0, nil
	}

	v, _ := records[0].Get("c")
	c, _ := v.(int64)

	return c, nil
}

func (o ops) createNode(ctx context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	n, err := o.countNodes(ctx, []string{req.ID})
	if err != nil {
		return nil, err
	}

	if n > 0 {
		return nil, fmt.Errorf("node %s: %w", req.ID, models.ErrDuplicateKey)
	}

	node := backend.NewNode(req, o.now)

	props, err := encodeProps(node.Properties)
	if err != nil {
		return nil, err
	}

	_, err = o.collect(ctx,
		`CREATE (n:GRNode {id: $id, label: $label, props: $props, created_at: $ts, updated_at: $ts})`,
		map[string]any{"id": node.ID, "label": node.Label, "props": props, "ts": stamp(o.now)})
	if err != nil {
		return nil, err
	}

	return &node, nil
}

func (o ops) countNodes(ctx context.Context, ids []string) (int64, error) {
	return o.count(ctx, `UNWIND $ids AS id MATCH (n:GRNode {id: id}) RETURN count(n) AS c`,
		map[string]any{"ids": stringsToAny(ids)})
}

func (o ops) updateNode(ctx context.Context, id string, patch map[string]any) (*models.Node, error) {
	n, err := o.getNode(ctx, id)
	if err != nil {
		return nil, err
	}

	n.MergeProperties(patch)
	n.UpdatedAt = o.now

	props, err := encodeProps(n.Properties)
	if err != nil {
		return nil, err
	}

	_, err = o.collect(ctx, `MATCH (n:GRNode {id: $id}) SET n.props = $props, n.updated_at = $ts`,
		map[string]any{"id": id, "props": props, "ts": stamp(o.now)})
	if err != nil {
		return nil, err
	}

	return n, nil
}

func (o ops) deleteNode(ctx context.Context, id string) (int, error) {
	records, err := o.collect(ctx, `MATCH (n:GRNode {id: $id})
		OPTIONAL MATCH (n)-[r:GR_EDGE]-()
		WITH n, count(DISTINCT r) AS c
		DETACH DELETE n
		RETURN c`, map[string]any{"id": id})
	if err != nil {
		return 0, err
	}

	if len(records) == 0 {
		return 0, models.ErrNodeNotFound
	}

	v, _ := records[0].Get("c")
	c, _ := v.(int64)

	return int(c), nil
}

func (o ops) createEdge(ctx context.Context, req models.CreateEdgeRequest) (*models.Edge, error) {
	exists, err := o.count(ctx, `MATCH ()-[r:GR_EDGE {id: $id}]->() RETURN count(r) AS c`, map[string]any{"id": req.ID})
	if err != nil {
		return nil, err
	}

	if exists > 0 {
		return nil, fmt.Errorf("edge %s: %w", req.ID, models.ErrDuplicateKey)
	}

	e := backend.NewEdge(req, o.now)

	props, err := encodeProps(e.Properties)
	if err != nil {
		return nil, err
	}

	created, err := o.count(ctx, `MATCH (a:GRNode {id: $from}), (b:GRNode {id: $to})
		CREATE (a)-[r:GR_EDGE {id: $id, label: $label, props: $props, created_at: $ts, updated_at: $ts}]->(b)
		RETURN count(r) AS c`,
		map[string]any{"from": e.From, "to": e.To, "id": e.ID, "label": e.Label, "props": props, "ts": stamp(o.now)})
	if err != nil {
		return nil, err
	}

	if created == 0 {
		return nil, fmt.Errorf("edge %s endpoints: %w", e.ID, models.ErrNodeNotFound)
	}

	return &e, nil
}

func (o ops) updateEdge(ctx context.Context, id string, patch map[string]any) (*models.Edge, error) {
	e, err := o.getEdge(ctx, id)
	if err != nil {
		return nil, err
	}

	for k, v := range patch {
		e.Properties[k] = v
	}

	e.UpdatedAt = o.now

	props, err := encodeProps(e.Properties)
	if err != nil {
		return nil, err
	}

	_, err = o.collect(ctx, `MATCH ()-[r:GR_EDGE {id: $id}]->() SET r.props = $props, r.updated_at = $ts`,
		map[string]any{"id": id, "props": props, "ts": stamp(o.now)})
	if err != nil {
		return nil, err
	}

	return e, nil
}

func (o ops) deleteEdge(ctx context.Context, id string) error {
	removed, err := o.count(ctx, `MATCH ()-[r:GR_EDGE {id: $id}]->() DELETE r RETURN count(r) AS c`,
		map[string]any{"id": id})
	if err != nil {
		return err
	}

	if removed == 0 {
		return models.ErrEdgeNotFound
	}

	return nil
}

func (o ops) scanNodes(ctx context.Context, pf query.Prefilter) ([]models.Node, error) {
	nodes, err := o.nodes(ctx,
		`MATCH (n:GRNode) WHERE $label = '' OR n.label = $label RETURN `+nodeReturn+` ORDER BY n.id`,
		map[string]any{"label": pf.Label})
	if err != nil {
		return nil, err
	}

	if len(pf.Equals) == 0 {
		return nodes, nil
	}

	out := nodes[:0]

	for _, n := range nodes {
		if backend.MatchesPrefilter(n, pf) {
			out = append(out, n)
		}
	}

	return out, nil
}

func (o ops) outgoingEdges(ctx context.Context, nodeID string, labels []string) ([]models.Edge, error) {
	return o.edges(ctx, `MATCH (a:GRNode {id: $id})-[r:GR_EDGE]->(b:GRNode)
		WHERE size($labels) = 0 OR r.label IN $labels
		RETURN `+edgeReturn+` ORDER BY r.id`,
		map[string]any{"id": nodeID, "labels": stringsToAny(labels)})
}

func (o ops) listEdges(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error) {
	var pattern string

	switch dir {
	case models.DirectionOut:
		pattern = `(a:GRNode {id: $id})-[r:GR_EDGE]->(b:GRNode)`
	case models.DirectionIn:
		pattern = `(a:GRNode)-[r:GR_EDGE]->(b:GRNode {id: $id})`
	default:
		pattern = `(a:GRNode)-[r:GR_EDGE]->(b:GRNode) WHERE (a.id = $id OR b.id = $id)`
	}

	where := ` WHERE `
	if dir != models.DirectionOut && dir != models.DirectionIn {
		where = ` AND `
	}

	return o.edges(ctx, `MATCH `+pattern+where+`($label = '' OR r.label = $label)
		RETURN `+edgeReturn+` ORDER BY r.id`,
		map[string]any{"id": nodeID, "label": models.NormalizeEdgeLabel(label)})
}

func (o ops) bulkNodes(ctx context.Context, reqs []models.CreateNodeRequest) ([]models.Node, error) {
	ids := make([]string, len(reqs))
	seen := make(map[string]bool, len(reqs))

	for i, r := range reqs {
		if seen[r.ID] {
			return nil, fmt.Errorf("batch item %d: node %s: %w", i, r.ID, models.ErrDuplicateKey)
		}

		seen[r.ID] = true
		ids[i] = r.ID
	}

	existing, err := o.countNodes(ctx, ids)
	if err != nil {
		return nil, err
	}

	if existing > 0 {
		return nil, fmt.Errorf("batch contains %d existing ids: %w", existing, models.ErrDuplicateKey)
	}

	out := make([]models.Node, 0, len(reqs))
	rows := make([]any, 0, len(reqs))

	for _, r := range reqs {
		n := backend.NewNode(r, o.now)

		props, err := encodeProps(n.Properties)
		if err != nil {
			return nil, err
		}

		rows = append(rows, map[string]any{"id": n.ID, "label": n.Label, "props": props})
		out = append(out, n)
	}

	_, err = o.collect(ctx, `UNWIND $rows AS row
		CREATE (:GRNode {id: row.id, label: row.label, props: row.props, created_at: $ts, updated_at: $ts})`,
		map[string]any{"rows": rows, "ts": stamp(o.now)})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (o ops) bulkEdges(ctx context.Context, reqs []models.CreateEdgeRequest) ([]models.Edge, error) {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}

	existing, err := o.count(ctx, `UNWIND $ids AS id MATCH ()-[r:GR_EDGE {id: id}]->() RETURN count(r) AS c`,
		map[string]any{"ids": stringsToAny(ids)})
	if err != nil {
		return nil, err
	}

	if existing > 0 {
		return nil, fmt.Errorf("batch contains %d existing edge ids: %w", existing, models.ErrDuplicateKey)
	}

	out := make([]models.Edge, 0, len(reqs))
	rows := make([]any, 0, len(reqs))

	for _, r := range reqs {
		e := backend.NewEdge(r, o.now)

		props, err := encodeProps(e.Properties)
		if err != nil {
			return nil, err
		}

		rows = append(rows, map[string]any{"id": e.ID, "from": e.From, "to": e.To, "label": e.Label, "props": props})
		out = append(out, e)
	}

	created, err := o.count(ctx, `UNWIND $rows AS row
		MATCH (a:GRNode {id: row.from}), (b:GRNode {id: row.to})
		CREATE (a)-[r:GR_EDGE {id: row.id, label: row.label, props: row.props, created_at: $ts, updated_at: $ts}]->(b)
		RETURN count(r) AS c`,
		map[string]any{"rows": rows, "ts": stamp(o.now)})
	if err != nil {
		return nil, err
	}

	if int(created) != len(reqs) {
		return nil, fmt.Errorf("batch created %d of %d edges: %w", created, len(reqs), models.ErrNodeNotFound)
	}

	return out, nil
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}

	return out
}
