package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// ops implements every graph operation against one badger transaction, so the
// same code serves single-shot db.Update calls and long-lived Tx handles.
type ops struct {
	txn *badger.Txn
	now time.Time
}

func (o ops) getNode(id string) (*models.Node, error) {
	item, err := o.txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, models.ErrNodeNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("reading node %s: %w", id, err)
	}

	var n models.Node
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &n) }); err != nil {
		return nil, fmt.Errorf("decoding node %s: %w", id, err)
	}

	return &n, nil
}

func (o ops) getEdge(id string) (*models.Edge, error) {
	item, err := o.txn.Get(edgeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, models.ErrEdgeNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("reading edge %s: %w", id, err)
	}

	var e models.Edge
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
		return nil, fmt.Errorf("decoding edge %s: %w", id, err)
	}

	return &e, nil
}

func (o ops) exists(key []byte) (bool, error) {
	_, err := o.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}

	return err == nil, err
}

func (o ops) putNode(n *models.Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding node %s: %w", n.ID, err)
	}

	return o.txn.Set(nodeKey(n.ID), data)
}

func (o ops) putEdge(e *models.Edge) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding edge %s: %w", e.ID, err)
	}

	return o.txn.Set(edgeKey(e.ID), data)
}

func (o ops) createNode(req models.CreateNodeRequest) (*models.Node, error) {
	found, err := o.exists(nodeKey(req.ID))
	if err != nil {
		return nil, err
	}

	if found {
		return nil, fmt.Errorf("node %s: %w", req.ID, models.ErrDuplicateKey)
	}

	n := backend.NewNode(req, o.now)

	if err := o.putNode(&n); err != nil {
		return nil, err
	}

	if err := o.txn.Set(labelKey(n.Label, n.ID), nil); err != nil {
		return nil, fmt.Errorf("indexing node %s: %w", n.ID, err)
	}

	return &n, nil
}

func (o ops) updateNode(id string, props map[string]any) (*models.Node, error) {
	n, err := o.getNode(id)
	if err != nil {
		return nil, err
	}

	n.MergeProperties(props)
	n.UpdatedAt = o.now

	if err := o.putNode(n); err != nil {
		return nil, err
	}

	return n, nil
}

func (o ops) deleteNode(id string) (int, error) {
	n, err := o.getNode(id)
	if err != nil {
		return 0, err
	}

	edgeIDs := o.indexIDs(outgoingPrefix(id))
	edgeIDs = append(edgeIDs, o.indexIDs(incomingPrefix(id))...)

	seen := make(map[string]bool, len(edgeIDs))
	removed := 0

	for _, eid := range edgeIDs {
		if seen[eid] {
			continue
		}

		seen[eid] = true

		if err := o.deleteEdge(eid); err != nil {
			if errors.Is(err, models.ErrEdgeNotFound) {
				continue
			}

			return 0, err
		}

		removed++
	}

	if err := o.txn.Delete(labelKey(n.Label, id)); err != nil {
		return 0, fmt.Errorf("unindexing node %s: %w", id, err)
	}

	if err := o.txn.Delete(nodeKey(id)); err != nil {
		return 0, fmt.Errorf("deleting node %s: %w", id, err)
	}

	return removed, nil
}

func (o ops) createEdge(req models.CreateEdgeRequest) (*models.Edge, error) {
	found, err := o.exists(edgeKey(req.ID))
	if err != nil {
		return nil, err
	}

	if found {
		return nil, fmt.Errorf("edge %s: %w", req.ID, models.ErrDuplicateKey)
	}

	for _, endpoint := range []string{req.From, req.To} {
		ok, err := o.exists(nodeKey(endpoint))
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, fmt.Errorf("endpoint %s: %w", endpoint, models.ErrNodeNotFound)
		}
	}

	e := backend.NewEdge(req, o.now)

	if err := o.putEdge(&e); err != nil {
		return nil, err
	}

	if err := o.txn.Set(outgoingKey(e.From, e.ID), nil); err != nil {
		return nil, fmt.Errorf("indexing edge %s: %w", e.ID, err)
	}

	if err := o.txn.Set(incomingKey(e.To, e.ID), nil); err != nil {
		return nil, fmt.Errorf("indexing edge %s: %w", e.ID, err)
	}

	return &e, nil
}

func (o ops) updateEdge(id string, props map[string]any) (*models.Edge, error) {
	e, err := o.getEdge(id)
	if err != nil {
		return nil, err
	}

	if e.Properties == nil {
		e.Properties = make(map[string]any, len(props))
	}

	maps.Copy(e.Properties, props)
	e.UpdatedAt = o.now

	if err := o.putEdge(e); err != nil {
		return nil, err
	}

	return e, nil
}

func (o ops) deleteEdge(id string) error {
	e, err := o.getEdge(id)
	if err != nil {
		return err
	}

	for _, key := range [][]byte{outgoingKey(e.From, id), incomingKey(e.To, id), edgeKey(id)} {
		if err := o.txn.Delete(key); err != nil {
			return fmt.Errorf("deleting edge %s: %w", id, err)
		}
	}

	return nil
}

// indexIDs lists the ids stored under an index prefix, in key order.
func (o ops) indexIDs(prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false

	it := o.txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if id := idFromIndexKey(it.Item().KeyCopy(nil), len(prefix)); id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}

// scanNodes walks the label index when the prefilter names a label, otherwise
// the whole node family. Both orders are by id.
func (o ops) scanNodes(pf query.Prefilter) ([]models.Node, error) {
	var out []models.Node

	keep := func(n *models.Node) {
		if backend.MatchesPrefilter(*n, pf) {
			out = append(out, *n)
		}
	}

	if pf.Label != "" {
		for _, id := range o.indexIDs(labelPrefix(pf.Label)) {
			n, err := o.getNode(id)
			if errors.Is(err, models.ErrNodeNotFound) {
				continue
			}

			if err != nil {
				return nil, err
			}

			keep(n)
		}

		return out, nil
	}

	it := o.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := []byte{prefixNode}
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var n models.Node
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &n) }); err != nil {
			return nil, fmt.Errorf("decoding node: %w", err)
		}

		keep(&n)
	}

	return out, nil
}

func (o ops) edgesAt(prefix []byte, keep func(*models.Edge) bool) ([]models.Edge, error) {
	var out []models.Edge

	for _, id := range o.indexIDs(prefix) {
		e, err := o.getEdge(id)
		if errors.Is(err, models.ErrEdgeNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		if keep(e) {
			out = append(out, *e)
		}
	}

	return out, nil
}

func (o ops) listEdges(nodeID, label string, dir models.Direction) ([]models.Edge, error) {
	label = models.NormalizeEdgeLabel(label)
	keep := func(e *models.Edge) bool { return label == "" || e.Label == label }

	var out []models.Edge

	if dir != models.DirectionIn {
		edges, err := o.edgesAt(outgoingPrefix(nodeID), keep)
		if err != nil {
			return nil, err
		}

		out = append(out, edges...)
	}

	if dir != models.DirectionOut {
		edges, err := o.edgesAt(incomingPrefix(nodeID), func(e *models.Edge) bool {
			// Self-loops were already collected from the outgoing index.
			if dir == models.DirectionBoth && e.From == nodeID {
				return false
			}

			return keep(e)
		})
		if err != nil {
			return nil, err
		}

		out = append(out, edges...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}
