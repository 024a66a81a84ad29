package query

import (
	"fmt"

	"github.com/persistorai/graphrouter/internal/models"
)

type groupAcc struct {
	key   any
	nodes []models.Node
}

// aggregate groups nodes by g's key and reduces each group. Groups appear in
// first-seen order.
func aggregate(g GroupSpec, nodes []models.Node) []Row {
	var order []*groupAcc

	byHash := make(map[string]*groupAcc)

	for _, n := range nodes {
		key := g.KeyOf(n)
		h := groupHash(key)

		acc, ok := byHash[h]
		if !ok {
			acc = &groupAcc{key: key}
			byHash[h] = acc
			order = append(order, acc)
		}

		acc.nodes = append(acc.nodes, n)
	}

	if len(order) == 0 && g.Key == "" {
		order = append(order, &groupAcc{})
	}

	rows := make([]Row, 0, len(order))
	for _, acc := range order {
		values := make(map[string]any, len(g.Aggregations))
		for _, a := range g.Aggregations {
			values[a.Name()] = reduce(a, acc.nodes)
		}

		rows = append(rows, Row{Key: acc.key, Values: values})
	}

	return rows
}

// groupHash maps a key to a comparable form. Numeric kinds collapse to float64
// so that 1 and 1.0 share a group.
func groupHash(key any) string {
	if f, ok := toFloat(key); ok {
		return fmt.Sprintf("n:%v", f)
	}

	return fmt.Sprintf("%T:%v", key, key)
}

func reduce(a Aggregation, nodes []models.Node) any {
	if a.Op == AggCount {
		return len(nodes)
	}

	var (
		sum    float64
		count  int
		lo, hi float64
	)

	for _, n := range nodes {
		f, ok := toFloat(n.Properties[a.Field])
		if !ok {
			continue
		}

		if count == 0 || f < lo {
			lo = f
		}

		if count == 0 || f > hi {
			hi = f
		}

		sum += f
		count++
	}

	switch a.Op {
	case AggSum:
		return sum
	case AggAvg:
		if count == 0 {
			return nil
		}

		return sum / float64(count)
	case AggMin:
		if count == 0 {
			return nil
		}

		return lo
	case AggMax:
		if count == 0 {
			return nil
		}

		return hi
	}

	return nil
}
