package service

import (
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/db"
)

var _ db.ChangeHandler = (*Database)(nil)

// HandleChange invalidates cache entries for a write made by another instance
// sharing the same backend.
func (d *Database) HandleChange(c db.Change) {
	if c.Label == "" {
		d.cache.Clear()
		return
	}

	var n int

	switch {
	case c.Kind == "edge":
		n = d.cache.InvalidateEdgeWrite(c.Label)
	case c.Op == "deleted":
		n = d.cache.InvalidateNodeDelete(c.Label)
	default:
		n = d.cache.InvalidateNodeWrite(c.Label)
	}

	d.log.WithFields(logrus.Fields{
		"kind":        c.Kind,
		"op":          c.Op,
		"label":       c.Label,
		"origin":      c.Origin,
		"invalidated": n,
	}).Debug("remote change invalidated cache")
}
