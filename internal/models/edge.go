package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Edge represents a directed relationship between two nodes.
type Edge struct {
	ID         string         `json:"id"`
	From       string         `json:"from_id"`
	To         string         `json:"to_id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the edge. Nested property values are not shared.
func (e Edge) Clone() Edge {
	e.Properties = CloneProperties(e.Properties)

	return e
}

// Connects reports whether the edge joins a and b in either direction.
func (e Edge) Connects(a, b string) bool {
	return (e.From == a && e.To == b) || (e.From == b && e.To == a)
}

// NormalizeEdgeLabel returns the canonical (lower-case) form of an edge label.
func NormalizeEdgeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Direction selects which incident edges of a node are returned.
type Direction string

// Edge directions.
const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Matches reports whether e is incident to nodeID in direction d.
func (d Direction) Matches(e Edge, nodeID string) bool {
	switch d {
	case DirectionOut:
		return e.From == nodeID
	case DirectionIn:
		return e.To == nodeID
	default:
		return e.From == nodeID || e.To == nodeID
	}
}

// CreateEdgeRequest is the payload for creating a new edge.
type CreateEdgeRequest struct {
	ID         string         `json:"id,omitempty"`
	From       string         `json:"from_id"`
	To         string         `json:"to_id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Validate checks required fields and normalizes the label. An empty ID is replaced by a UUID.
func (r *CreateEdgeRequest) Validate() error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	if len(r.ID) > 255 {
		return ErrFieldTooLong("id", 255)
	}

	if r.From == "" {
		return ErrMissingSource
	}

	if r.To == "" {
		return ErrMissingTarget
	}

	r.Label = NormalizeEdgeLabel(r.Label)
	if r.Label == "" {
		return ErrMissingLabel
	}

	if len(r.Label) > 255 {
		return ErrFieldTooLong("label", 255)
	}

	return validatePropertySize(r.Properties)
}
