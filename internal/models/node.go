// Package models defines data types for the graph layer.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Node represents a vertex in the graph.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the node. Nested property values are not shared.
func (n Node) Clone() Node {
	n.Properties = CloneProperties(n.Properties)

	return n
}

// Property returns a property value and whether it is set.
func (n Node) Property(name string) (any, bool) {
	v, ok := n.Properties[name]

	return v, ok
}

// MergeProperties overlays props onto the node. Supplied keys win.
func (n *Node) MergeProperties(props map[string]any) {
	if n.Properties == nil {
		n.Properties = make(map[string]any, len(props))
	}

	maps.Copy(n.Properties, props)
}

// CreateNodeRequest is the payload for creating a new node.
type CreateNodeRequest struct {
	ID         string         `json:"id,omitempty"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Validate checks required fields and limits. An empty ID is replaced by a UUID.
func (r *CreateNodeRequest) Validate() error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	if len(r.ID) > 255 {
		return ErrFieldTooLong("id", 255)
	}

	if r.Label == "" {
		return ErrMissingLabel
	}

	if len(r.Label) > 255 {
		return ErrFieldTooLong("label", 255)
	}

	return validatePropertySize(r.Properties)
}

// UpdateRequest carries a property patch for a node or edge.
type UpdateRequest struct {
	Properties map[string]any `json:"properties"`
}

// Validate checks UpdateRequest fields.
func (r *UpdateRequest) Validate() error {
	if len(r.Properties) == 0 {
		return ErrEmptyPatch
	}

	return validatePropertySize(r.Properties)
}

const maxPropertyBytes = 1 << 20

func validatePropertySize(props map[string]any) error {
	if props == nil {
		return nil
	}

	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("invalid properties: %w", err)
	}

	if len(data) > maxPropertyBytes {
		return ErrFieldTooLong("properties", maxPropertyBytes)
	}

	return nil
}
