package client

import (
	"encoding/json"
	"time"
)

// Node is a labelled graph node.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Edge is a directed, labelled relationship between two nodes.
type Edge struct {
	ID         string         `json:"id"`
	From       string         `json:"from_id"`
	To         string         `json:"to_id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// CreateNodeRequest is one node of a batch write.
type CreateNodeRequest struct {
	ID         string         `json:"id,omitempty"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// CreateEdgeRequest is one edge of a batch write.
type CreateEdgeRequest struct {
	ID         string         `json:"id,omitempty"`
	From       string         `json:"from_id"`
	To         string         `json:"to_id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// DedupRules overrides the server's write-time deduplication chain.
type DedupRules struct {
	MetadataKeys        []string `json:"metadata_keys,omitempty"`
	ConflictKeys        []string `json:"conflict_keys,omitempty"`
	Field               string   `json:"field,omitempty"`
	MinScore            float64  `json:"min_score,omitempty"`
	LikelihoodThreshold float64  `json:"likelihood_threshold,omitempty"`
}

// Dedup enables deduplication for a single create.
type Dedup struct {
	Enabled bool        `json:"enabled"`
	Rules   *DedupRules `json:"rules,omitempty"`
}

// Decision explains the outcome of the dedup chain.
type Decision struct {
	Outcome  string   `json:"outcome"`
	TargetID string   `json:"target_id,omitempty"`
	Score    float64  `json:"score,omitempty"`
	Rule     string   `json:"rule,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// CreateResult is the answer to a node create. Merged reports that the write
// was folded into an existing node.
type CreateResult struct {
	Node     *Node     `json:"node"`
	Merged   bool      `json:"merged"`
	Decision *Decision `json:"decision,omitempty"`
}

// NodeList is a page of nodes.
type NodeList struct {
	Nodes  []Node `json:"nodes"`
	Total  int    `json:"total"`
	Cached bool   `json:"cached"`
}

// Filter is one predicate of a query plan. Op is one of label_equals,
// property_equals, property_greater_than, property_less_than or
// property_contains.
type Filter struct {
	Op    string `json:"op"`
	Field string `json:"field,omitempty"`
	Value any    `json:"value,omitempty"`
}

// VectorSearch asks for the K nearest nodes by Field.
type VectorSearch struct {
	Field    string    `json:"field"`
	Vector   []float64 `json:"vector"`
	K        int       `json:"k"`
	MinScore float64   `json:"min_score"`
}

// PathSearch asks for paths between nodes of two labels.
type PathSearch struct {
	FromLabel  string   `json:"from_label"`
	ToLabel    string   `json:"to_label"`
	EdgeLabels []string `json:"edge_labels,omitempty"`
	MinDepth   int      `json:"min_depth"`
	MaxDepth   int      `json:"max_depth"`
}

// Aggregation computes Op (count, sum, avg, min, max) over Field per group.
type Aggregation struct {
	Op    string `json:"op"`
	Field string `json:"field,omitempty"`
	Alias string `json:"alias,omitempty"`
}

// SortKey orders results by Field.
type SortKey struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// QuerySpec is the serialisable form of a query plan.
type QuerySpec struct {
	Filters      []Filter      `json:"filters,omitempty"`
	Vector       *VectorSearch `json:"vector,omitempty"`
	Path         *PathSearch   `json:"path,omitempty"`
	GroupBy      string        `json:"group_by,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty"`
	Sort         []SortKey     `json:"sort,omitempty"`
	Offset       int           `json:"offset,omitempty"`
	Limit        int           `json:"limit,omitempty"`
}

// QueryOptions tune one query call.
type QueryOptions struct {
	MergeOnQuery   bool           `json:"merge_on_query"`
	MergeThreshold float64        `json:"merge_threshold,omitempty"`
	MergeFilters   map[string]any `json:"merge_filters,omitempty"`
	SkipCache      bool           `json:"skip_cache,omitempty"`
}

type queryRequest struct {
	Plan    QuerySpec    `json:"plan"`
	Options QueryOptions `json:"options"`
}

// PathElement is one step of a path: exactly one of Node or Edge is set.
type PathElement struct {
	Node *Node `json:"node,omitempty"`
	Edge *Edge `json:"edge,omitempty"`
}

// Row is one aggregate output group.
type Row struct {
	Key    any            `json:"key"`
	Values map[string]any `json:"values"`
}

// QueryResult is the outcome of a query. Which of Nodes, Paths or Rows is
// populated depends on the plan shape.
type QueryResult struct {
	Nodes    []Node              `json:"nodes,omitempty"`
	Paths    [][]PathElement     `json:"paths,omitempty"`
	Rows     []Row               `json:"rows,omitempty"`
	Scores   map[string]float64  `json:"scores,omitempty"`
	Total    int                 `json:"total"`
	Merged   map[string][]string `json:"merged,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
	Cached   bool                `json:"cached,omitempty"`
}

// Operation kinds accepted by a transaction.
const (
	OpCreateNode = "create_node"
	OpUpdateNode = "update_node"
	OpDeleteNode = "delete_node"
	OpCreateEdge = "create_edge"
	OpUpdateEdge = "update_edge"
	OpDeleteEdge = "delete_edge"
)

// Operation is one step of a transaction.
type Operation struct {
	Kind       string         `json:"kind"`
	ID         string         `json:"id,omitempty"`
	Label      string         `json:"label,omitempty"`
	From       string         `json:"from_id,omitempty"`
	To         string         `json:"to_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Outcome reports what one committed operation did.
type Outcome struct {
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Removed int    `json:"removed_edges,omitempty"`
}

// Type is a node or edge type of the ontology. Kind is "node" or "edge";
// property types are "string", "int", "float", "bool", "list", "dict", "vector" or "any".
type Type struct {
	Name           string            `json:"name"`
	Kind           string            `json:"kind"`
	Properties     map[string]string `json:"properties"`
	Required       []string          `json:"required,omitempty"`
	SourceTypes    []string          `json:"source_types,omitempty"`
	TargetTypes    []string          `json:"target_types,omitempty"`
	Strict         bool              `json:"strict,omitempty"`
	ForbidParallel bool              `json:"forbid_parallel,omitempty"`
}

// Ontology is the registered schema.
type Ontology struct {
	Version   uint64 `json:"version"`
	NodeTypes []Type `json:"node_types"`
	EdgeTypes []Type `json:"edge_types"`
	Summary   string `json:"summary"`
}

// OperationStats are the rolling timings of one operation.
type OperationStats struct {
	Count     int64   `json:"count"`
	Errors    int64   `json:"errors"`
	AvgMs     float64 `json:"avg_ms"`
	MedianMs  float64 `json:"median_ms"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
	StdDevMs  float64 `json:"std_dev_ms"`
	ErrorRate float64 `json:"error_rate"`
}

// Step is one iteration of the reasoning loop.
type Step struct {
	Thought string         `json:"thought"`
	Action  string         `json:"action"`
	Input   map[string]any `json:"input,omitempty"`
	Output  string         `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Answer is the result of a reasoning run.
type Answer struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Steps      []Step   `json:"steps"`
	Iterations int      `json:"iterations"`
	Exhausted  bool     `json:"exhausted"`
	StopReason string   `json:"stop_reason"`
	Warnings   []string `json:"warnings,omitempty"`
}

// HealthResponse is the liveness answer.
type HealthResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	Backend          string  `json:"backend"`
	WebSocketClients int     `json:"websocket_clients"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// ReadyResponse is the readiness answer.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Detail json.RawMessage   `json:"detail,omitempty"`
}
