package ontology

// SimilarityLabel is the reserved edge type carrying advisory sameness scores.
const SimilarityLabel = "likely_same_as"

// SimilarityType is the schema registered for SimilarityLabel on first use.
func SimilarityType() Type {
	return Type{
		Name: SimilarityLabel,
		Kind: EdgeKind,
		Properties: map[string]PropType{
			"score":       Float,
			"method":      String,
			"computed_at": String,
		},
		Required: []string{"score", "method", "computed_at"},
	}
}

// Core registers the built-in data-source ontology used by ingestion tooling.
func Core(r *Registry) error {
	nodes := []Type{
		{
			Name:       "DataSource",
			Properties: map[string]PropType{"name": String, "type": String, "config": Dict},
			Required:   []string{"name", "type"},
		},
		{
			Name:       "File",
			Properties: map[string]PropType{"name": String, "path": String, "size": Int, "mime_type": String},
			Required:   []string{"name", "path"},
		},
		{
			Name:       "Row",
			Properties: map[string]PropType{"data": Dict, "index": Int},
			Required:   []string{"data"},
		},
		{
			Name:       "Log",
			Properties: map[string]PropType{"timestamp": String, "level": String, "message": String},
			Required:   []string{"timestamp", "message"},
		},
		{
			Name:       "SearchResult",
			Properties: map[string]PropType{"query": String, "url": String, "title": String, "snippet": String},
			Required:   []string{"query", "url"},
		},
		{
			Name:       "Webhook",
			Properties: map[string]PropType{"url": String, "payload": Dict, "received_at": String},
			Required:   []string{"url"},
		},
	}

	for _, t := range nodes {
		t.Kind = NodeKind
		if err := r.Register(t); err != nil {
			return err
		}
	}

	edges := []Type{
		{Name: "has_file", SourceTypes: []string{"DataSource"}, TargetTypes: []string{"File"}},
		{Name: "has_row", SourceTypes: []string{"File"}, TargetTypes: []string{"Row"}},
		{Name: "has_log", SourceTypes: []string{"DataSource"}, TargetTypes: []string{"Log"}},
		{Name: "has_webhook", SourceTypes: []string{"DataSource"}, TargetTypes: []string{"Webhook"}},
		{
			Name:        "has_sync",
			Properties:  map[string]PropType{"synced_at": String, "status": String},
			Required:    []string{"synced_at"},
			SourceTypes: []string{"DataSource"},
			TargetTypes: []string{"DataSource"},
		},
	}

	for _, t := range edges {
		t.Kind = EdgeKind
		if err := r.Register(t); err != nil {
			return err
		}
	}

	return nil
}
