package mcptools

import (
	"github.com/dusk-indust/codegraph/internal/builder"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/pattern"
	"github.com/dusk-indust/codegraph/internal/template"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// AnalyzeFilesInput is the input for the analyze_specific_files MCP tool.
type AnalyzeFilesInput struct {
	FilePaths []string `json:"file_paths" jsonschema:"list of source file paths to analyze (.cs, .aspx, .sql)"`
}

// AnalyzeFilesOutput is the result of the analyze_specific_files MCP tool.
type AnalyzeFilesOutput struct {
	NodesAdded int                 `json:"nodes_added"`
	EdgesAdded int                 `json:"edges_added"`
	Errors     []builder.FileError `json:"errors"`
}

// FindPatternsInput is the input for the find_patterns_by_type MCP tool.
type FindPatternsInput struct {
	Type       string   `json:"type" jsonschema:"pattern type: database_crud, page, business_logic, api_endpoint, validation_logic"`
	Threshold  *float64 `json:"threshold,omitempty" jsonschema:"minimum similarity score in [0,1] (default: 0.7, 0 returns everything)"`
	MaxResults int      `json:"max_results,omitempty" jsonschema:"maximum number of matches returned (default: 5)"`
}

// FindPatternsOutput is the result of the find_patterns_by_type MCP tool.
type FindPatternsOutput struct {
	Matches []pattern.Match `json:"matches"`
}

// NodeSummaryInput is the input for the get_node_types_summary MCP tool.
type NodeSummaryInput struct{}

// NodeSummaryOutput is the result of the get_node_types_summary MCP tool.
type NodeSummaryOutput struct {
	Counts map[graph.NodeKind]int `json:"counts"`
}

// RelationshipSummaryInput is the input for the get_relationship_types_summary MCP tool.
type RelationshipSummaryInput struct{}

// RelationshipSummaryOutput is the result of the get_relationship_types_summary MCP tool.
type RelationshipSummaryOutput struct {
	Counts map[graph.EdgeKind]int `json:"counts"`
}

// ExportGraphInput is the input for the export_graph_data MCP tool.
type ExportGraphInput struct {
	OutputPath string `json:"output_path" jsonschema:"path the graph document is written to"`
}

// ExportGraphOutput is the result of the export_graph_data MCP tool.
type ExportGraphOutput struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
}

// ExtractTemplateInput is the input for the extract_template MCP tool.
type ExtractTemplateInput struct {
	PatternIDs   []string `json:"pattern_ids" jsonschema:"ids of same-type pattern instances to align"`
	MinInstances int      `json:"min_instances,omitempty" jsonschema:"minimum number of instances required (default: 2)"`
}

// ExtractTemplateOutput is the result of the extract_template MCP tool.
type ExtractTemplateOutput struct {
	Template template.Template `json:"template"`
}
