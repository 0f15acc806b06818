package mcptools

import (
	"context"
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/codegraph/internal/builder"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/pattern"
	"github.com/dusk-indust/codegraph/internal/template"
)

// Defaults for find_patterns_by_type, matching the tool contract.
const (
	DefaultThreshold  = 0.7
	DefaultMaxResults = 5
)

// GraphService holds the store, analyzer and catalog used by MCP tool
// handlers.
type GraphService struct {
	store      *graph.Store
	analyzer   *builder.Analyzer
	catalog    *pattern.Catalog
	mirrorPath string // optional SQLite mirror, written after each batch
}

// NewGraphService creates a GraphService over the given components.
func NewGraphService(store *graph.Store, analyzer *builder.Analyzer, catalog *pattern.Catalog) *GraphService {
	return &GraphService{store: store, analyzer: analyzer, catalog: catalog}
}

// SetMirrorPath enables SQLite persistence of the graph after batch analysis.
func (s *GraphService) SetMirrorPath(path string) {
	s.mirrorPath = path
}

// AnalyzeFiles analyzes the given files on the worker pool and returns the
// aggregate delta. Per-file failures are reported, never fatal to the batch.
func (s *GraphService) AnalyzeFiles(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnalyzeFilesInput,
) (*mcp.CallToolResult, AnalyzeFilesOutput, error) {
	if len(input.FilePaths) == 0 {
		return nil, AnalyzeFilesOutput{}, fmt.Errorf("file_paths is required")
	}

	res, err := s.analyzer.AnalyzeFiles(ctx, input.FilePaths)
	if err != nil {
		return nil, AnalyzeFilesOutput{}, fmt.Errorf("analyze files: %w", err)
	}

	if s.mirrorPath != "" {
		if err := s.persistMirror(); err != nil {
			log.Printf("warning: failed to persist graph mirror: %v", err)
		}
	}

	out := AnalyzeFilesOutput{
		NodesAdded: res.NodesAdded,
		EdgesAdded: res.EdgesAdded,
		Errors:     res.Errors,
	}
	if out.Errors == nil {
		out.Errors = []builder.FileError{}
	}
	return nil, out, nil
}

// persistMirror writes the current snapshot to the configured SQLite mirror.
func (s *GraphService) persistMirror() error {
	mirror, err := graph.OpenMirror(s.mirrorPath)
	if err != nil {
		return err
	}
	defer mirror.Close()
	return mirror.Persist(s.store.Snapshot())
}

// FindPatterns ranks pattern instances of one type by similarity.
func (s *GraphService) FindPatterns(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input FindPatternsInput,
) (*mcp.CallToolResult, FindPatternsOutput, error) {
	if input.Type == "" {
		return nil, FindPatternsOutput{}, fmt.Errorf("type is required")
	}
	threshold := DefaultThreshold
	if input.Threshold != nil {
		threshold = *input.Threshold
		if threshold < 0 || threshold > 1 {
			return nil, FindPatternsOutput{}, fmt.Errorf("threshold must be in [0,1], got %v", threshold)
		}
	}
	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	matches := s.catalog.FindByType(graph.PatternType(input.Type), threshold, maxResults)
	if matches == nil {
		matches = []pattern.Match{}
	}
	return nil, FindPatternsOutput{Matches: matches}, nil
}

// NodeSummary returns node kind counts from the store.
func (s *GraphService) NodeSummary(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ NodeSummaryInput,
) (*mcp.CallToolResult, NodeSummaryOutput, error) {
	return nil, NodeSummaryOutput{Counts: s.store.NodeTypeSummary()}, nil
}

// RelationshipSummary returns edge kind counts from the store.
func (s *GraphService) RelationshipSummary(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ RelationshipSummaryInput,
) (*mcp.CallToolResult, RelationshipSummaryOutput, error) {
	return nil, RelationshipSummaryOutput{Counts: s.store.RelationshipTypeSummary()}, nil
}

// ExportGraph writes a point-in-time snapshot to the given path.
func (s *GraphService) ExportGraph(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ExportGraphInput,
) (*mcp.CallToolResult, ExportGraphOutput, error) {
	if input.OutputPath == "" {
		return nil, ExportGraphOutput{}, fmt.Errorf("output_path is required")
	}
	nodes, edges, err := graph.ExportFile(s.store.Snapshot(), input.OutputPath)
	if err != nil {
		return nil, ExportGraphOutput{}, fmt.Errorf("export graph: %w", err)
	}
	return nil, ExportGraphOutput{NodeCount: nodes, EdgeCount: edges}, nil
}

// ExtractTemplate aligns same-type pattern instances into a parameterized
// skeleton. Precondition failures surface to the caller; no partial
// template is returned.
func (s *GraphService) ExtractTemplate(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ExtractTemplateInput,
) (*mcp.CallToolResult, ExtractTemplateOutput, error) {
	if len(input.PatternIDs) == 0 {
		return nil, ExtractTemplateOutput{}, fmt.Errorf("pattern_ids is required")
	}

	instances := s.catalog.FindInstances(input.PatternIDs)
	tpl, err := template.Extract(instances, input.MinInstances)
	if err != nil {
		return nil, ExtractTemplateOutput{}, err
	}
	return nil, ExtractTemplateOutput{Template: *tpl}, nil
}
