package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewGraphMCPServer creates an MCP server with all 6 graph tools registered.
func NewGraphMCPServer(svc *GraphService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "codegraph",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_specific_files",
		Description: "Analyze specific source files (.cs, .aspx, .sql) and merge their declarations and references into the cross-file relationship graph. Returns per-file errors alongside the aggregate node/edge delta.",
	}, svc.AnalyzeFiles)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_patterns_by_type",
		Description: "Find recurring structural patterns of a given type (database_crud, page, business_logic, api_endpoint, validation_logic) ranked by similarity score.",
	}, svc.FindPatterns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_node_types_summary",
		Description: "Get a count of graph nodes per kind (class, method, stored_procedure, page, ...).",
	}, svc.NodeSummary)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_relationship_types_summary",
		Description: "Get a count of graph edges per kind (contains, method_call, database_access, codebehind, ...).",
	}, svc.RelationshipSummary)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_graph_data",
		Description: "Export the full graph as a portable JSON document for visualization or downstream generation.",
	}, svc.ExportGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "extract_template",
		Description: "Derive a parameterized code skeleton from two or more structurally similar pattern instances by diffing their identifiers into placeholder slots.",
	}, svc.ExtractTemplate)

	return server
}

// RunMCPServer starts an HTTP server exposing the graph MCP tools.
func RunMCPServer(ctx context.Context, svc *GraphService, addr string) error {
	server := NewGraphMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// RunStdio serves the graph MCP tools over stdin/stdout.
func RunStdio(ctx context.Context, svc *GraphService) error {
	return NewGraphMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}
