// Package builder turns normalized adapter output into graph store deltas:
// it maps declarations to nodes, resolves references in two phases (local,
// then store-wide with stub fallback) and commits each file atomically.
package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dusk-indust/codegraph/internal/adapter"
	"github.com/dusk-indust/codegraph/internal/graph"
)

// DefaultFileTimeout bounds a single file's analysis.
const DefaultFileTimeout = 30 * time.Second

// Analyzer builds the source-relationship graph one file at a time.
type Analyzer struct {
	store    *graph.Store
	registry *adapter.Registry
	rules    *RuleTable
	timeout  time.Duration
	workers  int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithFileTimeout sets the per-file analysis budget.
func WithFileTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithWorkers bounds batch analysis parallelism.
func WithWorkers(n int) Option {
	return func(a *Analyzer) { a.workers = n }
}

// New creates an Analyzer over the given store, adapter registry and rules.
func New(store *graph.Store, registry *adapter.Registry, rules *RuleTable, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:    store,
		registry: registry,
		rules:    rules,
		timeout:  DefaultFileTimeout,
		workers:  4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FileResult summarizes one file's analysis.
type FileResult struct {
	Path        string             `json:"path"`
	NodesAdded  int                `json:"nodesAdded"`
	EdgesAdded  int                `json:"edgesAdded"`
	NoOp        bool               `json:"noOp,omitempty"`
	Diagnostics []graph.Diagnostic `json:"diagnostics,omitempty"`
}

// HashContent returns the content hash used for no-op detection.
func HashContent(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// Analyze runs the full per-file pipeline on raw file content: hash
// short-circuit, adapter extraction, node mapping, two-phase reference
// resolution and transactional commit.
func (a *Analyzer) Analyze(ctx context.Context, path string, source []byte) (*FileResult, error) {
	hash := HashContent(source)
	if rec := a.store.FileRecordFor(path); rec != nil &&
		rec.ContentHash == hash && rec.State == graph.StateLinked {
		return &FileResult{Path: path, NoOp: true}, nil
	}

	front, err := a.registry.For(path)
	if err != nil {
		return a.failFile(path, err), nil
	}

	a.store.SetFileState(path, graph.StateParsing)

	syms, err := front.Extract(path, source)
	if err != nil {
		return a.failFile(path, fmt.Errorf("parse failure: %w", err)), nil
	}
	if err := ctx.Err(); err != nil {
		return a.failFile(path, fmt.Errorf("timeout: %w", err)), nil
	}

	return a.link(ctx, path, hash, syms)
}

// failFile transitions a file to the Error state, attaching the diagnostic
// to the file record and its file-level pseudo node. The rest of the graph
// is untouched.
func (a *Analyzer) failFile(path string, cause error) *FileResult {
	diag := graph.Diagnostic{File: path, Message: cause.Error(), Severity: "error"}
	a.store.SetFileState(path, graph.StateError, diag)
	a.store.UpsertNode(graph.Node{
		Kind:          graph.NodeKindFile,
		Name:          path,
		QualifiedPath: path,
		SourceFile:    path,
		Attributes:    map[string]string{"error": cause.Error()},
	})
	return &FileResult{Path: path, Diagnostics: []graph.Diagnostic{diag}}
}

// link maps declarations to nodes, resolves references and commits the delta.
func (a *Analyzer) link(ctx context.Context, path, hash string, syms *adapter.FileSymbols) (*FileResult, error) {
	result := &FileResult{Path: path}
	delta := graph.FileDelta{
		File: graph.FileRecord{Path: path, ContentHash: hash, AnalyzedAt: time.Now()},
	}

	fileNode := graph.Node{
		ID:            graph.NodeID(graph.NodeKindFile, path),
		Kind:          graph.NodeKindFile,
		Name:          path,
		QualifiedPath: path,
		SourceFile:    path,
	}
	delta.Nodes = append(delta.Nodes, fileNode)

	// Phase 1: declarations. Identity is (kind, qualifiedPath); a node
	// already owned by a different file is a naming collision and the older
	// file stays authoritative until it is re-analyzed.
	local := make(map[string]graph.Node, len(syms.Declarations)) // qualifiedPath -> node
	localByName := make(map[string][]graph.Node)
	for _, decl := range syms.Declarations {
		node := graph.Node{
			ID:            graph.NodeID(decl.Kind, decl.QualifiedPath),
			Kind:          decl.Kind,
			Name:          decl.Name,
			QualifiedPath: decl.QualifiedPath,
			SourceFile:    path,
			Span:          decl.Span,
			Attributes:    decl.Attributes,
		}
		if decl.Kind == graph.NodeKindNamespace {
			node.SourceFile = "" // namespaces span files
			delta.Shared = append(delta.Shared, node)
		} else {
			if owner := a.store.Owner(node.ID); owner != "" && owner != path {
				result.Diagnostics = append(result.Diagnostics, graph.Diagnostic{
					File:     path,
					Message:  fmt.Sprintf("naming collision: %s %q already declared by %s", decl.Kind, decl.QualifiedPath, owner),
					Severity: "warning",
				})
				continue
			}
			delta.Nodes = append(delta.Nodes, node)
		}
		local[decl.QualifiedPath] = node
		localByName[decl.Name] = append(localByName[decl.Name], node)
	}

	// Containment from declaration nesting. It always wins: the pair is
	// reserved before reference edges are considered.
	pairTaken := make(map[string]bool)
	addEdge := func(src, dst string, kind graph.EdgeKind, span graph.Span) {
		pair := src + "\x00" + dst
		if kind == graph.EdgeKindContains {
			pairTaken[pair] = true
		} else if pairTaken[pair] {
			return
		}
		e := graph.Edge{
			ID:       graph.EdgeID(src, dst, kind),
			SourceID: src,
			TargetID: dst,
			Kind:     kind,
		}
		if span.StartLine > 0 {
			e.Attributes = map[string]string{"line": fmt.Sprintf("%d", span.StartLine)}
		}
		delta.Edges = append(delta.Edges, e)
	}

	for _, decl := range syms.Declarations {
		node, ok := local[decl.QualifiedPath]
		if !ok {
			continue // collision loser: no containment edge either
		}
		if decl.Parent == "" {
			addEdge(fileNode.ID, node.ID, graph.EdgeKindContains, decl.Span)
			continue
		}
		if parent, ok := local[decl.Parent]; ok {
			addEdge(parent.ID, node.ID, graph.EdgeKindContains, decl.Span)
		} else {
			addEdge(fileNode.ID, node.ID, graph.EdgeKindContains, decl.Span)
		}
	}

	// Phase 2: references. Local targets first, then a store-wide name
	// lookup; anything still unresolved gets a stub target reconciled when
	// the real declaration arrives.
	stubs := make(map[string]graph.Node)
	for _, ref := range syms.References {
		if err := ctx.Err(); err != nil {
			return a.failFile(path, fmt.Errorf("timeout: %w", err)), nil
		}
		src, ok := local[ref.SourcePath]
		if !ok {
			continue // reference from a collision loser or unknown scope
		}
		edgeKind, targetKind, ok := a.rules.Classify(ref)
		if !ok {
			continue
		}

		targetID := a.resolveTarget(ref, targetKind, local, localByName)
		if targetID == "" {
			stub := graph.Node{
				ID:            graph.NodeID(targetKind, ref.TargetName),
				Kind:          targetKind,
				Name:          lastSegment(ref.TargetName),
				QualifiedPath: ref.TargetName,
				Unresolved:    true,
			}
			stubs[stub.ID] = stub
			targetID = stub.ID
		}
		if targetID == src.ID {
			continue // self references carry no structure
		}
		addEdge(src.ID, targetID, edgeKind, ref.Span)
	}
	for _, stub := range stubs {
		delta.Stubs = append(delta.Stubs, stub)
	}

	delta.File.Diagnostics = result.Diagnostics
	if err := a.store.CommitFileDelta(delta); err != nil {
		// A dangling reference here is a builder bug, not a file problem.
		return nil, fmt.Errorf("commit %s: %w", path, err)
	}

	result.NodesAdded = len(delta.Nodes) + len(delta.Stubs) + len(delta.Shared)
	result.EdgesAdded = len(delta.Edges)
	return result, nil
}

// resolveTarget finds the node a reference points at: same-file declarations
// first, then the whole store by identity and by name, preferring the kind
// the rule table expects. Returns "" when unresolved.
func (a *Analyzer) resolveTarget(ref adapter.Reference, kind graph.NodeKind,
	local map[string]graph.Node, localByName map[string][]graph.Node) string {

	if n, ok := local[ref.TargetName]; ok {
		return n.ID
	}
	name := lastSegment(ref.TargetName)
	for _, n := range localByName[name] {
		if n.Kind == kind {
			return n.ID
		}
	}

	// Exact identity match against the store.
	if n := a.store.GetNode(graph.NodeID(kind, ref.TargetName)); n != nil && !n.Unresolved {
		return n.ID
	}
	// Name lookup across the store, preferring the expected kind and
	// resolved nodes over stubs.
	var fallback string
	for _, n := range a.store.FindNodesByName(name) {
		if n.Kind != kind {
			continue
		}
		if !n.Unresolved {
			return n.ID
		}
		if fallback == "" {
			fallback = n.ID
		}
	}
	return fallback
}
