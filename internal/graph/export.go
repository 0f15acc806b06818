package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ExportDoc is the portable graph document consumed by visualization and by
// the external generation step.
type ExportDoc struct {
	Nodes []ExportNode `json:"nodes"`
	Edges []ExportEdge `json:"edges"`
}

// ExportNode is the wire form of a node.
type ExportNode struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`
	Name string   `json:"name"`
	File string   `json:"file,omitempty"`
	Line int      `json:"line,omitempty"`
}

// ExportEdge is the wire form of an edge.
type ExportEdge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
}

// Export writes the snapshot as a JSON document and returns node and edge
// counts. The snapshot guarantees a consistent point-in-time view.
func Export(snap *Snapshot, w io.Writer) (nodeCount, edgeCount int, err error) {
	doc := ExportDoc{
		Nodes: make([]ExportNode, 0, len(snap.nodes)),
		Edges: make([]ExportEdge, 0, len(snap.edges)),
	}
	for _, n := range snap.Nodes() {
		doc.Nodes = append(doc.Nodes, ExportNode{
			ID:   n.ID,
			Kind: n.Kind,
			Name: n.Name,
			File: n.SourceFile,
			Line: n.Span.StartLine,
		})
	}
	for _, e := range snap.Edges() {
		doc.Edges = append(doc.Edges, ExportEdge{
			ID:     e.ID,
			Source: e.SourceID,
			Target: e.TargetID,
			Kind:   e.Kind,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return 0, 0, fmt.Errorf("encode graph: %w", err)
	}
	return len(doc.Nodes), len(doc.Edges), nil
}

// ExportFile writes the snapshot to the given path.
func ExportFile(snap *Snapshot, path string) (nodeCount, edgeCount int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()
	return Export(snap, f)
}

// Import reads an exported document into an empty store, reconstructing an
// isomorphic graph. Nodes are inserted before edges so no edge dangles.
func Import(r io.Reader) (*Store, error) {
	var doc ExportDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}

	store := NewStore()
	for _, n := range doc.Nodes {
		store.UpsertNode(Node{
			ID:            n.ID,
			Kind:          n.Kind,
			Name:          n.Name,
			QualifiedPath: n.Name,
			SourceFile:    n.File,
			Span:          Span{StartLine: n.Line},
		})
	}
	for _, e := range doc.Edges {
		if _, err := store.UpsertEdge(Edge{
			ID:       e.ID,
			SourceID: e.Source,
			TargetID: e.Target,
			Kind:     e.Kind,
		}); err != nil {
			return nil, fmt.Errorf("edge %s: %w", e.ID, err)
		}
	}
	return store, nil
}
