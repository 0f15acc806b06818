package graph

import (
	"sort"
	"strings"
)

// Snapshot is an immutable, point-in-time copy of the store. Pattern mining
// and export run against snapshots so they never block or observe an ongoing
// commit; a write that starts after the snapshot is taken is not reflected.
type Snapshot struct {
	version uint64
	nodes   map[string]Node
	edges   map[string]Edge
	files   map[string]FileRecord
	bySrc   map[string][]string
	byDst   map[string][]string
}

// Snapshot deep-copies the store's current state under the read lock.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		version: s.version,
		nodes:   make(map[string]Node, len(s.nodes)),
		edges:   make(map[string]Edge, len(s.edges)),
		files:   make(map[string]FileRecord, len(s.files)),
		bySrc:   make(map[string][]string, len(s.bySrc)),
		byDst:   make(map[string][]string, len(s.byDst)),
	}
	for id, n := range s.nodes {
		snap.nodes[id] = n
	}
	for id, e := range s.edges {
		snap.edges[id] = e
		snap.bySrc[e.SourceID] = append(snap.bySrc[e.SourceID], id)
		snap.byDst[e.TargetID] = append(snap.byDst[e.TargetID], id)
	}
	for p, rec := range s.files {
		snap.files[p] = *rec
	}
	for _, ids := range snap.bySrc {
		sort.Strings(ids)
	}
	for _, ids := range snap.byDst {
		sort.Strings(ids)
	}
	return snap
}

// Version returns the store version the snapshot was taken at.
func (s *Snapshot) Version() uint64 { return s.version }

// GetNode returns the node with the given id, or nil.
func (s *Snapshot) GetNode(id string) *Node {
	if n, ok := s.nodes[id]; ok {
		return &n
	}
	return nil
}

// Nodes returns every node, sorted by id for deterministic iteration.
func (s *Snapshot) Nodes() []Node {
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns every edge, sorted by id.
func (s *Snapshot) Edges() []Edge {
	out := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodesByKind returns nodes of one kind, sorted by qualified path.
func (s *Snapshot) NodesByKind(kind NodeKind) []Node {
	var out []Node
	for _, n := range s.nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedPath < out[j].QualifiedPath })
	return out
}

// OutEdges returns edges leaving the node, optionally filtered by kind.
func (s *Snapshot) OutEdges(nodeID string, kind EdgeKind) []Edge {
	return s.filterEdges(s.bySrc[nodeID], kind)
}

// InEdges returns edges arriving at the node, optionally filtered by kind.
func (s *Snapshot) InEdges(nodeID string, kind EdgeKind) []Edge {
	return s.filterEdges(s.byDst[nodeID], kind)
}

func (s *Snapshot) filterEdges(ids []string, kind EdgeKind) []Edge {
	var out []Edge
	for _, id := range ids {
		e := s.edges[id]
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// FileRecordFor returns the snapshot's record for path, or nil.
func (s *Snapshot) FileRecordFor(path string) *FileRecord {
	if rec, ok := s.files[path]; ok {
		return &rec
	}
	return nil
}

// FindNodesByName returns all nodes whose name matches (case-insensitive).
func (s *Snapshot) FindNodesByName(name string) []Node {
	var out []Node
	for _, n := range s.nodes {
		if strings.EqualFold(n.Name, name) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns node, edge and file counts for the snapshot.
func (s *Snapshot) Stats() GraphStats {
	return GraphStats{
		NodeCount: len(s.nodes),
		EdgeCount: len(s.edges),
		FileCount: len(s.files),
	}
}
