package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrDanglingReference is returned when an edge names an endpoint that is
// absent from the store and no stub was supplied for it. This is a store
// invariant violation: callers must either resolve the target or stage a
// stub node in the same delta.
var ErrDanglingReference = errors.New("dangling reference")

// FileDelta is one file's complete analysis output, committed atomically.
// Nodes are declared by (and owned by) the file. Stubs are placeholder
// targets for cross-file references not yet analyzed, owned by nobody.
// Shared holds nodes that legitimately span files (namespaces): created
// when absent, never owned, never tombstoned.
type FileDelta struct {
	File   FileRecord
	Nodes  []Node
	Stubs  []Node
	Shared []Node
	Edges  []Edge
}

// Store is the in-memory source-relationship graph. All mutations go through
// per-file transactions (CommitFileDelta / RemoveFile); readers either see
// the state before or after a commit, never a partial one. Snapshot returns
// an immutable point-in-time copy for pattern mining and export.
type Store struct {
	mu      sync.RWMutex
	version uint64

	nodes  map[string]Node
	edges  map[string]Edge
	files  map[string]*FileRecord
	owner  map[string]string // node id -> owning file path
	byKind map[NodeKind]map[string]bool
	byName map[string][]string // lowercase name -> node ids
	bySrc  map[string]map[string]bool
	byDst  map[string]map[string]bool
}

// NewStore returns an initialized, empty Store.
func NewStore() *Store {
	return &Store{
		nodes:  make(map[string]Node),
		edges:  make(map[string]Edge),
		files:  make(map[string]*FileRecord),
		owner:  make(map[string]string),
		byKind: make(map[NodeKind]map[string]bool),
		byName: make(map[string][]string),
		bySrc:  make(map[string]map[string]bool),
		byDst:  make(map[string]map[string]bool),
	}
}

// Version returns the store's commit counter. It increases on every
// successful mutation and keys derived caches (pattern signatures).
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// --- Single-item mutations (import path, tests) ---

// UpsertNode inserts or replaces a node and returns its id. The id is
// derived from (kind, qualifiedPath) when empty.
func (s *Store) UpsertNode(n Node) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = NodeID(n.Kind, n.QualifiedPath)
	}
	s.putNode(n)
	s.version++
	return n.ID
}

// UpsertEdge inserts or replaces an edge and returns its id. Both endpoints
// must already exist; a missing endpoint yields ErrDanglingReference.
func (s *Store) UpsertEdge(e Edge) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[e.SourceID]; !ok {
		return "", fmt.Errorf("edge source %s: %w", e.SourceID, ErrDanglingReference)
	}
	if _, ok := s.nodes[e.TargetID]; !ok {
		return "", fmt.Errorf("edge target %s: %w", e.TargetID, ErrDanglingReference)
	}
	if e.ID == "" {
		e.ID = EdgeID(e.SourceID, e.TargetID, e.Kind)
	}
	s.putEdge(e)
	s.version++
	return e.ID, nil
}

// --- Per-file transactions ---

// CommitFileDelta applies one file's analysis result atomically. It validates
// every edge endpoint against existing nodes plus the staged delta, tombstones
// the file's previous nodes and edges, reconciles stubs, and records the file
// as Linked. On validation failure nothing is written.
func (s *Store) CommitFileDelta(d FileDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate before touching anything: all-or-nothing per file.
	staged := make(map[string]bool, len(d.Nodes)+len(d.Stubs)+len(d.Shared))
	for _, n := range d.Nodes {
		staged[n.ID] = true
	}
	for _, n := range d.Stubs {
		staged[n.ID] = true
	}
	for _, n := range d.Shared {
		staged[n.ID] = true
	}
	for _, e := range d.Edges {
		if _, ok := s.nodes[e.SourceID]; !ok && !staged[e.SourceID] {
			return fmt.Errorf("edge %s source %s: %w", e.Kind, e.SourceID, ErrDanglingReference)
		}
		if _, ok := s.nodes[e.TargetID]; !ok && !staged[e.TargetID] {
			return fmt.Errorf("edge %s target %s: %w", e.Kind, e.TargetID, ErrDanglingReference)
		}
	}

	// Endpoints the incoming edges rely on must survive the tombstone pass,
	// even ones this file declared before but no longer does.
	pinned := make(map[string]bool, len(d.Edges)*2)
	for _, e := range d.Edges {
		pinned[e.SourceID] = true
		pinned[e.TargetID] = true
	}

	s.tombstoneFile(d.File.Path, staged, pinned)

	rec := d.File
	rec.State = StateLinked
	if rec.AnalyzedAt.IsZero() {
		rec.AnalyzedAt = time.Now()
	}
	rec.OwnedNodes = rec.OwnedNodes[:0]
	rec.OwnedEdges = rec.OwnedEdges[:0]

	for _, n := range d.Nodes {
		// Single-owner invariant: the first file to declare an identity keeps
		// it until that file is re-analyzed or removed. The builder warns on
		// collisions before committing, but only this check, under the write
		// lock, is race-free.
		if owner, taken := s.owner[n.ID]; taken && owner != d.File.Path {
			rec.Diagnostics = append(rec.Diagnostics, Diagnostic{
				File:     d.File.Path,
				Message:  fmt.Sprintf("naming collision: %s %q already declared by %s", n.Kind, n.QualifiedPath, owner),
				Severity: "warning",
			})
			continue
		}
		if prev, ok := s.nodes[n.ID]; ok && prev.Unresolved {
			n = reconcile(prev, n)
		}
		s.putNode(n)
		s.owner[n.ID] = d.File.Path
		rec.OwnedNodes = append(rec.OwnedNodes, n.ID)
		s.absorbBareStub(n)
	}
	for _, n := range d.Shared {
		if _, ok := s.nodes[n.ID]; !ok {
			s.putNode(n)
		}
	}
	for _, stub := range d.Stubs {
		if _, ok := s.nodes[stub.ID]; ok {
			continue // never downgrade an existing node to a stub
		}
		stub.Unresolved = true
		s.putNode(stub)
	}
	for _, e := range d.Edges {
		s.putEdge(e)
		rec.OwnedEdges = append(rec.OwnedEdges, e.ID)
	}

	s.files[d.File.Path] = &rec
	s.version++
	return nil
}

// RemoveFile tombstones every node and edge owned by the given file and drops
// its record. Nodes still referenced by other files' edges are demoted to
// unresolved stubs rather than deleted, so no edge ever dangles.
func (s *Store) RemoveFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstoneFile(path, nil, nil)
	delete(s.files, path)
	s.version++
}

// tombstoneFile removes a file's owned edges and nodes. keep holds node ids
// about to be re-declared by an incoming delta; those are left in place.
// pinned holds the endpoints of the delta's edges: nodes the new content
// still references are demoted to unresolved stubs instead of dropped, so the
// edges inserted after the tombstone never dangle.
// Caller must hold the write lock.
func (s *Store) tombstoneFile(path string, keep, pinned map[string]bool) {
	rec, ok := s.files[path]
	if !ok {
		return
	}
	touched := make(map[string]bool, len(rec.OwnedEdges))
	for _, eid := range rec.OwnedEdges {
		if e, ok := s.edges[eid]; ok {
			touched[e.SourceID] = true
			touched[e.TargetID] = true
		}
		s.dropEdge(eid)
	}
	// Stubs exist only to anchor edges; collect any that just lost their last one.
	for nid := range touched {
		if n, ok := s.nodes[nid]; ok && n.Unresolved && s.owner[nid] == "" &&
			!s.referenced(nid) && !keep[nid] && !pinned[nid] {
			s.dropNode(nid)
		}
	}
	for _, nid := range rec.OwnedNodes {
		if keep[nid] || s.owner[nid] != path {
			continue
		}
		delete(s.owner, nid)
		if s.referenced(nid) || pinned[nid] {
			n := s.nodes[nid]
			n.Unresolved = true
			n.SourceFile = ""
			s.putNode(n)
			continue
		}
		s.dropNode(nid)
	}
}

// absorbBareStub migrates edges off a stub that was created under the bare
// target name once the qualified declaration arrives, then drops the stub.
// Reconciliation is idempotent: once absorbed, the bare id no longer exists.
// Caller must hold the write lock.
func (s *Store) absorbBareStub(decl Node) {
	bareID := NodeID(decl.Kind, decl.Name)
	if bareID == decl.ID {
		return
	}
	stub, ok := s.nodes[bareID]
	if !ok || !stub.Unresolved {
		return
	}
	for _, eid := range keys(s.bySrc[bareID]) {
		e := s.edges[eid]
		s.dropEdge(eid)
		e.SourceID = decl.ID
		s.rekeyEdge(e)
	}
	for _, eid := range keys(s.byDst[bareID]) {
		e := s.edges[eid]
		s.dropEdge(eid)
		e.TargetID = decl.ID
		s.rekeyEdge(e)
	}
	s.dropNode(bareID)
}

// rekeyEdge re-inserts a retargeted edge under its canonical id and updates
// the owning file's record. If an edge already exists under that id the
// migrated duplicate is discarded.
// Caller must hold the write lock.
func (s *Store) rekeyEdge(e Edge) {
	newID := EdgeID(e.SourceID, e.TargetID, e.Kind)
	if newID == e.ID {
		s.putEdge(e)
		return
	}
	if _, exists := s.edges[newID]; exists {
		return
	}
	for _, rec := range s.files {
		for i, eid := range rec.OwnedEdges {
			if eid == e.ID {
				rec.OwnedEdges[i] = newID
			}
		}
	}
	e.ID = newID
	s.putEdge(e)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// reconcile merges an incoming declaration over a stub: the declaration wins
// on every field, stub attributes survive where the declaration is silent.
func reconcile(stub, decl Node) Node {
	if len(stub.Attributes) > 0 {
		merged := make(map[string]string, len(stub.Attributes)+len(decl.Attributes))
		for k, v := range stub.Attributes {
			merged[k] = v
		}
		for k, v := range decl.Attributes {
			merged[k] = v
		}
		decl.Attributes = merged
	}
	decl.Unresolved = false
	return decl
}

// --- Index maintenance (write lock held) ---

func (s *Store) putNode(n Node) {
	if prev, ok := s.nodes[n.ID]; ok {
		s.unindexNode(prev)
	}
	s.nodes[n.ID] = n
	if s.byKind[n.Kind] == nil {
		s.byKind[n.Kind] = make(map[string]bool)
	}
	s.byKind[n.Kind][n.ID] = true
	key := strings.ToLower(n.Name)
	s.byName[key] = append(s.byName[key], n.ID)
}

func (s *Store) unindexNode(n Node) {
	delete(s.byKind[n.Kind], n.ID)
	key := strings.ToLower(n.Name)
	ids := s.byName[key]
	for i, id := range ids {
		if id == n.ID {
			s.byName[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byName[key]) == 0 {
		delete(s.byName, key)
	}
}

func (s *Store) dropNode(id string) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	s.unindexNode(n)
	delete(s.nodes, id)
	delete(s.owner, id)
}

func (s *Store) putEdge(e Edge) {
	s.edges[e.ID] = e
	if s.bySrc[e.SourceID] == nil {
		s.bySrc[e.SourceID] = make(map[string]bool)
	}
	s.bySrc[e.SourceID][e.ID] = true
	if s.byDst[e.TargetID] == nil {
		s.byDst[e.TargetID] = make(map[string]bool)
	}
	s.byDst[e.TargetID][e.ID] = true
}

func (s *Store) dropEdge(id string) {
	e, ok := s.edges[id]
	if !ok {
		return
	}
	delete(s.bySrc[e.SourceID], id)
	delete(s.byDst[e.TargetID], id)
	delete(s.edges, id)
}

// referenced reports whether any edge still points at or out of the node.
func (s *Store) referenced(id string) bool {
	return len(s.bySrc[id]) > 0 || len(s.byDst[id]) > 0
}

// --- Reads ---

// GetNode returns the node with the given id, or nil.
func (s *Store) GetNode(id string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[id]; ok {
		return &n
	}
	return nil
}

// Owner returns the file that owns a node, or "" for stubs.
func (s *Store) Owner(nodeID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner[nodeID]
}

// FindNodesByKind returns all nodes of the given kind, sorted by qualified path.
func (s *Store) FindNodesByKind(kind NodeKind) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.byKind[kind]))
	for id := range s.byKind[kind] {
		out = append(out, s.nodes[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedPath < out[j].QualifiedPath })
	return out
}

// FindNodesByName returns all nodes whose name matches (case-insensitive).
func (s *Store) FindNodesByName(name string) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byName[strings.ToLower(name)]
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.nodes[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindEdges returns edges matching the given filters; empty values match all.
func (s *Store) FindEdges(sourceID, targetID string, kind EdgeKind) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates map[string]bool
	switch {
	case sourceID != "":
		candidates = s.bySrc[sourceID]
	case targetID != "":
		candidates = s.byDst[targetID]
	}

	var out []Edge
	consider := func(e Edge) {
		if sourceID != "" && e.SourceID != sourceID {
			return
		}
		if targetID != "" && e.TargetID != targetID {
			return
		}
		if kind != "" && e.Kind != kind {
			return
		}
		out = append(out, e)
	}
	if candidates != nil {
		for id := range candidates {
			consider(s.edges[id])
		}
	} else {
		for _, e := range s.edges {
			consider(e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FileRecordFor returns a copy of the record for path, or nil if the file
// has never been analyzed.
func (s *Store) FileRecordFor(path string) *FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.files[path]; ok {
		cp := *rec
		return &cp
	}
	return nil
}

// SetFileState transitions a file's analysis state and appends diagnostics.
// Used for Parsing and Error transitions that happen outside a commit.
func (s *Store) SetFileState(path string, state AnalysisState, diags ...Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[path]
	if !ok {
		rec = &FileRecord{Path: path, State: StateUnanalyzed}
		s.files[path] = rec
	}
	rec.State = state
	rec.Diagnostics = append(rec.Diagnostics, diags...)
	s.version++
}

// NodeTypeSummary returns kind -> count over all nodes.
func (s *Store) NodeTypeSummary() map[NodeKind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[NodeKind]int)
	for _, n := range s.nodes {
		out[n.Kind]++
	}
	return out
}

// RelationshipTypeSummary returns edge kind -> count over all edges.
func (s *Store) RelationshipTypeSummary() map[EdgeKind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[EdgeKind]int)
	for _, e := range s.edges {
		out[e.Kind]++
	}
	return out
}

// Stats returns node, edge and file counts.
func (s *Store) Stats() GraphStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GraphStats{
		NodeCount: len(s.nodes),
		EdgeCount: len(s.edges),
		FileCount: len(s.files),
	}
}
