package pattern

import (
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// Instance is one candidate pattern: a class-anchored cluster of nodes and
// the edges among them.
type Instance struct {
	ID         string
	Type       graph.PatternType
	AnchorPath string // anchor's qualified path, used for tie-breaking
	Members    []graph.Node
	Edges      []graph.Edge
	AnalyzedAt time.Time // most recent analysis among member files
}

// Match is one ranked result of a pattern query.
type Match struct {
	PatternID string        `json:"patternId"`
	Score     float64       `json:"score"`
	Summary   MemberSummary `json:"memberSummary"`
}

// MemberSummary describes a pattern instance compactly.
type MemberSummary struct {
	Anchor string                 `json:"anchor"`
	Kinds  map[graph.NodeKind]int `json:"kinds"`
	Files  []string               `json:"files"`
}

// Catalog derives pattern instances from store snapshots and answers
// similarity queries. Signature vectors are cached per (instance, store
// version); any commit bumps the version and naturally invalidates them.
type Catalog struct {
	store *graph.Store
	sigs  *lru.Cache[string, []float64]
}

// NewCatalog creates a Catalog over the given store.
func NewCatalog(store *graph.Store) *Catalog {
	cache, _ := lru.New[string, []float64](512)
	return &Catalog{store: store, sigs: cache}
}

// Instances derives every candidate pattern instance from the snapshot,
// one per class cluster: the class, its contained members, the procedures
// those members access, the tables those procedures touch, and the pages
// (with controls) that name the class.
func (c *Catalog) Instances(snap *graph.Snapshot) []Instance {
	var out []Instance
	for _, class := range snap.NodesByKind(graph.NodeKindClass) {
		if class.Unresolved {
			continue
		}
		inst := c.buildCluster(snap, class)
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) buildCluster(snap *graph.Snapshot, class graph.Node) Instance {
	memberSet := map[string]graph.Node{class.ID: class}
	var edges []graph.Edge
	take := func(e graph.Edge, n *graph.Node) {
		if n == nil {
			return
		}
		if _, ok := memberSet[n.ID]; !ok {
			memberSet[n.ID] = *n
		}
		edges = append(edges, e)
	}

	// Contained methods and properties.
	var methods []graph.Node
	for _, e := range snap.OutEdges(class.ID, graph.EdgeKindContains) {
		n := snap.GetNode(e.TargetID)
		take(e, n)
		if n != nil && n.Kind == graph.NodeKindMethod {
			methods = append(methods, *n)
		}
	}

	// Procedures reached from methods, and tables reached from procedures.
	for _, m := range methods {
		for _, e := range snap.OutEdges(m.ID, graph.EdgeKindDatabaseAccess) {
			proc := snap.GetNode(e.TargetID)
			take(e, proc)
			if proc == nil {
				continue
			}
			for _, te := range snap.OutEdges(proc.ID, graph.EdgeKindDatabaseAccess) {
				take(te, snap.GetNode(te.TargetID))
			}
		}
	}

	// Pages naming the class, plus their controls.
	pageEdges := append(snap.InEdges(class.ID, graph.EdgeKindCodeBehind),
		snap.InEdges(class.ID, graph.EdgeKindBindsTo)...)
	for _, e := range pageEdges {
		page := snap.GetNode(e.SourceID)
		take(e, page)
		if page == nil || page.Kind != graph.NodeKindPage {
			continue
		}
		for _, ce := range snap.OutEdges(page.ID, graph.EdgeKindContains) {
			take(ce, snap.GetNode(ce.TargetID))
		}
	}

	members := make([]graph.Node, 0, len(memberSet))
	for _, n := range memberSet {
		members = append(members, n)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	typ := classify(class, members, edges)
	// The qualified path keeps same-named classes in different namespaces
	// from colliding on one id.
	inst := Instance{
		ID:         fmt.Sprintf("%s_%s", typ, strings.ToLower(class.QualifiedPath)),
		Type:       typ,
		AnchorPath: class.QualifiedPath,
		Members:    members,
		Edges:      edges,
	}
	for _, n := range members {
		if n.SourceFile == "" {
			continue
		}
		if rec := snap.FileRecordFor(n.SourceFile); rec != nil && rec.AnalyzedAt.After(inst.AnalyzedAt) {
			inst.AnalyzedAt = rec.AnalyzedAt
		}
	}
	return inst
}

// classify maps a cluster's composition to its pattern type. Order matters:
// database access dominates, then page coupling, then naming heuristics.
func classify(class graph.Node, members []graph.Node, edges []graph.Edge) graph.PatternType {
	for _, e := range edges {
		if e.Kind == graph.EdgeKindDatabaseAccess {
			return graph.PatternDatabaseCRUD
		}
	}
	for _, n := range members {
		if n.Kind == graph.NodeKindPage {
			return graph.PatternPage
		}
	}

	var methodCount, validating int
	for _, n := range members {
		if n.Kind != graph.NodeKindMethod {
			continue
		}
		methodCount++
		lower := strings.ToLower(n.Name)
		if strings.HasPrefix(lower, "validate") || strings.HasPrefix(lower, "check") ||
			strings.HasPrefix(lower, "verify") {
			validating++
		}
	}
	if methodCount > 0 && validating*2 >= methodCount {
		return graph.PatternValidationLogic
	}

	for _, suffix := range []string{"Service", "Controller", "Handler", "Api"} {
		if strings.HasSuffix(class.Name, suffix) {
			return graph.PatternAPIEndpoint
		}
	}
	return graph.PatternBusinessLogic
}

// FindByType returns instances of the given type whose best similarity to
// another instance of that type clears the threshold, ranked by descending
// score; ties break toward the more recently analyzed instance, then the
// lexicographically smaller anchor path. maxResults caps the list.
func (c *Catalog) FindByType(typ graph.PatternType, threshold float64, maxResults int) []Match {
	snap := c.store.Snapshot()
	var candidates []Instance
	for _, inst := range c.Instances(snap) {
		if inst.Type == typ {
			candidates = append(candidates, inst)
		}
	}

	sigs := make([][]float64, len(candidates))
	for i, inst := range candidates {
		sigs[i] = c.signatureFor(inst, snap.Version())
	}

	var matches []Match
	for i, inst := range candidates {
		var best float64
		for j := range candidates {
			if i == j {
				continue
			}
			if s := Similarity(sigs[i], sigs[j]); s > best {
				best = s
			}
		}
		if best < threshold {
			continue
		}
		matches = append(matches, Match{
			PatternID: inst.ID,
			Score:     best,
			Summary:   summarize(inst),
		})
	}

	byID := make(map[string]Instance, len(candidates))
	for _, inst := range candidates {
		byID[inst.ID] = inst
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		a, b := byID[matches[i].PatternID], byID[matches[j].PatternID]
		if !a.AnalyzedAt.Equal(b.AnalyzedAt) {
			return a.AnalyzedAt.After(b.AnalyzedAt)
		}
		return a.AnchorPath < b.AnchorPath
	})
	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// FindInstances resolves pattern ids against the current snapshot, for
// template extraction. Unknown ids are simply absent from the result.
func (c *Catalog) FindInstances(ids []string) []Instance {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	snap := c.store.Snapshot()
	var out []Instance
	for _, inst := range c.Instances(snap) {
		if want[inst.ID] {
			out = append(out, inst)
		}
	}
	return out
}

func (c *Catalog) signatureFor(inst Instance, version uint64) []float64 {
	key := fmt.Sprintf("%s@%d", inst.ID, version)
	if sig, ok := c.sigs.Get(key); ok {
		return sig
	}
	sig := Signature(inst.Members, inst.Edges)
	c.sigs.Add(key, sig)
	return sig
}

func summarize(inst Instance) MemberSummary {
	s := MemberSummary{
		Anchor: inst.AnchorPath,
		Kinds:  make(map[graph.NodeKind]int),
	}
	fileSet := make(map[string]bool)
	for _, n := range inst.Members {
		s.Kinds[n.Kind]++
		if n.SourceFile != "" {
			fileSet[n.SourceFile] = true
		}
	}
	for f := range fileSet {
		s.Files = append(s.Files, f)
	}
	sort.Strings(s.Files)
	return s
}
