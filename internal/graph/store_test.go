package graph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// declNode builds a declared (resolved) node with a derived id.
func declNode(kind NodeKind, name, qpath, file string) Node {
	return Node{
		ID:            NodeID(kind, qpath),
		Kind:          kind,
		Name:          name,
		QualifiedPath: qpath,
		SourceFile:    file,
	}
}

// stubNode builds an unresolved placeholder keyed by a bare name.
func stubNode(kind NodeKind, name string) Node {
	return Node{
		ID:            NodeID(kind, name),
		Kind:          kind,
		Name:          name,
		QualifiedPath: name,
		Unresolved:    true,
	}
}

func edgeBetween(src, dst Node, kind EdgeKind) Edge {
	return Edge{
		ID:       EdgeID(src.ID, dst.ID, kind),
		SourceID: src.ID,
		TargetID: dst.ID,
		Kind:     kind,
	}
}

// commitFile is a shorthand that fails the test on commit error.
func commitFile(t *testing.T, s *Store, path string, d FileDelta) {
	t.Helper()
	d.File.Path = path
	d.File.ContentHash = "hash-" + path
	require.NoError(t, s.CommitFileDelta(d), "CommitFileDelta(%s) should succeed", path)
}

func TestNodeID_Deterministic(t *testing.T) {
	a := NodeID(NodeKindClass, "WebShop.Business.CustomerManager")
	b := NodeID(NodeKindClass, "WebShop.Business.CustomerManager")
	assert.Equal(t, a, b, "same identity must map to the same id")

	assert.NotEqual(t, a, NodeID(NodeKindMethod, "WebShop.Business.CustomerManager"),
		"kind is part of the identity")
	assert.NotEqual(t, a, NodeID(NodeKindClass, "WebShop.Business.ProductManager"))
}

func TestStore_UpsertEdge_RejectsDangling(t *testing.T) {
	s := NewStore()
	src := declNode(NodeKindMethod, "GetCustomer", "WebShop.Business.CustomerManager.GetCustomer", "a.cs")
	s.UpsertNode(src)

	_, err := s.UpsertEdge(Edge{
		SourceID: src.ID,
		TargetID: NodeID(NodeKindStoredProcedure, "usp_GetCustomer"),
		Kind:     EdgeKindDatabaseAccess,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDanglingReference)
	assert.Equal(t, 0, len(s.FindEdges("", "", "")), "no edge may be written on failure")
}

func TestStore_CommitFileDelta_AtomicOnDangling(t *testing.T) {
	s := NewStore()
	class := declNode(NodeKindClass, "CustomerManager", "WebShop.Business.CustomerManager", "a.cs")
	bad := Edge{
		ID:       "bogus",
		SourceID: class.ID,
		TargetID: "missing-node",
		Kind:     EdgeKindMethodCall,
	}

	err := s.CommitFileDelta(FileDelta{
		File:  FileRecord{Path: "a.cs"},
		Nodes: []Node{class},
		Edges: []Edge{bad},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDanglingReference)

	assert.Nil(t, s.GetNode(class.ID), "a failed commit must write nothing")
	assert.Nil(t, s.FileRecordFor("a.cs"))
	assert.EqualValues(t, 0, s.Version())
}

func TestStore_CommitFileDelta_ReplacesPriorResults(t *testing.T) {
	s := NewStore()
	class := declNode(NodeKindClass, "CustomerManager", "WebShop.Business.CustomerManager", "a.cs")
	oldMethod := declNode(NodeKindMethod, "GetCustomer", "WebShop.Business.CustomerManager.GetCustomer", "a.cs")
	commitFile(t, s, "a.cs", FileDelta{
		Nodes: []Node{class, oldMethod},
		Edges: []Edge{edgeBetween(class, oldMethod, EdgeKindContains)},
	})

	newMethod := declNode(NodeKindMethod, "LoadCustomer", "WebShop.Business.CustomerManager.LoadCustomer", "a.cs")
	commitFile(t, s, "a.cs", FileDelta{
		Nodes: []Node{class, newMethod},
		Edges: []Edge{edgeBetween(class, newMethod, EdgeKindContains)},
	})

	assert.Nil(t, s.GetNode(oldMethod.ID), "nodes dropped by re-analysis must disappear")
	require.NotNil(t, s.GetNode(newMethod.ID))
	assert.Len(t, s.FindEdges(class.ID, "", EdgeKindContains), 1)

	rec := s.FileRecordFor("a.cs")
	require.NotNil(t, rec)
	assert.Equal(t, StateLinked, rec.State)
	assert.ElementsMatch(t, []string{class.ID, newMethod.ID}, rec.OwnedNodes)
}

func TestStore_CommitFileDelta_KeepsDroppedDeclarationStillCalled(t *testing.T) {
	s := NewStore()
	refresh := declNode(NodeKindMethod, "Refresh", "WebShop.Web.CartPage.Refresh", "cart.aspx.cs")
	reload := declNode(NodeKindMethod, "Reload", "WebShop.Web.CartPage.Reload", "cart.aspx.cs")
	commitFile(t, s, "cart.aspx.cs", FileDelta{
		Nodes: []Node{refresh, reload},
		Edges: []Edge{edgeBetween(reload, refresh, EdgeKindMethodCall)},
	})

	// Re-analysis drops Refresh's declaration but keeps the call to it.
	commitFile(t, s, "cart.aspx.cs", FileDelta{
		Nodes: []Node{reload},
		Edges: []Edge{edgeBetween(reload, refresh, EdgeKindMethodCall)},
	})

	got := s.GetNode(refresh.ID)
	require.NotNil(t, got, "a node the new content still calls must survive as a stub")
	assert.True(t, got.Unresolved)
	assert.Empty(t, s.Owner(refresh.ID))
	assert.Len(t, s.FindEdges(reload.ID, refresh.ID, EdgeKindMethodCall), 1)

	for _, e := range s.FindEdges("", "", "") {
		assert.NotNil(t, s.GetNode(e.SourceID), "edge %s source", e.ID)
		assert.NotNil(t, s.GetNode(e.TargetID), "edge %s target", e.ID)
	}
}

func TestStore_CommitFileDelta_PinsStubEndpoints(t *testing.T) {
	s := NewStore()
	method := declNode(NodeKindMethod, "GetCustomer", "WebShop.Business.CustomerManager.GetCustomer", "a.cs")
	stub := stubNode(NodeKindStoredProcedure, "usp_GetCustomer")
	commitFile(t, s, "a.cs", FileDelta{
		Nodes: []Node{method},
		Stubs: []Node{stub},
		Edges: []Edge{edgeBetween(method, stub, EdgeKindDatabaseAccess)},
	})

	// The resolver may reuse the stored stub without restaging it.
	commitFile(t, s, "a.cs", FileDelta{
		Nodes: []Node{method},
		Edges: []Edge{edgeBetween(method, stub, EdgeKindDatabaseAccess)},
	})

	require.NotNil(t, s.GetNode(stub.ID), "an edge endpoint must never be collected mid-commit")
	assert.Len(t, s.FindEdges(method.ID, stub.ID, EdgeKindDatabaseAccess), 1)
}

func TestStore_CommitFileDelta_OwnershipStaysWithFirstFile(t *testing.T) {
	s := NewStore()
	class := declNode(NodeKindClass, "CustomerManager", "WebShop.Business.CustomerManager", "a.cs")
	commitFile(t, s, "a.cs", FileDelta{Nodes: []Node{class}})

	// b.cs claims the same identity; the commit must refuse the takeover.
	usurper := class
	usurper.SourceFile = "b.cs"
	commitFile(t, s, "b.cs", FileDelta{Nodes: []Node{usurper}})

	assert.Equal(t, "a.cs", s.Owner(class.ID))
	got := s.GetNode(class.ID)
	require.NotNil(t, got)
	assert.Equal(t, "a.cs", got.SourceFile)

	rec := s.FileRecordFor("b.cs")
	require.NotNil(t, rec)
	assert.Empty(t, rec.OwnedNodes, "the losing file must not record the node as its own")
	require.NotEmpty(t, rec.Diagnostics)
	assert.Contains(t, rec.Diagnostics[0].Message, "naming collision")
	assert.Contains(t, rec.Diagnostics[0].Message, "a.cs")

	// Re-analyzing or removing the losing file leaves the node untouched.
	commitFile(t, s, "b.cs", FileDelta{})
	require.NotNil(t, s.GetNode(class.ID))
	s.RemoveFile("b.cs")
	require.NotNil(t, s.GetNode(class.ID))
	assert.Equal(t, "a.cs", s.Owner(class.ID))

	// Only the owner's re-analysis may drop it.
	commitFile(t, s, "a.cs", FileDelta{})
	assert.Nil(t, s.GetNode(class.ID))
}

func TestStore_StubReconciliation(t *testing.T) {
	s := NewStore()

	// a.cs references usp_GetCustomer before its declaration is analyzed.
	method := declNode(NodeKindMethod, "GetCustomer", "WebShop.Business.CustomerManager.GetCustomer", "a.cs")
	stub := stubNode(NodeKindStoredProcedure, "usp_GetCustomer")
	commitFile(t, s, "a.cs", FileDelta{
		Nodes: []Node{method},
		Stubs: []Node{stub},
		Edges: []Edge{edgeBetween(method, stub, EdgeKindDatabaseAccess)},
	})

	got := s.GetNode(stub.ID)
	require.NotNil(t, got)
	assert.True(t, got.Unresolved, "stub must be marked unresolved")
	assert.Empty(t, s.Owner(stub.ID), "stubs are owned by nobody")

	// customers.sql declares the procedure under the same identity.
	proc := declNode(NodeKindStoredProcedure, "usp_GetCustomer", "usp_GetCustomer", "customers.sql")
	commitFile(t, s, "customers.sql", FileDelta{Nodes: []Node{proc}})

	got = s.GetNode(proc.ID)
	require.NotNil(t, got)
	assert.False(t, got.Unresolved, "declaration must clear the stub flag")
	assert.Equal(t, "customers.sql", s.Owner(proc.ID))
	assert.Len(t, s.FindEdges(method.ID, proc.ID, EdgeKindDatabaseAccess), 1,
		"the pre-existing edge must now point at the resolved node")
}

func TestStore_StubNeverDowngradesDeclaration(t *testing.T) {
	s := NewStore()
	proc := declNode(NodeKindStoredProcedure, "usp_GetCustomer", "usp_GetCustomer", "customers.sql")
	commitFile(t, s, "customers.sql", FileDelta{Nodes: []Node{proc}})

	method := declNode(NodeKindMethod, "GetCustomer", "WebShop.Business.CustomerManager.GetCustomer", "a.cs")
	commitFile(t, s, "a.cs", FileDelta{
		Nodes: []Node{method},
		Stubs: []Node{stubNode(NodeKindStoredProcedure, "usp_GetCustomer")},
		Edges: []Edge{edgeBetween(method, proc, EdgeKindDatabaseAccess)},
	})

	got := s.GetNode(proc.ID)
	require.NotNil(t, got)
	assert.False(t, got.Unresolved, "a staged stub must not downgrade a resolved node")
	assert.Equal(t, "customers.sql", got.SourceFile)
}

func TestStore_AbsorbBareStub(t *testing.T) {
	s := NewStore()

	// Page references its code-behind class by qualified name; a caller
	// references the same class by bare name before it is declared.
	caller := declNode(NodeKindMethod, "Page_Load", "WebShop.Web.OrdersPage.Page_Load", "orders.aspx.cs")
	bare := stubNode(NodeKindClass, "CustomerManager")
	commitFile(t, s, "orders.aspx.cs", FileDelta{
		Nodes: []Node{caller},
		Stubs: []Node{bare},
		Edges: []Edge{edgeBetween(caller, bare, EdgeKindMethodCall)},
	})

	decl := declNode(NodeKindClass, "CustomerManager", "WebShop.Business.CustomerManager", "manager.cs")
	commitFile(t, s, "manager.cs", FileDelta{Nodes: []Node{decl}})

	assert.Nil(t, s.GetNode(bare.ID), "the bare-name stub must be absorbed")
	edges := s.FindEdges(caller.ID, decl.ID, EdgeKindMethodCall)
	require.Len(t, edges, 1, "edges must migrate to the qualified declaration")
	assert.Equal(t, EdgeID(caller.ID, decl.ID, EdgeKindMethodCall), edges[0].ID,
		"migrated edges carry the id of their final endpoints")

	// Re-analyzing the caller's file must clean up the migrated edge, so its
	// ownership record has to track the rekeyed id.
	commitFile(t, s, "orders.aspx.cs", FileDelta{Nodes: []Node{caller}})
	assert.Empty(t, s.FindEdges(caller.ID, decl.ID, EdgeKindMethodCall))
}

func TestStore_AbsorbBareStub_DedupesParallelEdge(t *testing.T) {
	s := NewStore()
	decl := declNode(NodeKindClass, "CustomerManager", "WebShop.Business.CustomerManager", "manager.cs")
	commitFile(t, s, "manager.cs", FileDelta{Nodes: []Node{decl}})

	// The caller holds both a resolved edge and a bare-name duplicate.
	caller := declNode(NodeKindMethod, "Page_Load", "WebShop.Web.OrdersPage.Page_Load", "orders.aspx.cs")
	bare := stubNode(NodeKindClass, "CustomerManager")
	commitFile(t, s, "orders.aspx.cs", FileDelta{
		Nodes: []Node{caller},
		Stubs: []Node{bare},
		Edges: []Edge{
			edgeBetween(caller, decl, EdgeKindMethodCall),
			edgeBetween(caller, bare, EdgeKindMethodCall),
		},
	})

	commitFile(t, s, "manager.cs", FileDelta{Nodes: []Node{decl}})

	assert.Nil(t, s.GetNode(bare.ID))
	assert.Len(t, s.FindEdges(caller.ID, decl.ID, EdgeKindMethodCall), 1,
		"absorbing the stub must not duplicate an existing edge")
	assert.Equal(t, 1, s.RelationshipTypeSummary()[EdgeKindMethodCall])
}

func TestStore_RemoveFile_DemotesReferencedNodes(t *testing.T) {
	s := NewStore()
	proc := declNode(NodeKindStoredProcedure, "usp_GetCustomer", "usp_GetCustomer", "customers.sql")
	commitFile(t, s, "customers.sql", FileDelta{Nodes: []Node{proc}})

	method := declNode(NodeKindMethod, "GetCustomer", "WebShop.Business.CustomerManager.GetCustomer", "a.cs")
	commitFile(t, s, "a.cs", FileDelta{
		Nodes: []Node{method},
		Edges: []Edge{edgeBetween(method, proc, EdgeKindDatabaseAccess)},
	})

	s.RemoveFile("customers.sql")

	got := s.GetNode(proc.ID)
	require.NotNil(t, got, "a node still referenced by another file survives removal")
	assert.True(t, got.Unresolved, "the survivor is demoted to a stub")
	assert.Empty(t, s.Owner(proc.ID))
	assert.Nil(t, s.FileRecordFor("customers.sql"))

	// Removing the referencing file too drops everything.
	s.RemoveFile("a.cs")
	assert.Nil(t, s.GetNode(proc.ID))
	assert.Nil(t, s.GetNode(method.ID))
	assert.Equal(t, GraphStats{}, s.Stats())
}

func TestStore_SharedNodesSurviveTombstone(t *testing.T) {
	s := NewStore()
	ns := declNode(NodeKindNamespace, "WebShop.Business", "WebShop.Business", "")

	classA := declNode(NodeKindClass, "CustomerManager", "WebShop.Business.CustomerManager", "a.cs")
	commitFile(t, s, "a.cs", FileDelta{
		Nodes:  []Node{classA},
		Shared: []Node{ns},
		Edges:  []Edge{edgeBetween(ns, classA, EdgeKindContains)},
	})
	classB := declNode(NodeKindClass, "ProductManager", "WebShop.Business.ProductManager", "b.cs")
	commitFile(t, s, "b.cs", FileDelta{
		Nodes:  []Node{classB},
		Shared: []Node{ns},
		Edges:  []Edge{edgeBetween(ns, classB, EdgeKindContains)},
	})

	require.NotNil(t, s.GetNode(ns.ID))
	assert.Empty(t, s.Owner(ns.ID), "shared nodes are never owned")

	s.RemoveFile("a.cs")
	assert.NotNil(t, s.GetNode(ns.ID), "the namespace must outlive one of its files")
	assert.Len(t, s.FindEdges(ns.ID, "", EdgeKindContains), 1)
}

func TestStore_FindNodesByName_CaseInsensitive(t *testing.T) {
	s := NewStore()
	s.UpsertNode(declNode(NodeKindClass, "CustomerManager", "WebShop.Business.CustomerManager", "a.cs"))

	assert.Len(t, s.FindNodesByName("customermanager"), 1)
	assert.Len(t, s.FindNodesByName("CUSTOMERMANAGER"), 1)
	assert.Empty(t, s.FindNodesByName("OrderManager"))
}

func TestStore_Summaries(t *testing.T) {
	s := NewStore()
	class := declNode(NodeKindClass, "CustomerManager", "WebShop.Business.CustomerManager", "a.cs")
	m1 := declNode(NodeKindMethod, "GetCustomer", "WebShop.Business.CustomerManager.GetCustomer", "a.cs")
	m2 := declNode(NodeKindMethod, "SaveCustomer", "WebShop.Business.CustomerManager.SaveCustomer", "a.cs")
	commitFile(t, s, "a.cs", FileDelta{
		Nodes: []Node{class, m1, m2},
		Edges: []Edge{
			edgeBetween(class, m1, EdgeKindContains),
			edgeBetween(class, m2, EdgeKindContains),
		},
	})

	nodes := s.NodeTypeSummary()
	assert.Equal(t, 1, nodes[NodeKindClass])
	assert.Equal(t, 2, nodes[NodeKindMethod])

	edges := s.RelationshipTypeSummary()
	assert.Equal(t, 2, edges[EdgeKindContains])
	assert.Zero(t, edges[EdgeKindMethodCall], "summaries enumerate stored edges only")

	assert.Equal(t, GraphStats{NodeCount: 3, EdgeCount: 2, FileCount: 1}, s.Stats())
}

func TestStore_SetFileState(t *testing.T) {
	s := NewStore()
	s.SetFileState("a.cs", StateParsing)
	rec := s.FileRecordFor("a.cs")
	require.NotNil(t, rec)
	assert.Equal(t, StateParsing, rec.State)

	diag := Diagnostic{File: "a.cs", Message: "boom", Severity: "error"}
	s.SetFileState("a.cs", StateError, diag)
	rec = s.FileRecordFor("a.cs")
	assert.Equal(t, StateError, rec.State)
	require.Len(t, rec.Diagnostics, 1)
	assert.Equal(t, "boom", rec.Diagnostics[0].Message)
}

func TestSnapshot_IsolatedFromLaterCommits(t *testing.T) {
	s := NewStore()
	class := declNode(NodeKindClass, "CustomerManager", "WebShop.Business.CustomerManager", "a.cs")
	commitFile(t, s, "a.cs", FileDelta{Nodes: []Node{class}})

	snap := s.Snapshot()
	before := snap.Version()

	other := declNode(NodeKindClass, "ProductManager", "WebShop.Business.ProductManager", "b.cs")
	commitFile(t, s, "b.cs", FileDelta{Nodes: []Node{other}})

	assert.Equal(t, before, snap.Version(), "a snapshot's version is frozen")
	assert.Nil(t, snap.GetNode(other.ID), "commits after the snapshot are invisible")
	assert.NotNil(t, snap.GetNode(class.ID))
	assert.Equal(t, 1, snap.Stats().NodeCount)
}

func TestSnapshot_ConcurrentCommitsStayConsistent(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("file%d.cs", i)
			qp := fmt.Sprintf("WebShop.Gen.Class%d", i)
			class := declNode(NodeKindClass, fmt.Sprintf("Class%d", i), qp, path)
			method := declNode(NodeKindMethod, "Run", qp+".Run", path)
			_ = s.CommitFileDelta(FileDelta{
				File:  FileRecord{Path: path, ContentHash: path},
				Nodes: []Node{class, method},
				Edges: []Edge{edgeBetween(class, method, EdgeKindContains)},
			})
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			// Every edge in a snapshot must have both endpoints present.
			for _, e := range snap.Edges() {
				assert.NotNil(t, snap.GetNode(e.SourceID))
				assert.NotNil(t, snap.GetNode(e.TargetID))
			}
		}()
	}
	wg.Wait()

	stats := s.Stats()
	assert.Equal(t, 16, stats.NodeCount)
	assert.Equal(t, 8, stats.EdgeCount)
	assert.Equal(t, 8, stats.FileCount)
}
