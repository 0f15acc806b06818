package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dusk-indust/codegraph/internal/adapter"
	"github.com/dusk-indust/codegraph/internal/graph"
)

func TestRuleTable_Classify(t *testing.T) {
	rules := DefaultRules(nil)

	cases := []struct {
		name       string
		ref        adapter.Reference
		wantEdge   graph.EdgeKind
		wantTarget graph.NodeKind
		wantOK     bool
	}{
		{
			name:       "call with usp prefix is database access",
			ref:        adapter.Reference{Kind: adapter.RefCall, TargetName: "usp_GetCustomer"},
			wantEdge:   graph.EdgeKindDatabaseAccess,
			wantTarget: graph.NodeKindStoredProcedure,
			wantOK:     true,
		},
		{
			name:       "call with sp prefix is database access",
			ref:        adapter.Reference{Kind: adapter.RefCall, TargetName: "SP_ListOrders"},
			wantEdge:   graph.EdgeKindDatabaseAccess,
			wantTarget: graph.NodeKindStoredProcedure,
			wantOK:     true,
		},
		{
			name:       "plain call is a method call",
			ref:        adapter.Reference{Kind: adapter.RefCall, TargetName: "GetCustomer"},
			wantEdge:   graph.EdgeKindMethodCall,
			wantTarget: graph.NodeKindMethod,
			wantOK:     true,
		},
		{
			name:       "prefix applies to the last segment of a qualified name",
			ref:        adapter.Reference{Kind: adapter.RefCall, TargetName: "dbo.usp_GetCustomer"},
			wantEdge:   graph.EdgeKindDatabaseAccess,
			wantTarget: graph.NodeKindStoredProcedure,
			wantOK:     true,
		},
		{
			name:       "codebehind",
			ref:        adapter.Reference{Kind: adapter.RefCodeBehind, TargetName: "WebShop.Web.CustomersPage"},
			wantEdge:   graph.EdgeKindCodeBehind,
			wantTarget: graph.NodeKindClass,
			wantOK:     true,
		},
		{
			name:       "inherit",
			ref:        adapter.Reference{Kind: adapter.RefInherit, TargetName: "BaseManager"},
			wantEdge:   graph.EdgeKindInheritance,
			wantTarget: graph.NodeKindClass,
			wantOK:     true,
		},
		{
			name:       "bind",
			ref:        adapter.Reference{Kind: adapter.RefBind, TargetName: "Name"},
			wantEdge:   graph.EdgeKindBindsTo,
			wantTarget: graph.NodeKindProperty,
			wantOK:     true,
		},
		{
			name:       "table",
			ref:        adapter.Reference{Kind: adapter.RefTable, TargetName: "Customers"},
			wantEdge:   graph.EdgeKindDatabaseAccess,
			wantTarget: graph.NodeKindTable,
			wantOK:     true,
		},
		{
			name:   "unknown ref kind",
			ref:    adapter.Reference{Kind: adapter.RefKind("macro"), TargetName: "X"},
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			edge, target, ok := rules.Classify(tc.ref)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantEdge, edge)
				assert.Equal(t, tc.wantTarget, target)
			}
		})
	}
}

func TestRuleTable_CustomProcPrefixes(t *testing.T) {
	rules := DefaultRules([]string{"proc_"})

	edge, target, ok := rules.Classify(adapter.Reference{Kind: adapter.RefCall, TargetName: "proc_GetCustomer"})
	assert.True(t, ok)
	assert.Equal(t, graph.EdgeKindDatabaseAccess, edge)
	assert.Equal(t, graph.NodeKindStoredProcedure, target)

	// The default prefixes no longer apply once overridden.
	edge, _, ok = rules.Classify(adapter.Reference{Kind: adapter.RefCall, TargetName: "usp_GetCustomer"})
	assert.True(t, ok)
	assert.Equal(t, graph.EdgeKindMethodCall, edge)
}
