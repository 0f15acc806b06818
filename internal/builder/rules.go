package builder

import (
	"strings"

	"github.com/dusk-indust/codegraph/internal/adapter"
	"github.com/dusk-indust/codegraph/internal/graph"
)

// Rule maps one reference shape to an edge kind plus the node kind a stub
// target should be created with. Rules are evaluated in order; the first
// match wins. Containment is structural and handled before any rule runs.
type Rule struct {
	Ref          adapter.RefKind
	NamePrefixes []string // optional: target name must carry one of these
	Edge         graph.EdgeKind
	TargetKind   graph.NodeKind
}

// RuleTable classifies raw references into typed edges. Keeping the table
// explicit makes the naming-convention rules testable and configurable
// instead of scattering string checks through the builder.
type RuleTable struct {
	rules []Rule
}

// DefaultProcPrefixes are the stored-procedure naming conventions recognized
// out of the box.
var DefaultProcPrefixes = []string{"sp_", "usp_"}

// DefaultRules builds the standard rule table. procPrefixes overrides the
// procedure naming convention; nil keeps the default.
func DefaultRules(procPrefixes []string) *RuleTable {
	if len(procPrefixes) == 0 {
		procPrefixes = DefaultProcPrefixes
	}
	return &RuleTable{rules: []Rule{
		{Ref: adapter.RefCall, NamePrefixes: procPrefixes, Edge: graph.EdgeKindDatabaseAccess, TargetKind: graph.NodeKindStoredProcedure},
		{Ref: adapter.RefCall, Edge: graph.EdgeKindMethodCall, TargetKind: graph.NodeKindMethod},
		{Ref: adapter.RefCodeBehind, Edge: graph.EdgeKindCodeBehind, TargetKind: graph.NodeKindClass},
		{Ref: adapter.RefInherit, Edge: graph.EdgeKindInheritance, TargetKind: graph.NodeKindClass},
		{Ref: adapter.RefBind, Edge: graph.EdgeKindBindsTo, TargetKind: graph.NodeKindProperty},
		{Ref: adapter.RefTable, Edge: graph.EdgeKindDatabaseAccess, TargetKind: graph.NodeKindTable},
	}}
}

// Classify returns the edge kind and stub target kind for a reference.
// The boolean is false when no rule matches.
func (t *RuleTable) Classify(ref adapter.Reference) (graph.EdgeKind, graph.NodeKind, bool) {
	target := lastSegment(ref.TargetName)
	for _, r := range t.rules {
		if r.Ref != ref.Kind {
			continue
		}
		if len(r.NamePrefixes) > 0 && !hasPrefixAny(target, r.NamePrefixes) {
			continue
		}
		return r.Edge, r.TargetKind, true
	}
	return "", "", false
}

func hasPrefixAny(name string, prefixes []string) bool {
	lower := strings.ToLower(name)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func lastSegment(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}
