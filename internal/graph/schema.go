package graph

import (
	"time"

	"github.com/google/uuid"
)

// --- Enums ---

// NodeKind classifies nodes in the source-relationship graph.
type NodeKind string

const (
	NodeKindClass           NodeKind = "class"
	NodeKindMethod          NodeKind = "method"
	NodeKindProperty        NodeKind = "property"
	NodeKindStoredProcedure NodeKind = "stored_procedure"
	NodeKindTable           NodeKind = "table"
	NodeKindPage            NodeKind = "page"
	NodeKindPageControl     NodeKind = "page_control"
	NodeKindNamespace       NodeKind = "namespace"
	NodeKindFile            NodeKind = "file"
)

// NodeKinds lists every node kind, in a fixed order used by signature vectors.
var NodeKinds = []NodeKind{
	NodeKindClass,
	NodeKindMethod,
	NodeKindProperty,
	NodeKindStoredProcedure,
	NodeKindTable,
	NodeKindPage,
	NodeKindPageControl,
	NodeKindNamespace,
	NodeKindFile,
}

// EdgeKind classifies relationships between nodes.
type EdgeKind string

const (
	EdgeKindContains       EdgeKind = "contains"
	EdgeKindMethodCall     EdgeKind = "method_call"
	EdgeKindDatabaseAccess EdgeKind = "database_access"
	EdgeKindCodeBehind     EdgeKind = "codebehind"
	EdgeKindInheritance    EdgeKind = "inheritance"
	EdgeKindBindsTo        EdgeKind = "binds_to"
)

// EdgeKinds lists every edge kind, in a fixed order used by signature vectors.
var EdgeKinds = []EdgeKind{
	EdgeKindContains,
	EdgeKindMethodCall,
	EdgeKindDatabaseAccess,
	EdgeKindCodeBehind,
	EdgeKindInheritance,
	EdgeKindBindsTo,
}

// PatternType classifies recurring structural clusters.
type PatternType string

const (
	PatternDatabaseCRUD    PatternType = "database_crud"
	PatternPage            PatternType = "page"
	PatternBusinessLogic   PatternType = "business_logic"
	PatternAPIEndpoint     PatternType = "api_endpoint"
	PatternValidationLogic PatternType = "validation_logic"
)

// AnalysisState tracks where a file is in its analysis lifecycle.
type AnalysisState string

const (
	StateUnanalyzed AnalysisState = "unanalyzed"
	StateParsing    AnalysisState = "parsing"
	StateParsed     AnalysisState = "parsed"
	StateLinked     AnalysisState = "linked"
	StateError      AnalysisState = "error"
)

// --- Models ---

// Span is a line/column range within a source file. Lines are 1-based.
type Span struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol,omitempty"`
	EndLine   int `json:"endLine,omitempty"`
	EndCol    int `json:"endCol,omitempty"`
}

// Node is one declared code or data artifact.
// (Kind, QualifiedPath) is unique across the store; NodeID derives the id
// from that pair so re-analysis always resolves to the same node.
type Node struct {
	ID            string            `json:"id"`
	Kind          NodeKind          `json:"kind"`
	Name          string            `json:"name"`
	QualifiedPath string            `json:"qualifiedPath"`
	SourceFile    string            `json:"sourceFile,omitempty"`
	Span          Span              `json:"span,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`

	// Unresolved marks a stub created for a cross-file reference whose
	// declaration has not been analyzed yet. Cleared on reconciliation.
	Unresolved bool `json:"unresolved,omitempty"`
}

// Edge is a typed, directed relationship between two nodes.
type Edge struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"sourceId"`
	TargetID   string            `json:"targetId"`
	Kind       EdgeKind          `json:"kind"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Diagnostic is a non-fatal finding attached to a file record.
type Diagnostic struct {
	File     string `json:"file"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "warning" or "error"
}

// FileRecord owns the lifecycle of the nodes and edges one file produced.
type FileRecord struct {
	Path        string        `json:"path"`
	ContentHash string        `json:"contentHash"`
	State       AnalysisState `json:"state"`
	AnalyzedAt  time.Time     `json:"analyzedAt"`
	OwnedNodes  []string      `json:"ownedNodes"`
	OwnedEdges  []string      `json:"ownedEdges"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
}

// GraphStats summarizes a store snapshot.
type GraphStats struct {
	NodeCount int `json:"nodeCount"`
	EdgeCount int `json:"edgeCount"`
	FileCount int `json:"fileCount"`
}

// --- Identity ---

// Namespaces for deterministic UUIDv5 ids. Stable identity is load-bearing:
// re-analysis of a file must map the same (kind, qualifiedPath) to the same
// node id so cross-file edges survive re-analysis of their target.
var (
	nodeNS = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	edgeNS = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
)

// NodeID returns the deterministic id for a (kind, qualifiedPath) identity.
func NodeID(kind NodeKind, qualifiedPath string) string {
	return uuid.NewSHA1(nodeNS, []byte(string(kind)+"\x00"+qualifiedPath)).String()
}

// EdgeID returns the deterministic id for a (source, target, kind) triple.
func EdgeID(sourceID, targetID string, kind EdgeKind) string {
	return uuid.NewSHA1(edgeNS, []byte(sourceID+"\x00"+targetID+"\x00"+string(kind))).String()
}
