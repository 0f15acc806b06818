// Package adapter defines the normalized symbol stream the graph builder
// consumes. Front-ends for concrete source dialects live behind the Adapter
// interface; any extractor producing FileSymbols plugs in uniformly.
package adapter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// RefKind classifies a raw reference before the builder's rule table maps it
// to an edge kind.
type RefKind string

const (
	RefCall       RefKind = "call"       // invocation of a named callable
	RefInherit    RefKind = "inherit"    // base type in a declaration
	RefCodeBehind RefKind = "codebehind" // page directive naming its class
	RefBind       RefKind = "bind"       // markup binding expression
	RefTable      RefKind = "table"      // SQL statement touching a table
)

// Declaration is one named artifact declared in a file. Parent is the
// qualified path of the enclosing declaration ("" at top level); containment
// is derived from it structurally.
type Declaration struct {
	Kind          graph.NodeKind
	Name          string
	QualifiedPath string
	Parent        string
	Span          graph.Span
	Attributes    map[string]string
}

// Reference is one outgoing reference from a declaration to a named target,
// possibly declared in another file.
type Reference struct {
	SourcePath string // qualified path of the referencing declaration
	TargetName string // simple or qualified name of the target
	Kind       RefKind
	Span       graph.Span
}

// FileSymbols is the complete normalized output for one file.
type FileSymbols struct {
	Declarations []Declaration
	References   []Reference
}

// Adapter extracts the normalized symbol stream from one source dialect.
type Adapter interface {
	// Extract parses a single file's content. path is used for page naming
	// and diagnostics only; it is never opened.
	Extract(path string, source []byte) (*FileSymbols, error)

	// Extensions returns the file extensions this adapter handles,
	// including the leading dot.
	Extensions() []string
}

// Registry maps file extensions to adapters.
type Registry struct {
	byExt map[string]Adapter
}

// NewRegistry builds a registry from the given adapters. Later adapters win
// on extension conflicts.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byExt: make(map[string]Adapter)}
	for _, a := range adapters {
		for _, ext := range a.Extensions() {
			r.byExt[strings.ToLower(ext)] = a
		}
	}
	return r
}

// DefaultRegistry returns a registry with the built-in front-ends.
func DefaultRegistry() *Registry {
	return NewRegistry(NewCSharpAdapter(), NewASPXAdapter(), NewSQLAdapter())
}

// For returns the adapter registered for the file's extension.
func (r *Registry) For(path string) (Adapter, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if a, ok := r.byExt[ext]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("no adapter registered for %q files", ext)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	return out
}
