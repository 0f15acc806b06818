package adapter

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// CSharpAdapter extracts namespaces, classes, methods, properties and call
// references from C# sources with line-oriented pattern matching.
type CSharpAdapter struct{}

// NewCSharpAdapter returns a C# front-end.
func NewCSharpAdapter() *CSharpAdapter { return &CSharpAdapter{} }

// Extensions implements Adapter.
func (a *CSharpAdapter) Extensions() []string { return []string{".cs"} }

var (
	csNamespaceRe = regexp.MustCompile(`^namespace\s+([A-Za-z0-9_.]+)`)
	csClassRe     = regexp.MustCompile(`^(?:public|private|protected|internal)?\s*(?:sealed\s+|partial\s+|static\s+|abstract\s+)*class\s+([A-Za-z0-9_]+)(?:\s*:\s*([A-Za-z0-9_.]+))?`)
	csMethodRe    = regexp.MustCompile(`^(?:public|private|protected|internal)\s+(?:static\s+|async\s+|override\s+|virtual\s+)*[A-Za-z0-9_<>,\[\]\.]+\s+([A-Za-z0-9_]+)\s*\(`)
	csPropertyRe  = regexp.MustCompile(`^(?:public|private|protected|internal)\s+(?:static\s+|virtual\s+)*[A-Za-z0-9_<>,\[\]\.]+\s+([A-Za-z0-9_]+)\s*\{\s*(?:get|set)`)
	csCallRe      = regexp.MustCompile(`\b[A-Za-z0-9_]+\.([A-Za-z0-9_]+)\s*\(`)
	csQuotedRe    = regexp.MustCompile(`"([A-Za-z0-9_]+)"`)
)

// csDBMarkers flag lines that touch ADO.NET; quoted identifiers on those
// lines are treated as callable names and classified by the builder's rules.
var csDBMarkers = []string{"SqlCommand", "CommandText", "ExecuteNonQuery", "ExecuteScalar", "ExecuteReader"}

// csNoiseCalls are receiver methods never worth an edge.
var csNoiseCalls = map[string]bool{
	"ToString": true, "Equals": true, "GetType": true, "GetHashCode": true,
	"Add": true, "Format": true, "WriteLine": true, "Parse": true,
	"DataBind": true, "AddWithValue": true, "Dispose": true, "Close": true,
}

// Extract implements Adapter.
func (a *CSharpAdapter) Extract(path string, source []byte) (*FileSymbols, error) {
	out := &FileSymbols{}

	var namespace, class, method string
	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}

		if m := csNamespaceRe.FindStringSubmatch(text); m != nil {
			namespace = m[1]
			out.Declarations = append(out.Declarations, Declaration{
				Kind:          graph.NodeKindNamespace,
				Name:          namespace,
				QualifiedPath: namespace,
				Span:          graph.Span{StartLine: line},
			})
			continue
		}

		if m := csClassRe.FindStringSubmatch(text); m != nil {
			class = m[1]
			method = ""
			qp := qualify(namespace, class)
			decl := Declaration{
				Kind:          graph.NodeKindClass,
				Name:          class,
				QualifiedPath: qp,
				Parent:        namespace,
				Span:          graph.Span{StartLine: line},
			}
			if mod := accessModifier(text); mod != "" {
				decl.Attributes = map[string]string{"access": mod}
			}
			out.Declarations = append(out.Declarations, decl)
			if base := m[2]; base != "" {
				out.References = append(out.References, Reference{
					SourcePath: qp,
					TargetName: base,
					Kind:       RefInherit,
					Span:       graph.Span{StartLine: line},
				})
			}
			continue
		}

		if class != "" {
			if m := csPropertyRe.FindStringSubmatch(text); m != nil {
				out.Declarations = append(out.Declarations, Declaration{
					Kind:          graph.NodeKindProperty,
					Name:          m[1],
					QualifiedPath: qualify(namespace, class, m[1]),
					Parent:        qualify(namespace, class),
					Span:          graph.Span{StartLine: line},
				})
				continue
			}
			if m := csMethodRe.FindStringSubmatch(text); m != nil {
				method = m[1]
				out.Declarations = append(out.Declarations, Declaration{
					Kind:          graph.NodeKindMethod,
					Name:          method,
					QualifiedPath: qualify(namespace, class, method),
					Parent:        qualify(namespace, class),
					Span:          graph.Span{StartLine: line},
					Attributes:    methodAttrs(text),
				})
				continue
			}
		}

		if method == "" {
			continue
		}
		source := qualify(namespace, class, method)

		if hasAny(text, csDBMarkers) {
			for _, m := range csQuotedRe.FindAllStringSubmatch(text, -1) {
				out.References = append(out.References, Reference{
					SourcePath: source,
					TargetName: m[1],
					Kind:       RefCall,
					Span:       graph.Span{StartLine: line},
				})
			}
			continue
		}

		for _, m := range csCallRe.FindAllStringSubmatch(text, -1) {
			if csNoiseCalls[m[1]] {
				continue
			}
			out.References = append(out.References, Reference{
				SourcePath: source,
				TargetName: m[1],
				Kind:       RefCall,
				Span:       graph.Span{StartLine: line},
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func qualify(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

func accessModifier(text string) string {
	for _, mod := range []string{"public", "protected", "internal", "private"} {
		if strings.HasPrefix(text, mod+" ") {
			return mod
		}
	}
	return ""
}

func methodAttrs(text string) map[string]string {
	attrs := make(map[string]string)
	if strings.Contains(text, "static ") {
		attrs["static"] = "true"
	}
	if strings.Contains(text, "async ") {
		attrs["async"] = "true"
	}
	if mod := accessModifier(text); mod != "" {
		attrs["access"] = mod
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func hasAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
