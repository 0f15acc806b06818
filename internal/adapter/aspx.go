package adapter

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// ASPXAdapter extracts page declarations, server controls and binding
// references from ASP.NET markup.
type ASPXAdapter struct{}

// NewASPXAdapter returns an ASPX front-end.
func NewASPXAdapter() *ASPXAdapter { return &ASPXAdapter{} }

// Extensions implements Adapter.
func (a *ASPXAdapter) Extensions() []string { return []string{".aspx", ".ascx"} }

var (
	aspxInheritsRe = regexp.MustCompile(`Inherits="([^"]+)"`)
	aspxControlRe  = regexp.MustCompile(`<asp:([A-Za-z]+)\s+[^>]*?(?:ID|id)="([^"]+)"`)
	aspxBindRe     = regexp.MustCompile(`(?:Eval|Bind)\("([^"]+)"\)`)
)

// Extract implements Adapter. The page's qualified path is its file stem;
// the markup declares no namespace of its own.
func (a *ASPXAdapter) Extract(path string, source []byte) (*FileSymbols, error) {
	out := &FileSymbols{}

	pageName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pagePath := pageName
	out.Declarations = append(out.Declarations, Declaration{
		Kind:          graph.NodeKindPage,
		Name:          pageName,
		QualifiedPath: pagePath,
		Span:          graph.Span{StartLine: 1},
	})

	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()

		// The page directive names its code-behind class. Inherits carries
		// the fully qualified class name; CodeBehind only the file.
		if strings.Contains(text, "<%@") && strings.Contains(text, "Page") {
			if m := aspxInheritsRe.FindStringSubmatch(text); m != nil {
				out.References = append(out.References, Reference{
					SourcePath: pagePath,
					TargetName: m[1],
					Kind:       RefCodeBehind,
					Span:       graph.Span{StartLine: line},
				})
			}
			continue
		}

		for _, m := range aspxControlRe.FindAllStringSubmatch(text, -1) {
			controlType, controlID := m[1], m[2]
			out.Declarations = append(out.Declarations, Declaration{
				Kind:          graph.NodeKindPageControl,
				Name:          controlID,
				QualifiedPath: pagePath + "." + controlID,
				Parent:        pagePath,
				Span:          graph.Span{StartLine: line},
				Attributes:    map[string]string{"controlType": controlType},
			})
		}

		for _, m := range aspxBindRe.FindAllStringSubmatch(text, -1) {
			out.References = append(out.References, Reference{
				SourcePath: pagePath,
				TargetName: m[1],
				Kind:       RefBind,
				Span:       graph.Span{StartLine: line},
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
