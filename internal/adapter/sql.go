package adapter

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// SQLAdapter extracts stored procedure declarations and the tables they
// touch from T-SQL sources.
type SQLAdapter struct{}

// NewSQLAdapter returns a SQL front-end.
func NewSQLAdapter() *SQLAdapter { return &SQLAdapter{} }

// Extensions implements Adapter.
func (a *SQLAdapter) Extensions() []string { return []string{".sql"} }

var (
	sqlProcRe   = regexp.MustCompile(`(?i)CREATE\s+(?:OR\s+ALTER\s+)?PROC(?:EDURE)?\s+(?:\[?dbo\]?\.)?\[?([A-Za-z0-9_]+)\]?`)
	sqlTableRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bFROM\s+\[?([A-Za-z0-9_]+)\]?`),
		regexp.MustCompile(`(?i)\bJOIN\s+\[?([A-Za-z0-9_]+)\]?`),
		regexp.MustCompile(`(?i)\bUPDATE\s+\[?([A-Za-z0-9_]+)\]?`),
		regexp.MustCompile(`(?i)\bINSERT\s+INTO\s+\[?([A-Za-z0-9_]+)\]?`),
		regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+\[?([A-Za-z0-9_]+)\]?`),
	}
)

// Extract implements Adapter. Table references are attributed to the most
// recently declared procedure; statements before any CREATE PROCEDURE are
// ignored.
func (a *SQLAdapter) Extract(path string, source []byte) (*FileSymbols, error) {
	out := &FileSymbols{}

	var proc string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(text), "--") {
			continue
		}

		if m := sqlProcRe.FindStringSubmatch(text); m != nil {
			proc = m[1]
			out.Declarations = append(out.Declarations, Declaration{
				Kind:          graph.NodeKindStoredProcedure,
				Name:          proc,
				QualifiedPath: proc,
				Span:          graph.Span{StartLine: line},
			})
			seen = make(map[string]bool)
			continue
		}
		if proc == "" {
			continue
		}

		for _, re := range sqlTableRes {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				table := m[1]
				key := proc + "\x00" + table
				if seen[key] {
					continue
				}
				seen[key] = true
				out.References = append(out.References, Reference{
					SourcePath: proc,
					TargetName: table,
					Kind:       RefTable,
					Span:       graph.Span{StartLine: line},
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
