package builder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// FileError is one file's failure within a batch.
type FileError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// BatchResult aggregates a whole batch. Per-file failures land in Errors;
// the batch itself never aborts on them.
type BatchResult struct {
	NodesAdded int          `json:"nodesAdded"`
	EdgesAdded int          `json:"edgesAdded"`
	Files      []FileResult `json:"files"`
	Errors     []FileError  `json:"errors,omitempty"`
}

// AnalyzeFiles analyzes the given paths on a bounded worker pool. Each
// worker owns its file's delta exclusively until commit; a timeout or parse
// failure transitions that file to Error and leaves every other file's state
// untouched. Only store-invariant violations abort the batch.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths []string) (*BatchResult, error) {
	results := make([]*FileResult, len(paths))
	fileErrs := make([]*FileError, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, path := range paths {
		g.Go(func() error {
			source, err := os.ReadFile(path)
			if err != nil {
				fileErrs[i] = &FileError{File: path, Message: err.Error()}
				return nil
			}

			fctx, cancel := context.WithTimeout(gctx, a.timeout)
			defer cancel()

			res, err := a.Analyze(fctx, path, source)
			if err != nil {
				if errors.Is(err, graph.ErrDanglingReference) {
					return err // invariant violation: fatal to the batch
				}
				fileErrs[i] = &FileError{File: path, Message: err.Error()}
				return nil
			}
			results[i] = res
			for _, d := range res.Diagnostics {
				if d.Severity == "error" {
					fileErrs[i] = &FileError{File: path, Message: d.Message}
				} else {
					log.Printf("analyze %s: %s", path, d.Message)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch analysis: %w", err)
	}

	out := &BatchResult{}
	for i := range paths {
		if res := results[i]; res != nil {
			out.Files = append(out.Files, *res)
			out.NodesAdded += res.NodesAdded
			out.EdgesAdded += res.EdgesAdded
		}
		if fe := fileErrs[i]; fe != nil {
			out.Errors = append(out.Errors, *fe)
		}
	}
	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].File < out.Errors[j].File })
	return out, nil
}
