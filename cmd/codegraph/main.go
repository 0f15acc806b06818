package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dusk-indust/codegraph/internal/adapter"
	"github.com/dusk-indust/codegraph/internal/builder"
	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/mcptools"
	"github.com/dusk-indust/codegraph/internal/pattern"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ProjectRoot string
	Analyze     string
	Export      string
	ServeMCP    bool
	Stdio       bool
	Addr        string
	MirrorPath  string
	Version     bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("codegraph", flag.ContinueOnError)
	fs.StringVar(&flags.ProjectRoot, "project-root", ".", "directory holding codegraph.yml")
	fs.StringVar(&flags.Analyze, "analyze", "", "comma-separated source files to analyze")
	fs.StringVar(&flags.Export, "export", "", "write the graph document to this path after analysis")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "serve the graph tools over streamable HTTP")
	fs.BoolVar(&flags.Stdio, "stdio", false, "serve the graph tools over stdin/stdout")
	fs.StringVar(&flags.Addr, "addr", "localhost:8391", "HTTP listen address for -serve-mcp")
	fs.StringVar(&flags.MirrorPath, "mirror", "", "persist analyzed graphs to a SQLite database at this path")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(flags.ProjectRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store := graph.NewStore()
	registry := adapter.DefaultRegistry()
	rules := builder.DefaultRules(cfg.ProcPrefixes)

	var opts []builder.Option
	if cfg.FileTimeout > 0 {
		opts = append(opts, builder.WithFileTimeout(cfg.FileTimeout.Std()))
	}
	if cfg.Workers > 0 {
		opts = append(opts, builder.WithWorkers(cfg.Workers))
	}
	analyzer := builder.New(store, registry, rules, opts...)
	catalog := pattern.NewCatalog(store)

	svc := mcptools.NewGraphService(store, analyzer, catalog)
	if mirror := firstNonEmpty(flags.MirrorPath, cfg.MirrorPath); mirror != "" {
		svc.SetMirrorPath(mirror)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.Analyze != "" {
		paths := strings.Split(flags.Analyze, ",")
		for i := range paths {
			paths[i] = strings.TrimSpace(paths[i])
		}
		res, err := analyzer.AnalyzeFiles(ctx, paths)
		if err != nil {
			return err
		}
		fmt.Printf("analyzed %d files: %d nodes, %d edges, %d errors\n",
			len(res.Files), res.NodesAdded, res.EdgesAdded, len(res.Errors))
		for _, fe := range res.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", fe.File, fe.Message)
		}
	}

	if flags.Export != "" {
		nodes, edges, err := graph.ExportFile(store.Snapshot(), flags.Export)
		if err != nil {
			return err
		}
		fmt.Printf("exported %d nodes and %d edges to %s\n", nodes, edges, flags.Export)
	}

	switch {
	case flags.Stdio:
		return mcptools.RunStdio(ctx, svc)
	case flags.ServeMCP:
		return mcptools.RunMCPServer(ctx, svc, flags.Addr)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
