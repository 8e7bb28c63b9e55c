// Package pipeline builds the dependency graph of a repository in three
// phases with strict barriers:
//
//  1. structure — walk the tree, analyze source files in parallel, build
//     Directory/File/definition nodes and Contains edges;
//  2. imports — resolve import records to in-repo files/entities or
//     deduplicated external nodes, adding Imports edges;
//  3. resolution — scope-walk every definition node and link raw
//     call/inheritance names into Invokes/Inherits edges.
//
// Each phase reads a complete, frozen view of the previous one. After the
// resolution phase the graph is read-only.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/DeusData/codegraph/internal/analyzer"
	"github.com/DeusData/codegraph/internal/config"
	"github.com/DeusData/codegraph/internal/discover"
	"github.com/DeusData/codegraph/internal/graph"
)

// Resolution selects how raw names bind to candidates.
type Resolution string

const (
	// ResolutionFuzzy links every candidate sharing the name.
	ResolutionFuzzy Resolution = "fuzzy"
	// ResolutionPrecise keeps one target per name, innermost wins.
	ResolutionPrecise Resolution = "precise"
)

// Options configures a build.
type Options struct {
	Resolution     Resolution
	GlobalFallback bool     // repo-wide name index for otherwise unresolved calls
	SkipDirs       []string // extra discovery skip patterns
	Extensions     []string // source extensions; discover defaults when empty
	Workers        int      // parallel worker cap; GOMAXPROCS when 0
}

// OptionsFromConfig maps a loaded .cgrconfig onto build options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Resolution:     Resolution(cfg.EffectiveResolution()),
		GlobalFallback: cfg.EffectiveGlobalFallback(),
		SkipDirs:       cfg.Graph.SkipDirs,
		Extensions:     cfg.Graph.SourceExtensions,
		Workers:        cfg.EffectiveWorkers(),
	}
}

// Builder runs builds against one analyzer registry.
type Builder struct {
	registry *analyzer.Registry
	opts     Options
}

// New returns a builder. The registry decides which files get entities;
// files without a registered analyzer still produce text-only File nodes.
func New(registry *analyzer.Registry, opts Options) *Builder {
	if opts.Resolution == "" {
		opts.Resolution = ResolutionFuzzy
	}
	return &Builder{registry: registry, opts: opts}
}

// ProjectNameFromPath derives a project name from an absolute path by
// replacing separators with dashes.
func ProjectNameFromPath(absPath string) string {
	cleaned := filepath.ToSlash(filepath.Clean(absPath))
	name := strings.TrimLeft(strings.ReplaceAll(cleaned, "/", "-"), "-")
	if name == "" {
		return "root"
	}
	return name
}

// Build constructs the graph for the repository rooted at repoPath. A
// cancelled context aborts the build and returns ctx.Err() with no graph.
func (b *Builder) Build(ctx context.Context, repoPath string) (*graph.Graph, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	slog.Info("pipeline.start", "path", repoPath,
		"resolution", string(b.opts.Resolution), "workers", b.workers())

	files, err := discover.Discover(ctx, repoPath, &discover.Options{
		SkipDirs:   b.opts.SkipDirs,
		Extensions: b.opts.Extensions,
	})
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	slog.Info("pipeline.discovered", "files", len(files))

	st := &buildState{
		g:   graph.New(),
		raw: make(map[string]analyzer.RawNames),
	}

	t := time.Now()
	if err := b.passStructure(ctx, st, files); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	slog.Info("pass.timing", "pass", "structure", "elapsed", time.Since(t))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t = time.Now()
	if err := b.passImports(ctx, st); err != nil {
		return nil, fmt.Errorf("imports: %w", err)
	}
	slog.Info("pass.timing", "pass", "imports", "elapsed", time.Since(t))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t = time.Now()
	if err := b.passResolve(ctx, st); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	slog.Info("pass.timing", "pass", "resolve", "elapsed", time.Since(t))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Info("pipeline.done", "nodes", st.g.NodeCount(), "edges", st.g.EdgeCount())
	return st.g, nil
}

func (b *Builder) workers() int {
	if b.opts.Workers > 0 {
		return b.opts.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// buildState is the working set shared by the three phases. The graph is
// only ever mutated serially; raw holds each definition node's raw name
// sets keyed by node key, and files the per-file analysis results in
// path order.
type buildState struct {
	g     *graph.Graph
	files []fileResult
	raw   map[string]analyzer.RawNames
}
