package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/DeusData/codegraph/internal/config"
	"github.com/DeusData/codegraph/internal/pipeline"
	"github.com/DeusData/codegraph/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleIndexRepository(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return s.indexRepository(ctx, args), nil
}

func (s *Server) indexRepository(ctx context.Context, args map[string]any) *mcp.CallToolResult {
	repoPath := getStringArg(args, "repo_path")
	if repoPath == "" {
		return errResult("repo_path is required")
	}

	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return errResult(fmt.Sprintf("invalid path: %v", err))
	}

	project := pipeline.ProjectNameFromPath(absPath)

	// One build at a time keeps SaveGraph's delete+insert runs from
	// interleaving on the same project.
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	cfg := config.Load(absPath)
	b := pipeline.New(s.registry, pipeline.OptionsFromConfig(cfg))

	g, err := b.Build(ctx, absPath)
	if err != nil {
		return errResult(fmt.Sprintf("indexing failed: %v", err))
	}

	if err := s.store.SaveGraph(project, absPath, g); err != nil {
		return errResult(fmt.Sprintf("save failed: %v", err))
	}

	nodeCount, _ := s.store.CountNodes(project)
	edgeCount, _ := s.store.CountEdges(project)

	indexedAt := store.Now()
	if proj, _ := s.store.GetProject(project); proj != nil {
		indexedAt = proj.IndexedAt
	}

	return jsonResult(map[string]any{
		"project":    project,
		"root_path":  absPath,
		"nodes":      nodeCount,
		"edges":      edgeCount,
		"indexed_at": indexedAt,
	})
}
