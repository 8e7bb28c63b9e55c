package tools

import (
	"context"
	"fmt"

	"github.com/DeusData/codegraph/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleGetGraphSchema(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return s.getGraphSchema(args), nil
}

func (s *Server) getGraphSchema(args map[string]any) *mcp.CallToolResult {
	var names []string
	if project := getStringArg(args, "project"); project != "" {
		resolved, err := s.resolveProject(project)
		if err != nil {
			return errResult(err.Error())
		}
		names = []string{resolved}
	} else {
		projects, err := s.store.ListProjects()
		if err != nil {
			return errResult(fmt.Sprintf("list projects: %v", err))
		}
		for _, p := range projects {
			names = append(names, p.Name)
		}
	}

	type projectSchema struct {
		Project string            `json:"project"`
		Schema  *store.SchemaInfo `json:"schema"`
	}

	schemas := make([]projectSchema, 0, len(names))
	for _, name := range names {
		schema, err := s.store.GetSchema(name)
		if err != nil {
			return errResult(fmt.Sprintf("schema for %s: %v", name, err))
		}
		schemas = append(schemas, projectSchema{Project: name, Schema: schema})
	}

	return jsonResult(map[string]any{"projects": schemas})
}
