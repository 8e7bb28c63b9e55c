package tools

import (
	"context"
	"fmt"

	"github.com/DeusData/codegraph/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleSearchGraph(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return s.searchGraph(args), nil
}

func (s *Server) searchGraph(args map[string]any) *mcp.CallToolResult {
	project, err := s.resolveProject(getStringArg(args, "project"))
	if err != nil {
		return errResult(err.Error())
	}

	limit := getIntArg(args, "limit", 50)
	if limit > 200 {
		limit = 200
	}
	if limit < 1 {
		limit = 1
	}

	params := store.SearchParams{
		Project:      project,
		Kind:         getStringArg(args, "kind"),
		NamePattern:  getStringArg(args, "name_pattern"),
		FilePattern:  getStringArg(args, "file_pattern"),
		Relationship: getStringArg(args, "relationship"),
		Direction:    getStringArg(args, "direction"),
		MinDegree:    getIntArg(args, "min_degree", -1),
		MaxDegree:    getIntArg(args, "max_degree", -1),
		Limit:        limit,
		Offset:       getIntArg(args, "offset", 0),
	}

	output, err := s.store.Search(params)
	if err != nil {
		return errResult(fmt.Sprintf("search: %v", err))
	}

	type resultEntry struct {
		Name           string   `json:"name"`
		QualifiedName  string   `json:"qualified_name"`
		Kind           string   `json:"kind"`
		FilePath       string   `json:"file_path,omitempty"`
		StartLine      int      `json:"start_line,omitempty"`
		EndLine        int      `json:"end_line,omitempty"`
		InDegree       int      `json:"in_degree"`
		OutDegree      int      `json:"out_degree"`
		ConnectedNames []string `json:"connected_names,omitempty"`
	}

	results := make([]resultEntry, 0, len(output.Results))
	for _, r := range output.Results {
		results = append(results, resultEntry{
			Name:           r.Node.Name,
			QualifiedName:  r.Node.QualifiedName,
			Kind:           r.Node.Kind,
			FilePath:       r.Node.FilePath,
			StartLine:      r.Node.StartLine,
			EndLine:        r.Node.EndLine,
			InDegree:       r.InDegree,
			OutDegree:      r.OutDegree,
			ConnectedNames: r.ConnectedNames,
		})
	}

	return jsonResult(map[string]any{
		"project":  project,
		"total":    output.Total,
		"limit":    params.Limit,
		"offset":   params.Offset,
		"has_more": params.Offset+params.Limit < output.Total,
		"results":  results,
	})
}
