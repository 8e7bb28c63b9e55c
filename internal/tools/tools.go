// Package tools exposes the code graph over MCP. The server wraps a
// single store; every indexed project lives in the same database and
// handlers take an optional project argument, defaulting to the sole
// indexed project.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/DeusData/codegraph/internal/analyzer"
	"github.com/DeusData/codegraph/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp      *mcp.Server
	store    *store.Store
	registry *analyzer.Registry

	indexMu sync.Mutex // one indexing run at a time
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(s *store.Store, reg *analyzer.Registry) *Server {
	srv := &Server{
		store:    s,
		registry: reg,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "codegraph",
				Version: "0.1.0",
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	// 1. index_repository
	s.mcp.AddTool(&mcp.Tool{
		Name:        "index_repository",
		Description: "Index a repository into the code graph. Analyzes Python and Java sources, builds directory/file/definition nodes with contains, imports, inherits, and invokes edges, and stores the graph for querying. Re-indexing replaces the project's previous graph.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_path": {
					"type": "string",
					"description": "Absolute path to the repository to index"
				}
			},
			"required": ["repo_path"]
		}`),
	}, s.handleIndexRepository)

	// 2. search_graph
	s.mcp.AddTool(&mcp.Tool{
		Name:        "search_graph",
		Description: "Search the code graph with structured filters. Supports filtering by node kind, name pattern (regex), file pattern (glob), relationship type, direction, and degree (fan-in/fan-out). Returns matching nodes with edge counts.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project": {
					"type": "string",
					"description": "Project to search. Optional when exactly one project is indexed."
				},
				"kind": {
					"type": "string",
					"description": "Node kind filter: directory, file, class, function, method, interface, enum, package, external"
				},
				"name_pattern": {
					"type": "string",
					"description": "Regex pattern for node name or qualified name (e.g. '.*Handler', 'send_.*')"
				},
				"file_pattern": {
					"type": "string",
					"description": "Glob pattern for file path (e.g. 'services/**/*.py')"
				},
				"relationship": {
					"type": "string",
					"description": "Count only this edge type for degree filters: contains, imports, inherits, invokes"
				},
				"direction": {
					"type": "string",
					"description": "Edge direction for degree filters (default 'inbound')",
					"enum": ["inbound", "outbound"]
				},
				"min_degree": {
					"type": "integer",
					"description": "Minimum edge count (e.g. 10 for high fan-in functions)"
				},
				"max_degree": {
					"type": "integer",
					"description": "Maximum edge count (e.g. 0 for unreferenced definitions)"
				},
				"limit": {
					"type": "integer",
					"description": "Max results per page (default 50, max 200)"
				},
				"offset": {
					"type": "integer",
					"description": "Pagination offset"
				}
			}
		}`),
	}, s.handleSearchGraph)

	// 3. get_code_snippet
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_code_snippet",
		Description: "Retrieve source code for a definition by qualified name (e.g. 'pkg/service.py:Worker.run'). Reads from disk using the stored file path and line range, falling back to the source captured at index time. Returns the code with line numbers.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"qualified_name": {
					"type": "string",
					"description": "Qualified name of the node: '<file path>:<dotted name>'"
				},
				"project": {
					"type": "string",
					"description": "Project to look in. Optional when exactly one project is indexed."
				}
			},
			"required": ["qualified_name"]
		}`),
	}, s.handleGetCodeSnippet)

	// 4. trace_edges
	s.mcp.AddTool(&mcp.Tool{
		Name:        "trace_edges",
		Description: "Trace edges from/to a definition using BFS. Follows invokes, inherits, and imports edges (configurable) and returns hop-by-hop neighbors plus the traversed edges. Use for understanding call chains and dependency flow.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {
					"type": "string",
					"description": "Name or qualified name of the node to trace from"
				},
				"project": {
					"type": "string",
					"description": "Project to look in. Optional when exactly one project is indexed."
				},
				"depth": {
					"type": "integer",
					"description": "Maximum BFS depth (1-5, default 3)"
				},
				"direction": {
					"type": "string",
					"description": "Traversal direction (default 'outbound')",
					"enum": ["outbound", "inbound", "both"]
				},
				"edge_types": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Edge types to follow (default ['invokes', 'inherits', 'imports'])"
				}
			},
			"required": ["name"]
		}`),
	}, s.handleTraceEdges)

	// 5. get_graph_schema
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_graph_schema",
		Description: "Return the schema of the indexed code graph: node kind counts, edge type counts, relationship patterns (e.g. (function)-[invokes]->(function)), and sample names. Use to understand what's in the graph before querying.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project": {
					"type": "string",
					"description": "Project to describe. Omit for all projects."
				}
			}
		}`),
	}, s.handleGetGraphSchema)

	// 6. list_projects
	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_projects",
		Description: "List all indexed projects with their indexed_at timestamp, root path, and node/edge counts.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleListProjects)

	// 7. delete_project
	s.mcp.AddTool(&mcp.Tool{
		Name:        "delete_project",
		Description: "Delete an indexed project and all its graph data (nodes and edges). This action is irreversible.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_name": {
					"type": "string",
					"description": "Name of the project to delete"
				}
			},
			"required": ["project_name"]
		}`),
	}, s.handleDeleteProject)
}

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// getIntArg extracts an integer argument with a default value.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	f, ok := v.(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

// getStringsArg extracts a string array argument from parsed args.
func getStringsArg(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// resolveProject picks the project to query: the explicit argument when
// given, otherwise the sole indexed project.
func (s *Server) resolveProject(name string) (string, error) {
	if name != "" {
		p, err := s.store.GetProject(name)
		if err != nil {
			return "", fmt.Errorf("get project: %w", err)
		}
		if p == nil {
			return "", fmt.Errorf("project not indexed: %s", name)
		}
		return name, nil
	}
	projects, err := s.store.ListProjects()
	if err != nil {
		return "", fmt.Errorf("list projects: %w", err)
	}
	switch len(projects) {
	case 0:
		return "", fmt.Errorf("no projects indexed, run index_repository first")
	case 1:
		return projects[0].Name, nil
	default:
		names := make([]string, len(projects))
		for i, p := range projects {
			names[i] = p.Name
		}
		return "", fmt.Errorf("multiple projects indexed (%s), pass the project argument", strings.Join(names, ", "))
	}
}
