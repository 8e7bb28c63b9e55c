package tools

import (
	"context"
	"fmt"
	"regexp"

	"github.com/DeusData/codegraph/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// defaultTraceTypes are the edge types BFS follows when the caller does
// not narrow them. Contains is excluded; it would flood every trace with
// the directory tree.
var defaultTraceTypes = []string{"invokes", "inherits", "imports"}

func (s *Server) handleTraceEdges(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return s.traceEdges(args), nil
}

func (s *Server) traceEdges(args map[string]any) *mcp.CallToolResult {
	name := getStringArg(args, "name")
	if name == "" {
		return errResult("name is required")
	}

	depth := getIntArg(args, "depth", 3)
	if depth < 1 {
		depth = 1
	}
	if depth > 5 {
		depth = 5
	}

	direction := getStringArg(args, "direction")
	if direction == "" {
		direction = "outbound"
	}

	edgeTypes := getStringsArg(args, "edge_types")
	if len(edgeTypes) == 0 {
		edgeTypes = defaultTraceTypes
	}

	project, err := s.resolveProject(getStringArg(args, "project"))
	if err != nil {
		return errResult(err.Error())
	}

	root, err := s.findTraceRoot(project, name)
	if err != nil {
		return errResult(fmt.Sprintf("find node: %v", err))
	}
	if root == nil {
		suggestions := s.findSimilarNodes(project, name, 5)
		if len(suggestions) > 0 {
			suggList := make([]map[string]string, len(suggestions))
			for i, n := range suggestions {
				suggList[i] = map[string]string{
					"name":           n.Name,
					"qualified_name": n.QualifiedName,
					"kind":           n.Kind,
				}
			}
			return jsonResult(map[string]any{
				"error":       fmt.Sprintf("node not found: %s", name),
				"suggestions": suggList,
			})
		}
		return errResult(fmt.Sprintf("node not found: %s", name))
	}

	visited, edges, err := s.runTraceBFS(root.ID, direction, edgeTypes, depth)
	if err != nil {
		return errResult(fmt.Sprintf("bfs: %v", err))
	}

	return jsonResult(map[string]any{
		"project":       project,
		"root":          nodeInfo(root),
		"direction":     direction,
		"edge_types":    edgeTypes,
		"hops":          buildHops(visited),
		"edges":         buildEdgeList(edges),
		"total_results": len(visited),
	})
}

// findTraceRoot resolves a trace starting point: exact qualified name
// first, then simple name.
func (s *Server) findTraceRoot(project, name string) (*store.Node, error) {
	node, err := s.store.FindNodeByQN(project, name)
	if err != nil {
		return nil, err
	}
	if node != nil {
		return node, nil
	}
	nodes, err := s.store.FindNodesByName(project, name)
	if err != nil {
		return nil, err
	}
	if len(nodes) > 0 {
		return nodes[0], nil
	}
	return nil, nil
}

// findSimilarNodes searches for nodes whose name contains the input
// string, case-insensitive.
func (s *Server) findSimilarNodes(project, name string, limit int) []*store.Node {
	out, err := s.store.Search(store.SearchParams{
		Project:     project,
		NamePattern: "(?i)" + regexp.QuoteMeta(name),
		Limit:       limit,
		MinDegree:   -1,
		MaxDegree:   -1,
	})
	if err != nil {
		return nil
	}
	nodes := make([]*store.Node, len(out.Results))
	for i, r := range out.Results {
		nodes[i] = r.Node
	}
	return nodes
}

func (s *Server) runTraceBFS(rootID int64, direction string, edgeTypes []string, depth int) ([]*store.NodeHop, []store.EdgeInfo, error) {
	if direction == "both" {
		var visited []*store.NodeHop
		var edges []store.EdgeInfo
		for _, dir := range []string{"outbound", "inbound"} {
			result, err := s.store.BFS(rootID, dir, edgeTypes, depth, 200)
			if err != nil {
				return nil, nil, err
			}
			visited = append(visited, result.Visited...)
			edges = append(edges, result.Edges...)
		}
		return visited, edges, nil
	}
	result, err := s.store.BFS(rootID, direction, edgeTypes, depth, 200)
	if err != nil {
		return nil, nil, err
	}
	return result.Visited, result.Edges, nil
}

func nodeInfo(n *store.Node) map[string]any {
	info := map[string]any{
		"name":           n.Name,
		"qualified_name": n.QualifiedName,
		"kind":           n.Kind,
	}
	if n.FilePath != "" {
		info["file_path"] = n.FilePath
	}
	if n.StartLine > 0 {
		info["start_line"] = n.StartLine
		info["end_line"] = n.EndLine
	}
	if lang, ok := n.Properties["language"].(string); ok && lang != "" {
		info["language"] = lang
	}
	return info
}

type hopEntry struct {
	Hop   int              `json:"hop"`
	Nodes []map[string]any `json:"nodes"`
}

// buildHops groups visited nodes by hop distance, hop 1 outward.
func buildHops(visited []*store.NodeHop) []hopEntry {
	hopMap := map[int][]map[string]any{}
	maxHop := 0
	for _, nh := range visited {
		hopMap[nh.Hop] = append(hopMap[nh.Hop], nodeInfo(nh.Node))
		if nh.Hop > maxHop {
			maxHop = nh.Hop
		}
	}

	var hops []hopEntry
	for h := 1; h <= maxHop; h++ {
		if nodes, ok := hopMap[h]; ok {
			hops = append(hops, hopEntry{Hop: h, Nodes: nodes})
		}
	}
	return hops
}

func buildEdgeList(edges []store.EdgeInfo) []map[string]any {
	result := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		result = append(result, map[string]any{
			"from": e.FromName,
			"to":   e.ToName,
			"type": e.Type,
		})
	}
	return result
}
