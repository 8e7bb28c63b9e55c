package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DeusData/codegraph/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleGetCodeSnippet(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return s.getCodeSnippet(args), nil
}

func (s *Server) getCodeSnippet(args map[string]any) *mcp.CallToolResult {
	qn := getStringArg(args, "qualified_name")
	if qn == "" {
		return errResult("qualified_name is required")
	}

	project, err := s.resolveProject(getStringArg(args, "project"))
	if err != nil {
		return errResult(err.Error())
	}

	node, err := s.store.FindNodeByQN(project, qn)
	if err != nil {
		return errResult(fmt.Sprintf("find node: %v", err))
	}
	if node == nil {
		return errResult(fmt.Sprintf("node not found: %s", qn))
	}

	source, from := s.nodeSource(project, node)
	if source == "" {
		return errResult(fmt.Sprintf("no source available for %s", qn))
	}

	return jsonResult(map[string]any{
		"qualified_name": node.QualifiedName,
		"name":           node.Name,
		"kind":           node.Kind,
		"file_path":      node.FilePath,
		"start_line":     node.StartLine,
		"end_line":       node.EndLine,
		"from":           from,
		"source":         source,
	})
}

// nodeSource prefers the file on disk and falls back to the source
// captured at index time when the file is gone or the range is stale.
func (s *Server) nodeSource(project string, node *store.Node) (source, from string) {
	if node.FilePath != "" && node.StartLine > 0 && node.EndLine >= node.StartLine {
		if proj, _ := s.store.GetProject(project); proj != nil {
			abs := filepath.Join(proj.RootPath, node.FilePath)
			if text, err := readLines(abs, node.StartLine, node.EndLine); err == nil {
				return text, "disk"
			}
		}
	}
	if stored, _ := node.Properties["source"].(string); stored != "" {
		start := node.StartLine
		if start < 1 {
			start = 1
		}
		return numberLines(stored, start), "index"
	}
	return "", ""
}

// readLines reads a line range from a file, returning it with line numbers.
func readLines(path string, startLine, endLine int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum > endLine {
			break
		}
		if lineNum >= startLine {
			fmt.Fprintf(&sb, "%4d | %s\n", lineNum, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan: %w", err)
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no lines in range %d-%d (file has %d lines)", startLine, endLine, lineNum)
	}
	return sb.String(), nil
}

// numberLines prefixes each line of text with its line number, counting
// from startLine.
func numberLines(text string, startLine int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%4d | %s\n", startLine+i, line)
	}
	return sb.String()
}
