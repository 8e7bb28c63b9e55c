package store

import (
	"fmt"
	"regexp"
	"strings"
)

// SearchParams are the structured node search filters. MinDegree and
// MaxDegree use -1 for "not set"; zero is a real bound.
type SearchParams struct {
	Project      string
	Kind         string
	NamePattern  string // Go regex, matched against name and qualified name
	FilePattern  string // glob, matched against file_path
	Relationship string // count degrees for this edge type only
	Direction    string // "inbound" (default) or "outbound" for degree filters
	MinDegree    int
	MaxDegree    int
	Limit        int
	Offset       int
}

// SearchResult is a node with its edge degrees.
type SearchResult struct {
	Node           *Node
	InDegree       int
	OutDegree      int
	ConnectedNames []string
}

// SearchOutput wraps results with the pre-pagination total.
type SearchOutput struct {
	Results []*SearchResult
	Total   int
}

// Search runs a parameterized node search. Kind and file filters run in
// SQL; the name regex and degree filters run in Go over a capped fetch.
func (s *Store) Search(params SearchParams) (*SearchOutput, error) {
	if params.Limit <= 0 {
		params.Limit = 100000
	}

	var conditions []string
	var args []any

	conditions = append(conditions, "n.project = ?")
	args = append(args, params.Project)

	if params.Kind != "" {
		conditions = append(conditions, "n.kind = ?")
		args = append(args, params.Kind)
	}
	if params.FilePattern != "" {
		conditions = append(conditions, "n.file_path LIKE ?")
		args = append(args, globToLike(params.FilePattern))
	}

	where := strings.Join(conditions, " AND ")

	// Go-side filters need headroom beyond the user limit.
	hasDegreeFilter := params.MinDegree >= 0 || params.MaxDegree >= 0
	var sqlLimit int
	if params.NamePattern != "" || hasDegreeFilter {
		sqlLimit = 10000
	} else {
		sqlLimit = params.Offset + params.Limit
		if sqlLimit > 100000 {
			sqlLimit = 100000
		}
	}

	query := fmt.Sprintf("SELECT %s FROM nodes n WHERE %s ORDER BY qualified_name LIMIT ?",
		nodeCols, where)
	args = append(args, sqlLimit)

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}

	if params.NamePattern != "" {
		nodes, err = filterByNamePattern(nodes, params.NamePattern)
		if err != nil {
			return nil, err
		}
	}

	// Build the full qualifying set first so Total is accurate.
	var allResults []*SearchResult
	for _, n := range nodes {
		sr := &SearchResult{Node: n}

		if params.Relationship != "" {
			s.q.QueryRow("SELECT COUNT(*) FROM edges WHERE target_id=? AND type=?", n.ID, params.Relationship).Scan(&sr.InDegree)
			s.q.QueryRow("SELECT COUNT(*) FROM edges WHERE source_id=? AND type=?", n.ID, params.Relationship).Scan(&sr.OutDegree)
		} else {
			s.q.QueryRow("SELECT COUNT(*) FROM edges WHERE target_id=?", n.ID).Scan(&sr.InDegree)
			s.q.QueryRow("SELECT COUNT(*) FROM edges WHERE source_id=?", n.ID).Scan(&sr.OutDegree)
		}

		degree := sr.InDegree
		if params.Direction == "outbound" {
			degree = sr.OutDegree
		}
		if params.MinDegree >= 0 && degree < params.MinDegree {
			continue
		}
		if params.MaxDegree >= 0 && degree > params.MaxDegree {
			continue
		}

		connRows, connErr := s.q.Query(`
			SELECT DISTINCT n2.name FROM edges e
			JOIN nodes n2 ON (e.target_id = n2.id OR e.source_id = n2.id)
			WHERE (e.source_id = ? OR e.target_id = ?) AND n2.id != ?
			LIMIT 10`, n.ID, n.ID, n.ID)
		if connErr == nil {
			for connRows.Next() {
				var name string
				connRows.Scan(&name)
				sr.ConnectedNames = append(sr.ConnectedNames, name)
			}
			connRows.Close()
		}

		allResults = append(allResults, sr)
	}

	total := len(allResults)
	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	return &SearchOutput{Results: allResults[start:end], Total: total}, nil
}

// globToLike converts a glob pattern to a SQL LIKE pattern.
func globToLike(pattern string) string {
	result := strings.ReplaceAll(pattern, "**", "%")
	result = strings.ReplaceAll(result, "*", "%")
	result = strings.ReplaceAll(result, "?", "_")
	return result
}

func filterByNamePattern(nodes []*Node, pattern string) ([]*Node, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid name pattern: %w", err)
	}
	var filtered []*Node
	for _, n := range nodes {
		if re.MatchString(n.Name) || re.MatchString(n.QualifiedName) {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}
