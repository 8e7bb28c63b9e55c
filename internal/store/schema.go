package store

import (
	"fmt"
	"sort"
)

// SchemaInfo summarizes what a project's graph contains.
type SchemaInfo struct {
	NodeKinds            []KindCount `json:"node_kinds"`
	EdgeTypes            []TypeCount `json:"edge_types"`
	EdgePatterns         []string    `json:"edge_patterns"`
	SampleFunctionNames  []string    `json:"sample_function_names"`
	SampleClassNames     []string    `json:"sample_class_names"`
	SampleQualifiedNames []string    `json:"sample_qualified_names"`
}

// KindCount is a node kind with its count.
type KindCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// TypeCount is an edge type with its count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// GetSchema returns graph schema statistics for a project.
func (s *Store) GetSchema(project string) (*SchemaInfo, error) {
	info := &SchemaInfo{}

	var err error
	if info.NodeKinds, err = s.schemaNodeKinds(project); err != nil {
		return nil, err
	}
	if info.EdgeTypes, err = s.schemaEdgeTypes(project); err != nil {
		return nil, err
	}
	if info.EdgePatterns, err = s.schemaEdgePatterns(project); err != nil {
		return nil, err
	}
	if info.SampleFunctionNames, err = s.schemaSampleNames(project, "function", 30); err != nil {
		return nil, err
	}
	if info.SampleClassNames, err = s.schemaSampleNames(project, "class", 20); err != nil {
		return nil, err
	}
	if info.SampleQualifiedNames, err = s.schemaSampleQNs(project); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Store) schemaNodeKinds(project string) ([]KindCount, error) {
	rows, err := s.q.Query("SELECT kind, COUNT(*) as cnt FROM nodes WHERE project=? GROUP BY kind ORDER BY cnt DESC", project)
	if err != nil {
		return nil, fmt.Errorf("schema kinds: %w", err)
	}
	defer rows.Close()
	var kinds []KindCount
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return nil, err
		}
		kinds = append(kinds, kc)
	}
	return kinds, rows.Err()
}

func (s *Store) schemaEdgeTypes(project string) ([]TypeCount, error) {
	rows, err := s.q.Query("SELECT type, COUNT(*) as cnt FROM edges WHERE project=? GROUP BY type ORDER BY cnt DESC", project)
	if err != nil {
		return nil, fmt.Errorf("schema edge types: %w", err)
	}
	defer rows.Close()
	var types []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, err
		}
		types = append(types, tc)
	}
	return types, rows.Err()
}

// schemaEdgePatterns counts (source kind)-[type]->(target kind) shapes
// with an id-to-kind map and one edge scan instead of a 3-way JOIN.
func (s *Store) schemaEdgePatterns(project string) ([]string, error) {
	idKind := make(map[int64]string, 4096)
	rows, err := s.q.Query("SELECT id, kind FROM nodes WHERE project=?", project)
	if err != nil {
		return nil, fmt.Errorf("schema id-kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var kind string
		if err := rows.Scan(&id, &kind); err != nil {
			return nil, err
		}
		idKind[id] = kind
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	type patternKey struct{ src, rel, tgt string }
	patternCounts := make(map[patternKey]int)
	rows2, err := s.q.Query("SELECT source_id, target_id, type FROM edges WHERE project=?", project)
	if err != nil {
		return nil, fmt.Errorf("schema edge scan: %w", err)
	}
	defer rows2.Close()
	for rows2.Next() {
		var srcID, tgtID int64
		var edgeType string
		if err := rows2.Scan(&srcID, &tgtID, &edgeType); err != nil {
			return nil, err
		}
		pk := patternKey{src: idKind[srcID], rel: edgeType, tgt: idKind[tgtID]}
		patternCounts[pk]++
	}
	if err := rows2.Err(); err != nil {
		return nil, err
	}

	type patternEntry struct {
		key patternKey
		cnt int
	}
	entries := make([]patternEntry, 0, len(patternCounts))
	for k, v := range patternCounts {
		entries = append(entries, patternEntry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].cnt != entries[j].cnt {
			return entries[i].cnt > entries[j].cnt
		}
		a, b := entries[i].key, entries[j].key
		if a.src != b.src {
			return a.src < b.src
		}
		if a.rel != b.rel {
			return a.rel < b.rel
		}
		return a.tgt < b.tgt
	})
	if len(entries) > 25 {
		entries = entries[:25]
	}
	patterns := make([]string, 0, len(entries))
	for _, e := range entries {
		patterns = append(patterns, fmt.Sprintf("(%s)-[%s]->(%s)  [%dx]", e.key.src, e.key.rel, e.key.tgt, e.cnt))
	}
	return patterns, nil
}

func (s *Store) schemaSampleNames(project, kind string, limit int) ([]string, error) {
	rows, err := s.q.Query("SELECT name FROM nodes WHERE project=? AND kind=? ORDER BY name LIMIT ?", project, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("schema sample %s: %w", kind, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) schemaSampleQNs(project string) ([]string, error) {
	rows, err := s.q.Query("SELECT qualified_name FROM nodes WHERE project=? ORDER BY qualified_name LIMIT 5", project)
	if err != nil {
		return nil, fmt.Errorf("schema sample qns: %w", err)
	}
	defer rows.Close()
	var qns []string
	for rows.Next() {
		var qn string
		if err := rows.Scan(&qn); err != nil {
			return nil, err
		}
		qns = append(qns, qn)
	}
	return qns, rows.Err()
}
