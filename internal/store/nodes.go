package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const nodeCols = "id, project, kind, name, qualified_name, file_path, start_line, end_line, properties"

// FindNodeByID finds a node by its primary key. Returns nil when absent.
func (s *Store) FindNodeByID(id int64) (*Node, error) {
	row := s.q.QueryRow("SELECT "+nodeCols+" FROM nodes WHERE id=?", id)
	return scanNode(row)
}

// FindNodeByQN finds a node by project and qualified name.
func (s *Store) FindNodeByQN(project, qualifiedName string) (*Node, error) {
	row := s.q.QueryRow("SELECT "+nodeCols+" FROM nodes WHERE project=? AND qualified_name=?",
		project, qualifiedName)
	return scanNode(row)
}

// FindNodesByName finds nodes by project and short name.
func (s *Store) FindNodesByName(project, name string) ([]*Node, error) {
	rows, err := s.q.Query("SELECT "+nodeCols+" FROM nodes WHERE project=? AND name=?", project, name)
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// FindNodesByKind finds all nodes of a given kind in a project.
func (s *Store) FindNodesByKind(project, kind string) ([]*Node, error) {
	rows, err := s.q.Query("SELECT "+nodeCols+" FROM nodes WHERE project=? AND kind=?", project, kind)
	if err != nil {
		return nil, fmt.Errorf("find by kind: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// FindNodesByFile finds all nodes belonging to a file path.
func (s *Store) FindNodesByFile(project, filePath string) ([]*Node, error) {
	rows, err := s.q.Query("SELECT "+nodeCols+" FROM nodes WHERE project=? AND file_path=?", project, filePath)
	if err != nil {
		return nil, fmt.Errorf("find by file: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// CountNodes returns the number of nodes in a project.
func (s *Store) CountNodes(project string) (int, error) {
	var count int
	err := s.q.QueryRow("SELECT COUNT(*) FROM nodes WHERE project=?", project).Scan(&count)
	return count, err
}

// DeleteNodesByProject deletes all nodes for a project. Edges cascade.
func (s *Store) DeleteNodesByProject(project string) error {
	_, err := s.q.Exec("DELETE FROM nodes WHERE project=?", project)
	return err
}

// FindNodesByIDs returns a map of node ID to node for the given IDs.
func (s *Store) FindNodesByIDs(ids []int64) (map[int64]*Node, error) {
	if len(ids) == 0 {
		return map[int64]*Node{}, nil
	}
	result := make(map[int64]*Node, len(ids))
	const batchSize = 998 // leave room under SQLite's 999 bind limit

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for j, id := range chunk {
			placeholders[j] = "?"
			args[j] = id
		}

		query := fmt.Sprintf("SELECT %s FROM nodes WHERE id IN (%s)",
			nodeCols, strings.Join(placeholders, ","))

		if err := func() error {
			rows, err := s.q.Query(query, args...)
			if err != nil {
				return fmt.Errorf("find nodes by ids: %w", err)
			}
			defer rows.Close()
			nodes, err := scanNodes(rows)
			if err != nil {
				return err
			}
			for _, n := range nodes {
				result[n.ID] = n
			}
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// AllNodes returns all nodes for a project.
func (s *Store) AllNodes(project string) ([]*Node, error) {
	rows, err := s.q.Query("SELECT "+nodeCols+" FROM nodes WHERE project=?", project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var n Node
	var props string
	err := row.Scan(&n.ID, &n.Project, &n.Kind, &n.Name, &n.QualifiedName, &n.FilePath, &n.StartLine, &n.EndLine, &props)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	n.Properties = unmarshalProps(props)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var result []*Node
	for rows.Next() {
		var n Node
		var props string
		if err := rows.Scan(&n.ID, &n.Project, &n.Kind, &n.Name, &n.QualifiedName, &n.FilePath, &n.StartLine, &n.EndLine, &props); err != nil {
			return nil, err
		}
		n.Properties = unmarshalProps(props)
		result = append(result, &n)
	}
	return result, rows.Err()
}

// SQLite caps bind variables at 999; 8 insert columns per node row.
const numNodeCols = 8
const nodesBatchSize = 999 / numNodeCols

// UpsertNodeBatch inserts or updates nodes in batched multi-row INSERTs
// and returns qualified name to row ID for everything written. IDs are
// recovered with follow-up SELECTs because LastInsertId is unreliable
// under ON CONFLICT DO UPDATE.
func (s *Store) UpsertNodeBatch(nodes []*Node) (map[string]int64, error) {
	if len(nodes) == 0 {
		return map[string]int64{}, nil
	}

	result := make(map[string]int64, len(nodes))
	for i := 0; i < len(nodes); i += nodesBatchSize {
		end := i + nodesBatchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		if err := s.upsertNodeChunk(nodes[i:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) upsertNodeChunk(batch []*Node, idMap map[string]int64) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO nodes (project, kind, name, qualified_name, file_path, start_line, end_line, properties) VALUES ")

	args := make([]any, 0, len(batch)*numNodeCols)
	for i, n := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?,?,?,?)")
		args = append(args, n.Project, n.Kind, n.Name, n.QualifiedName, n.FilePath, n.StartLine, n.EndLine, marshalProps(n.Properties))
	}
	sb.WriteString(` ON CONFLICT(project, qualified_name) DO UPDATE SET
		kind=excluded.kind, name=excluded.name, file_path=excluded.file_path,
		start_line=excluded.start_line, end_line=excluded.end_line, properties=excluded.properties`)

	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("upsert node batch: %w", err)
	}

	// The UNIQUE constraint is per project, so recover IDs per project.
	byProject := make(map[string][]string)
	for _, n := range batch {
		byProject[n.Project] = append(byProject[n.Project], n.QualifiedName)
	}
	for project, qns := range byProject {
		if err := s.resolveNodeIDs(project, qns, idMap); err != nil {
			return err
		}
	}
	return nil
}

// resolveNodeIDs fetches IDs for qualified names within one project,
// batching the IN clause under the bind limit.
func (s *Store) resolveNodeIDs(project string, qns []string, idMap map[string]int64) error {
	const maxQNsPerQuery = 998 // 1 var for project + N for names

	for i := 0; i < len(qns); i += maxQNsPerQuery {
		end := i + maxQNsPerQuery
		if end > len(qns) {
			end = len(qns)
		}
		chunk := qns[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)+1)
		args = append(args, project)
		for j, qn := range chunk {
			placeholders[j] = "?"
			args = append(args, qn)
		}

		query := fmt.Sprintf("SELECT id, qualified_name FROM nodes WHERE project = ? AND qualified_name IN (%s)",
			strings.Join(placeholders, ","))

		if err := func() error {
			rows, err := s.q.Query(query, args...)
			if err != nil {
				return fmt.Errorf("resolve node IDs: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				var id int64
				var qn string
				if err := rows.Scan(&id, &qn); err != nil {
					return err
				}
				idMap[qn] = id
			}
			return rows.Err()
		}(); err != nil {
			return err
		}
	}
	return nil
}

// FindNodeIDsByQNs returns qualified name to ID for the given names.
func (s *Store) FindNodeIDsByQNs(project string, qns []string) (map[string]int64, error) {
	if len(qns) == 0 {
		return map[string]int64{}, nil
	}
	idMap := make(map[string]int64, len(qns))
	if err := s.resolveNodeIDs(project, qns, idMap); err != nil {
		return nil, err
	}
	return idMap, nil
}
