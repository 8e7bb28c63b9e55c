package store

import (
	"fmt"
	"log/slog"

	"github.com/DeusData/codegraph/internal/graph"
)

// SaveGraph replaces a project's stored graph with g in one transaction.
// Node rows carry the graph node key as qualified_name. Parallel edges of
// one type between the same pair collapse into a single row; the
// in-memory graph keeps them distinct.
func (s *Store) SaveGraph(project, rootPath string, g *graph.Graph) error {
	return s.WithTransaction(func(tx *Store) error {
		if err := tx.UpsertProject(project, rootPath); err != nil {
			return fmt.Errorf("upsert project: %w", err)
		}
		if err := tx.DeleteNodesByProject(project); err != nil {
			return fmt.Errorf("clear nodes: %w", err)
		}

		keys := g.Keys()
		rows := make([]*Node, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, storeNode(project, g.Node(key)))
		}
		ids, err := tx.UpsertNodeBatch(rows)
		if err != nil {
			return err
		}

		var edges []*Edge
		for _, e := range g.Edges() {
			src, okSrc := ids[e.From]
			tgt, okTgt := ids[e.To]
			if !okSrc || !okTgt {
				continue
			}
			edges = append(edges, storeEdge(project, src, tgt, e))
		}
		if err := tx.InsertEdgeBatch(edges); err != nil {
			return err
		}

		slog.Info("store.saved", "project", project, "nodes", len(rows), "edges", len(edges))
		return nil
	})
}

func storeNode(project string, n *graph.Node) *Node {
	props := map[string]any{}
	if n.Source != "" {
		props["source"] = n.Source
	}
	if n.Language != "" {
		props["language"] = n.Language
	}
	if n.Digest != "" {
		props["digest"] = n.Digest
	}
	if len(n.Modifiers) > 0 {
		props["modifiers"] = n.Modifiers
	}
	if len(n.Extends) > 0 {
		props["extends"] = n.Extends
	}
	if len(n.Implements) > 0 {
		props["implements"] = n.Implements
	}
	if n.ReturnType != "" {
		props["return_type"] = n.ReturnType
	}
	if len(n.Parameters) > 0 {
		props["parameters"] = n.Parameters
	}
	if n.Constructor {
		props["constructor"] = true
	}
	if n.Origin != "" {
		props["origin"] = string(n.Origin)
	}
	return &Node{
		Project:       project,
		Kind:          string(n.Kind),
		Name:          n.Name,
		QualifiedName: n.Key,
		FilePath:      n.Path,
		StartLine:     n.StartLine,
		EndLine:       n.EndLine,
		Properties:    props,
	}
}

func storeEdge(project string, src, tgt int64, e graph.Edge) *Edge {
	props := map[string]any{}
	if e.Alias != "" {
		props["alias"] = e.Alias
	}
	return &Edge{
		Project:    project,
		SourceID:   src,
		TargetID:   tgt,
		Type:       string(e.Kind),
		Properties: props,
	}
}
