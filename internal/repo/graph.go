package repo

import (
	"fmt"

	"github.com/JaPNaA/jbackup/pkg/toposort"
)

// ErrCycleDetected is returned by DetectCycle when the snapshot or delta
// graph built from a set of metadata records contains a cycle.
type ErrCycleDetected struct {
	Graph string // "snapshot" or "diff"
	Path  []string
}

func (e *ErrCycleDetected) Error() string {
	return fmt.Sprintf("repo: %s graph contains a cycle: %v", e.Graph, e.Path)
}

// BuildSnapshotGraph builds the parent/child commit graph from a set of
// metadata records, edges running from parent to child.
func BuildSnapshotGraph(metas []*Meta) *toposort.Graph {
	return buildGraph(metas, func(m *Meta) []string { return m.Children })
}

// BuildDiffGraph builds the delta graph from a set of metadata records,
// edges running from the snapshot holding a delta to the snapshot it can
// reconstruct.
func BuildDiffGraph(metas []*Meta) *toposort.Graph {
	return buildGraph(metas, func(m *Meta) []string { return m.DiffChildren })
}

func buildGraph(metas []*Meta, children func(*Meta) []string) *toposort.Graph {
	graph := toposort.NewGraph()

	for _, m := range metas {
		graph.AddNode(m.ID)
	}

	for _, m := range metas {
		for _, child := range children(m) {
			graph.AddEdge(m.ID, child)
		}
	}

	return graph
}

// DetectCycle reports a cycle reachable from seed in graph, if one exists.
// name identifies the graph in the returned error ("snapshot" or "diff").
func DetectCycle(graph *toposort.Graph, seed string, name string) error {
	cycle := graph.FindCycle(seed)
	if len(cycle) == 0 {
		return nil
	}

	return &ErrCycleDetected{Graph: name, Path: cycle}
}

// Fsck loads every snapshot's metadata and checks both the commit graph and
// the delta graph for cycles, returning the first one found.
func Fsck(dir string, ids []string) error {
	metas := make([]*Meta, 0, len(ids))

	for _, id := range ids {
		m, err := LoadMeta(dir, id)
		if err != nil {
			return fmt.Errorf("repo: fsck: %w", err)
		}

		metas = append(metas, m)
	}

	snapshotGraph := BuildSnapshotGraph(metas)
	diffGraph := BuildDiffGraph(metas)

	for _, id := range ids {
		if err := DetectCycle(snapshotGraph, id, "snapshot"); err != nil {
			return err
		}

		if err := DetectCycle(diffGraph, id, "diff"); err != nil {
			return err
		}
	}

	return nil
}
