package repo

import (
	"fmt"
	"os"
	"strings"
)

// Violation is one invariant failure found by ValidateRepo. Unlike
// DetectCycle (which returns the first cycle it finds), ValidateRepo
// collects every violation so a single "jbackup fsck" run reports
// everything wrong with a repository, not just the first problem.
type Violation struct {
	Kind    string // "cycle", "full-payload-count", "broken-chain", "head-mismatch", "id-mismatch"
	Message string
}

func (v Violation) Error() string { return fmt.Sprintf("repo: %s: %s", v.Kind, v.Message) }

// ValidateRepo loads every snapshot under root and checks the invariants a
// consistent repository must uphold: exactly one live full payload, every
// non-full snapshot has an unbroken chain (with delta files present) to
// that full payload, branches[head.Branch] agrees with head.SnapshotID,
// and each meta file's recorded id matches the id its filename encodes.
// It returns every violation found; a nil slice means the repository is
// consistent.
func ValidateRepo(root string) ([]Violation, error) {
	dir := SnapshotsDir(root)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("repo: validate: read snapshots directory: %w", err)
	}

	var ids []string

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".meta") {
			ids = append(ids, strings.TrimSuffix(name, ".meta"))
		}
	}

	metas := make(map[string]*Meta, len(ids))
	metaList := make([]*Meta, 0, len(ids))

	var violations []Violation

	for _, id := range ids {
		m, loadErr := LoadMeta(dir, id)
		if loadErr != nil {
			return nil, fmt.Errorf("repo: validate: load meta %q: %w", id, loadErr)
		}

		if m.ID != id {
			violations = append(violations, Violation{
				Kind:    "id-mismatch",
				Message: fmt.Sprintf("file %q.meta records id %q", id, m.ID),
			})
		}

		metas[id] = m
		metaList = append(metaList, m)
	}

	snapshotGraph := BuildSnapshotGraph(metaList)
	diffGraph := BuildDiffGraph(metaList)

	for _, id := range ids {
		if err := DetectCycle(snapshotGraph, id, "snapshot"); err != nil {
			violations = append(violations, Violation{Kind: "cycle", Message: err.Error()})
		}

		if err := DetectCycle(diffGraph, id, "diff"); err != nil {
			violations = append(violations, Violation{Kind: "cycle", Message: err.Error()})
		}
	}

	violations = append(violations, checkFullPayloadCount(metaList)...)
	violations = append(violations, checkChains(root, metas)...)

	headViolation, err := checkHead(root, metas)
	if err != nil {
		return nil, err
	}

	if headViolation != nil {
		violations = append(violations, *headViolation)
	}

	return violations, nil
}

func checkFullPayloadCount(metas []*Meta) []Violation {
	if len(metas) == 0 {
		return nil
	}

	count := 0

	for _, m := range metas {
		if m.Full != FullNone {
			count++
		}
	}

	if count == 1 {
		return nil
	}

	return []Violation{{
		Kind:    "full-payload-count",
		Message: fmt.Sprintf("expected exactly one live full payload, found %d", count),
	}}
}

// checkChains walks every non-full snapshot's diff_children toward a full
// payload, confirming the chain terminates and every delta file along the
// way exists on disk.
func checkChains(root string, metas map[string]*Meta) []Violation {
	var violations []Violation

	for id, m := range metas {
		if m.Full != FullNone {
			continue
		}

		if _, err := walkChain(root, metas, id); err != nil {
			violations = append(violations, Violation{Kind: "broken-chain", Message: err.Error()})
		}
	}

	return violations
}

func walkChain(root string, metas map[string]*Meta, startID string) ([]string, error) {
	seen := map[string]bool{startID: true}
	cur := startID

	var visited []string

	for {
		m, ok := metas[cur]
		if !ok {
			return nil, fmt.Errorf("snapshot %q: meta %q referenced but missing", startID, cur)
		}

		if m.Full != FullNone {
			return visited, nil
		}

		if len(m.DiffChildren) == 0 {
			return nil, fmt.Errorf("snapshot %q: no path to a full payload", startID)
		}

		next := m.DiffChildren[0]
		if seen[next] {
			return nil, fmt.Errorf("snapshot %q: diff-child chain cycles at %q", startID, next)
		}

		if _, statErr := os.Stat(DiffPath(root, cur, next)); statErr != nil {
			return nil, fmt.Errorf("snapshot %q: missing delta file %s-diff-%s", startID, cur, next)
		}

		seen[next] = true
		visited = append(visited, next)
		cur = next
	}
}

func checkHead(root string, metas map[string]*Meta) (*Violation, error) {
	dir := RepoDir(root)

	head, err := LoadHead(dir)
	if err != nil {
		return nil, fmt.Errorf("repo: validate: load head: %w", err)
	}

	if head.SnapshotID == "" {
		return nil, nil
	}

	branches, err := LoadBranches(dir)
	if err != nil {
		return nil, fmt.Errorf("repo: validate: load branches: %w", err)
	}

	ref, ok := branches.Refs[head.Branch]
	if !ok || ref != head.SnapshotID {
		return &Violation{
			Kind: "head-mismatch",
			Message: fmt.Sprintf(
				"head points branch %q at %q but branches records %q",
				head.Branch, head.SnapshotID, ref,
			),
		}, nil
	}

	if _, ok := metas[head.SnapshotID]; !ok {
		return &Violation{
			Kind:    "head-mismatch",
			Message: fmt.Sprintf("head snapshot %q has no meta file", head.SnapshotID),
		}, nil
	}

	return nil, nil
}
