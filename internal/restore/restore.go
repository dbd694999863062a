// Package restore reconstructs a snapshot's archive by walking its delta
// chain back to the nearest full payload, then extracts that archive to
// disk as the inverse of ingestion.
package restore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JaPNaA/jbackup/internal/archive"
	"github.com/JaPNaA/jbackup/internal/delta"
	"github.com/JaPNaA/jbackup/internal/deltalist"
	"github.com/JaPNaA/jbackup/internal/repo"
	"github.com/JaPNaA/jbackup/internal/transformer"
)

// ErrNoPathToFull is returned when the diff-child chain from a snapshot
// never reaches one with a full payload.
var ErrNoPathToFull = errors.New("restore: no path to full snapshot")

// ErrCyclicChain is returned when the diff-child chain loops without ever
// reaching a full payload, indicating a corrupt repository.
var ErrCyclicChain = errors.New("restore: diff-child chain is cyclic")

// ErrPathTraversal is returned when an archive entry's path escapes the
// extraction root.
var ErrPathTraversal = errors.New("restore: entry path contains a \"..\" segment")

// LoadAllMetas reads every snapshot's metadata into a map keyed by id.
func LoadAllMetas(root string) (map[string]*repo.Meta, error) {
	dir := repo.SnapshotsDir(root)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("restore: read snapshots directory: %w", err)
	}

	metas := make(map[string]*repo.Meta, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".meta") {
			continue
		}

		id := strings.TrimSuffix(name, ".meta")

		m, err := repo.LoadMeta(dir, id)
		if err != nil {
			return nil, fmt.Errorf("restore: load meta %q: %w", id, err)
		}

		metas[id] = m
	}

	return metas, nil
}

// Chain walks targetID's diff_children[0] links until it reaches a snapshot
// with a full payload, and returns the ids ordered from that full snapshot
// to targetID: [full, ..., target].
func Chain(metas map[string]*repo.Meta, targetID string) ([]string, error) {
	reverse := []string{targetID}
	seen := map[string]bool{targetID: true}

	cur := targetID

	for {
		m, ok := metas[cur]
		if !ok {
			return nil, fmt.Errorf("restore: meta %q referenced but missing", cur)
		}

		if m.Full != repo.FullNone {
			break
		}

		if len(m.DiffChildren) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoPathToFull, targetID)
		}

		next := m.DiffChildren[0]
		if seen[next] {
			return nil, fmt.Errorf("%w: at %q", ErrCyclicChain, next)
		}

		seen[next] = true
		reverse = append(reverse, next)
		cur = next
	}

	chain := make([]string, len(reverse))
	for i, id := range reverse {
		chain[len(reverse)-1-i] = id
	}

	return chain, nil
}

// Rebuild replays the delta chain forward from the full payload to the
// target snapshot, reconstructing each intermediate archive at a fresh
// temp path. It returns the path to the target's reconstructed archive;
// every other temp path created along the way is removed before returning.
// chain must be ordered [full, ..., target], as returned by Chain.
func Rebuild(root string, chain []string) (string, error) {
	if len(chain) == 0 {
		return "", fmt.Errorf("restore: empty chain")
	}

	currentPath := repo.FullPath(root, chain[0])
	currentIsRetained := true

	for i := 1; i < len(chain); i++ {
		older := chain[i]
		newer := chain[i-1]

		nextPath, err := applyOneDelta(root, currentPath, older, newer)
		if err != nil {
			return "", err
		}

		if !currentIsRetained {
			if rmErr := os.Remove(currentPath); rmErr != nil {
				return "", fmt.Errorf("restore: remove intermediate archive %q: %w", currentPath, rmErr)
			}
		}

		currentPath = nextPath
		currentIsRetained = false
	}

	return currentPath, nil
}

func applyOneDelta(root, basePath, older, newer string) (string, error) {
	baseFile, err := os.Open(basePath)
	if err != nil {
		return "", fmt.Errorf("restore: open base archive %q: %w", basePath, err)
	}
	defer baseFile.Close()

	baseReader, err := archive.NewReader(baseFile)
	if err != nil {
		return "", fmt.Errorf("restore: decode base archive %q: %w", basePath, err)
	}
	defer baseReader.Close()

	diffFile, err := os.Open(repo.DiffPath(root, older, newer))
	if err != nil {
		return "", fmt.Errorf("restore: open delta-list for %q: %w", older, err)
	}
	defer diffFile.Close()

	records, err := deltalist.ReadGz(diffFile)
	if err != nil {
		return "", fmt.Errorf("restore: decode delta-list for %q: %w", older, err)
	}

	destPath := repo.TmpRestorePath(root, older)

	destFile, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("restore: create temp archive %q: %w", destPath, err)
	}
	defer destFile.Close()

	dstWriter := archive.NewWriter(destFile)

	if err := delta.Apply(baseReader, records, dstWriter); err != nil {
		return "", fmt.Errorf("restore: apply delta for %q: %w", older, err)
	}

	if err := dstWriter.Close(); err != nil {
		return "", fmt.Errorf("restore: close reconstructed archive %q: %w", destPath, err)
	}

	return destPath, nil
}

// Extract writes archivePath's entries to disk under destDir, applying the
// transformer chain's TransformOut as the inverse of ingestion. Any entry
// whose path contains a ".." segment is refused.
func Extract(archivePath, destDir string, chain []transformer.Transformer) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("restore: open archive %q: %w", archivePath, err)
	}
	defer f.Close()

	r, err := archive.NewReader(f)
	if err != nil {
		return fmt.Errorf("restore: decode archive %q: %w", archivePath, err)
	}
	defer r.Close()

	for {
		entry, payload, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("restore: read archive %q: %w", archivePath, err)
		}

		if hasParentSegment(entry.Path) {
			return fmt.Errorf("%w: %q", ErrPathTraversal, entry.Path)
		}

		out, err := transformer.ApplyOut(chain, entry.Path, payload)
		if err != nil {
			return fmt.Errorf("restore: transform_out %q: %w", entry.Path, err)
		}

		destPath := filepath.Join(destDir, filepath.FromSlash(entry.Path))

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("restore: create directory for %q: %w", entry.Path, err)
		}

		if err := os.WriteFile(destPath, out, os.FileMode(entry.Mode)); err != nil {
			return fmt.Errorf("restore: write %q: %w", entry.Path, err)
		}
	}

	return nil
}

func hasParentSegment(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}

	return false
}
