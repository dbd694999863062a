package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestWalkVisitsInAscendingFullPathOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	writeFile(t, filepath.Join(root, "c.txt"), "c")
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b", "x.txt"), "bx")

	var visited []string

	err := Walk(root, func(fi FileInfo) error {
		visited = append(visited, fi.RelPath)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b/x.txt", "c.txt"}, visited)
}

func TestWalkInterleavesDirAheadOfLaterSiblingFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a", "x.txt"), "ax")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	var visited []string

	err := Walk(root, func(fi FileInfo) error {
		visited = append(visited, fi.RelPath)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a/x.txt", "b.txt"}, visited)
}

func TestWalkSkipsDotJbackupAtDepthZero(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	writeFile(t, filepath.Join(root, ".jbackup", "meta"), "m")
	writeFile(t, filepath.Join(root, "file.txt"), "f")

	var visited []string

	err := Walk(root, func(fi FileInfo) error {
		visited = append(visited, fi.RelPath)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"file.txt"}, visited)
}

func TestWalkDoesNotSkipNestedDotJbackup(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	writeFile(t, filepath.Join(root, "sub", ".jbackup", "inner.txt"), "x")

	var visited []string

	err := Walk(root, func(fi FileInfo) error {
		visited = append(visited, fi.RelPath)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"sub/.jbackup/inner.txt"}, visited)
}

func TestWalkSkipsSymlinks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	writeFile(t, filepath.Join(root, "real.txt"), "real")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	var visited []string

	err := Walk(root, func(fi FileInfo) error {
		visited = append(visited, fi.RelPath)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"real.txt"}, visited)
}

func TestWalkPropagatesVisitError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	boom := assert.AnError

	err := Walk(root, func(fi FileInfo) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestWalkEmptyDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	var visited []string

	err := Walk(root, func(fi FileInfo) error {
		visited = append(visited, fi.RelPath)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, visited)
}
