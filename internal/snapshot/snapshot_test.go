package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaPNaA/jbackup/internal/archive"
	"github.com/JaPNaA/jbackup/internal/observability"
	"github.com/JaPNaA/jbackup/internal/repo"
)

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func defaultOpts(message string) Options {
	return Options{
		Message:     message,
		Workers:     2,
		BufferBound: 4,
		Metrics:     observability.NewMetrics(),
	}
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := archive.NewReader(f)
	require.NoError(t, err)
	defer r.Close()

	out := map[string][]byte{}

	for {
		entry, payload, err := r.Next()
		if err != nil {
			break
		}

		out[entry.Path] = payload
	}

	return out
}

func TestInitCreatesEmptyRepo(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, Init(root, nil))

	head, err := repo.LoadHead(repo.RepoDir(root))
	require.NoError(t, err)
	assert.Equal(t, "main", head.Branch)
	assert.Equal(t, "", head.SnapshotID)

	branches, err := repo.LoadBranches(repo.RepoDir(root))
	require.NoError(t, err)
	assert.Empty(t, branches.Refs)
}

func TestInitFailsIfRepoExists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, Init(root, nil))

	err := Init(root, nil)
	require.ErrorIs(t, err, repo.ErrAlreadyExists)
}

func TestCreateFirstSnapshot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, Init(root, nil))

	writeFile(t, filepath.Join(root, "a", "x"), "\x01\x02")
	writeFile(t, filepath.Join(root, "b"), "\x03")

	id, err := CreateSnapshot(root, defaultOpts("first"))
	require.NoError(t, err)

	meta, err := repo.LoadMeta(repo.SnapshotsDir(root), id)
	require.NoError(t, err)
	assert.Equal(t, repo.FullTarGz, meta.Full)
	assert.Equal(t, "first", meta.Message)

	branches, err := repo.LoadBranches(repo.RepoDir(root))
	require.NoError(t, err)
	assert.Equal(t, id, branches.Refs["main"])

	entries := readArchive(t, repo.FullPath(root, id))
	assert.Equal(t, []byte("\x01\x02"), entries["a/x"])
	assert.Equal(t, []byte("\x03"), entries["b"])
}

func TestCreateIncrementalSnapshot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, Init(root, nil))

	writeFile(t, filepath.Join(root, "a", "x"), "\x01\x02")
	writeFile(t, filepath.Join(root, "b"), "\x03")

	firstID, err := CreateSnapshot(root, defaultOpts("first"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "x"), []byte("\x01\x02\x04"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(root, "b")))
	writeFile(t, filepath.Join(root, "c"), "\x05")

	secondID, err := CreateSnapshot(root, defaultOpts("second"))
	require.NoError(t, err)

	firstMeta, err := repo.LoadMeta(repo.SnapshotsDir(root), firstID)
	require.NoError(t, err)
	assert.Equal(t, repo.FullNone, firstMeta.Full)
	assert.Contains(t, firstMeta.Children, secondID)
	assert.Contains(t, firstMeta.DiffChildren, secondID)

	secondMeta, err := repo.LoadMeta(repo.SnapshotsDir(root), secondID)
	require.NoError(t, err)
	assert.Equal(t, repo.FullTarGz, secondMeta.Full)
	assert.Contains(t, secondMeta.Parents, firstID)

	_, err = os.Stat(repo.FullPath(root, firstID))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(repo.DiffPath(root, firstID, secondID))
	require.NoError(t, err)
}

func TestLogSortsByDateAscending(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, Init(root, nil))

	writeFile(t, filepath.Join(root, "a"), "1")
	first, err := CreateSnapshot(root, defaultOpts("first"))
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "a"), "2")
	second, err := CreateSnapshot(root, defaultOpts("second"))
	require.NoError(t, err)

	metas, err := Log(root)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.LessOrEqual(t, metas[0].Date, metas[1].Date)

	ids := []string{metas[0].ID, metas[1].ID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
}
