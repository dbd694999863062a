package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchesSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	want := &Branches{Refs: map[string]string{"main": "abc", "dev": "def"}}
	require.NoError(t, want.Save(dir))

	got, err := LoadBranches(dir)
	require.NoError(t, err)
	assert.Equal(t, want.Refs, got.Refs)
}

func TestHeadSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	want := &Head{Branch: "main", SnapshotID: "abc"}
	require.NoError(t, want.Save(dir))

	got, err := LoadHead(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHeadSaveLoadWithoutSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	want := &Head{Branch: "main"}
	require.NoError(t, want.Save(dir))

	got, err := LoadHead(dir)
	require.NoError(t, err)
	assert.Equal(t, "", got.SnapshotID)
}

func TestLoadHeadMissingBranchFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "head"), []byte("\n"), 0o644))

	_, err := LoadHead(dir)
	require.ErrorIs(t, err, ErrMissingBranch)
}

func TestConfigSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	want := &Config{Transformers: []string{"zlib", "mca"}}
	require.NoError(t, want.Save(dir))

	got, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, want.Transformers, got.Transformers)
}

func TestConfigSaveLoadEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	want := &Config{}
	require.NoError(t, want.Save(dir))

	got, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Empty(t, got.Transformers)
}

func TestMetaSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	want := &Meta{
		ID:           "20260101-abc",
		Date:         1767225600,
		Message:      "initial snapshot",
		Full:         FullTarGz,
		Parents:      []string{"20251231-xyz"},
		Children:     []string{"20260102-def"},
		DiffParents:  []string{"20251231-xyz"},
		DiffChildren: nil,
	}
	require.NoError(t, want.Save(dir))

	got, err := LoadMeta(dir, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Date, got.Date)
	assert.Equal(t, want.Message, got.Message)
	assert.Equal(t, want.Full, got.Full)
	assert.Equal(t, want.Parents, got.Parents)
	assert.Equal(t, want.Children, got.Children)
	assert.Equal(t, want.DiffParents, got.DiffParents)
}

func TestMetaSaveLoadWithoutMessage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	want := &Meta{ID: "snap1", Date: 100, Full: FullNone}
	require.NoError(t, want.Save(dir))

	got, err := LoadMeta(dir, want.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.Message)
}

func TestLoadMetaMissingDateFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.meta"), []byte("full\ttar\n"), 0o644))

	_, err := LoadMeta(dir, "broken")
	require.ErrorIs(t, err, ErrMissingDate)
}
