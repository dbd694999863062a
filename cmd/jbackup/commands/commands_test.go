package commands_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaPNaA/jbackup/cmd/jbackup/commands"
	"github.com/JaPNaA/jbackup/internal/snapshot"
)

func TestInitCommandRegistersTransformersFlag(t *testing.T) {
	t.Parallel()

	repoFlag := ""
	cmd := commands.NewInitCommand(&repoFlag)

	flag := cmd.Flags().Lookup("transformers")
	require.NotNil(t, flag, "flag --transformers should be registered")
}

func TestSnapshotCommandRegistersMessageFlag(t *testing.T) {
	t.Parallel()

	repoFlag := ""
	cmd := commands.NewSnapshotCommand(&repoFlag)

	flag := cmd.Flags().Lookup("message")
	require.NotNil(t, flag, "flag --message should be registered")
	assert.Equal(t, "m", flag.Shorthand)
}

func TestLogCommandDefaultsToTableFormat(t *testing.T) {
	t.Parallel()

	repoFlag := ""
	cmd := commands.NewLogCommand(&repoFlag)

	flag := cmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, commands.FormatTable, flag.DefValue)
}

func TestRestoreCommandRequiresExactlyOneArg(t *testing.T) {
	t.Parallel()

	repoFlag := ""
	cmd := commands.NewRestoreCommand(&repoFlag)

	require.Error(t, cmd.Args(cmd, nil))
	require.Error(t, cmd.Args(cmd, []string{"a", "b"}))
	require.NoError(t, cmd.Args(cmd, []string{"a"}))
}

func TestFsckCommandReportsConsistentRepo(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	repoFlag := root
	initCmd := commands.NewInitCommand(&repoFlag)
	require.NoError(t, initCmd.RunE(initCmd, nil))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))

	snapshotCmd := commands.NewSnapshotCommand(&repoFlag)
	require.NoError(t, snapshotCmd.RunE(snapshotCmd, nil))

	fsckCmd := commands.NewFsckCommand(&repoFlag)
	require.NoError(t, fsckCmd.RunE(fsckCmd, nil))
}

func TestEndToEndSnapshotLogRestore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	repoFlag := root

	initCmd := commands.NewInitCommand(&repoFlag)
	require.NoError(t, initCmd.RunE(initCmd, nil))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	snapshotCmd := commands.NewSnapshotCommand(&repoFlag)
	require.NoError(t, snapshotCmd.RunE(snapshotCmd, nil))

	logCmd := commands.NewLogCommand(&repoFlag)
	require.NoError(t, logCmd.RunE(logCmd, nil))

	metas, err := snapshot.Log(root)
	require.NoError(t, err)
	require.Len(t, metas, 1)

	outDir := t.TempDir()
	restoreCmd := commands.NewRestoreCommand(&repoFlag)
	require.NoError(t, restoreCmd.Flags().Set("out", outDir))
	require.NoError(t, restoreCmd.RunE(restoreCmd, []string{metas[0].ID}))

	restored, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), restored)
}
