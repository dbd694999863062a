// Package repo lays out a jbackup repository on disk and provides typed,
// TSKV-backed access to its metadata files.
package repo

import (
	"errors"
	"os"
	"path/filepath"
)

// DirName is the directory name that marks a jbackup repository root.
const DirName = ".jbackup"

// ErrNotARepository is returned by FindRoot when no ancestor directory
// contains a ".jbackup" directory.
var ErrNotARepository = errors.New("repo: no .jbackup repository found")

// ErrAlreadyExists is returned by callers of Init (see internal/snapshot)
// when the repository directory already exists.
var ErrAlreadyExists = errors.New("repo: repository already exists")

// FindRoot walks upward from startDir looking for a ".jbackup" directory,
// the same convention git tooling uses to locate a repository root.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, DirName)

		info, statErr := os.Stat(candidate)
		if statErr == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotARepository
		}

		dir = parent
	}
}

// RepoDir returns the ".jbackup" directory beneath root.
func RepoDir(root string) string { return filepath.Join(root, DirName) }

func BranchesPath(root string) string { return filepath.Join(RepoDir(root), "branches") }
func HeadPath(root string) string     { return filepath.Join(RepoDir(root), "head") }
func ConfigPath(root string) string   { return filepath.Join(RepoDir(root), "config") }
func SnapshotsDir(root string) string { return filepath.Join(RepoDir(root), "snapshots") }

// MetaPath returns the path to a snapshot's metadata file.
func MetaPath(root, id string) string {
	return filepath.Join(SnapshotsDir(root), id+".meta")
}

// FullPath returns the path to a snapshot's full tar.gz payload.
func FullPath(root, id string) string {
	return filepath.Join(SnapshotsDir(root), id+"-full.tar.gz")
}

// DiffPath returns the path to the delta-list taking the child snapshot's
// archive as base and reconstructing the parent's.
func DiffPath(root, parentID, childID string) string {
	return filepath.Join(SnapshotsDir(root), parentID+"-diff-"+childID)
}

// TmpSnapshotPath returns the transient path for an in-progress snapshot's
// archive.
func TmpSnapshotPath(root string) string {
	return filepath.Join(RepoDir(root), "tmp_snapshot.tar.gz")
}

// TmpRestorePath returns the transient path used while rebuilding a
// snapshot's archive from its delta chain during restore.
func TmpRestorePath(root, id string) string {
	return filepath.Join(RepoDir(root), "tmp-restored-"+id)
}
