// Package snapshot implements the repository's state machine: init, taking
// a snapshot, and listing history. Restoring a snapshot lives in
// internal/restore, which depends on this package only for repo layout.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/JaPNaA/jbackup/internal/archive"
	"github.com/JaPNaA/jbackup/internal/delta"
	"github.com/JaPNaA/jbackup/internal/deltalist"
	"github.com/JaPNaA/jbackup/internal/observability"
	"github.com/JaPNaA/jbackup/internal/pipeline"
	"github.com/JaPNaA/jbackup/internal/repo"
	"github.com/JaPNaA/jbackup/internal/transformer"
	"github.com/JaPNaA/jbackup/internal/walker"
)

// ErrSnapshotCollision is returned when the computed snapshot id already
// has a meta file on disk.
var ErrSnapshotCollision = errors.New("snapshot: id collision")

// Init creates a new repository at root, with an empty branches file, head
// pointing at "main" with no snapshot, and the given transformer chain
// recorded in config.
func Init(root string, transformers []string) error {
	dir := repo.RepoDir(root)

	if _, err := os.Stat(dir); err == nil {
		return repo.ErrAlreadyExists
	}

	if err := os.MkdirAll(repo.SnapshotsDir(root), 0o755); err != nil {
		return fmt.Errorf("snapshot: create repository directory: %w", err)
	}

	if err := (&repo.Branches{Refs: map[string]string{}}).Save(dir); err != nil {
		return err
	}

	if err := (&repo.Head{Branch: "main"}).Save(dir); err != nil {
		return err
	}

	if err := (&repo.Config{Transformers: transformers}).Save(dir); err != nil {
		return err
	}

	return nil
}

// Options configures a snapshot run.
type Options struct {
	Message     string
	Chain       []transformer.Transformer
	Workers     int
	BufferBound int
	Metrics     *observability.Metrics
}

// CreateSnapshot walks root's working tree, archives it through the worker
// pipeline, and commits it to the repository as a new snapshot with a full
// payload. When a previous snapshot exists, its full payload is replaced by
// a delta that reconstructs it from the new one.
func CreateSnapshot(root string, opts Options) (id string, err error) {
	start := time.Now()
	dir := repo.RepoDir(root)
	tmpPath := repo.TmpSnapshotPath(root)

	digest, ingestErr := ingest(root, tmpPath, opts)
	if ingestErr != nil {
		return "", ingestErr
	}

	id = fmt.Sprintf("%d-%s", start.Unix(), digest)

	if _, statErr := os.Stat(repo.MetaPath(root, id)); statErr == nil {
		return "", fmt.Errorf("%w: %q", ErrSnapshotCollision, id)
	}

	head, err := repo.LoadHead(dir)
	if err != nil {
		return "", err
	}

	branches, err := repo.LoadBranches(dir)
	if err != nil {
		return "", err
	}

	if head.SnapshotID == "" {
		if err := commitFirst(root, tmpPath, id, opts.Message, start); err != nil {
			return "", err
		}
	} else {
		if err := commitIncremental(root, tmpPath, id, head.SnapshotID, opts, start); err != nil {
			return "", err
		}
	}

	head.SnapshotID = id
	branches.Refs[head.Branch] = id

	if err := head.Save(dir); err != nil {
		return "", err
	}

	if err := branches.Save(dir); err != nil {
		return "", err
	}

	cleanupStale(tmpPath)

	opts.Metrics.RecordSnapshot(time.Since(start))

	return id, nil
}

func commitFirst(root, tmpPath, id, message string, date time.Time) error {
	meta := &repo.Meta{ID: id, Date: date.Unix(), Message: message, Full: repo.FullTarGz}

	if err := meta.Save(repo.SnapshotsDir(root)); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, repo.FullPath(root, id)); err != nil {
		return fmt.Errorf("snapshot: move full payload into place: %w", err)
	}

	return nil
}

func commitIncremental(root, tmpPath, id, prevID string, opts Options, date time.Time) error {
	prevMeta, err := repo.LoadMeta(repo.SnapshotsDir(root), prevID)
	if err != nil {
		return fmt.Errorf("snapshot: load previous meta: %w", err)
	}

	if err := writeDelta(root, tmpPath, prevID, id, opts.Metrics); err != nil {
		return err
	}

	prevMeta.Children = append(prevMeta.Children, id)
	prevMeta.DiffChildren = append(prevMeta.DiffChildren, id)
	prevMeta.Full = repo.FullNone

	newMeta := &repo.Meta{
		ID:          id,
		Date:        date.Unix(),
		Message:     opts.Message,
		Full:        repo.FullTarGz,
		Parents:     []string{prevID},
		DiffParents: []string{prevID},
	}

	if err := newMeta.Save(repo.SnapshotsDir(root)); err != nil {
		return err
	}

	if err := prevMeta.Save(repo.SnapshotsDir(root)); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, repo.FullPath(root, id)); err != nil {
		return fmt.Errorf("snapshot: move full payload into place: %w", err)
	}

	prevFull := repo.FullPath(root, prevID)
	if err := os.Remove(prevFull); err != nil {
		slog.Warn("snapshot: failed to delete superseded full payload", "path", prevFull, "error", err)
	}

	return nil
}

func writeDelta(root, tmpPath, prevID, newID string, metrics *observability.Metrics) error {
	prevFile, err := os.Open(repo.FullPath(root, prevID))
	if err != nil {
		return fmt.Errorf("snapshot: open previous full payload: %w", err)
	}
	defer prevFile.Close()

	newFile, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("snapshot: reopen temp archive: %w", err)
	}
	defer newFile.Close()

	prevReader, err := archive.NewReader(prevFile)
	if err != nil {
		return fmt.Errorf("snapshot: open previous archive: %w", err)
	}
	defer prevReader.Close()

	newReader, err := archive.NewReader(newFile)
	if err != nil {
		return fmt.Errorf("snapshot: open new archive: %w", err)
	}
	defer newReader.Close()

	records, err := delta.Generate(newReader, prevReader)
	if err != nil {
		return fmt.Errorf("snapshot: generate delta: %w", err)
	}

	for _, rec := range records {
		metrics.RecordDeltaOp(opName(rec.Op))
	}

	diffFile, err := os.Create(repo.DiffPath(root, prevID, newID))
	if err != nil {
		return fmt.Errorf("snapshot: create delta-list file: %w", err)
	}
	defer diffFile.Close()

	if err := deltalist.WriteGz(diffFile, records); err != nil {
		return fmt.Errorf("snapshot: write delta-list: %w", err)
	}

	return nil
}

func opName(op byte) string {
	switch op {
	case deltalist.OpAdded:
		return "added"
	case deltalist.OpModified:
		return "modified"
	case deltalist.OpDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// cleanupStale removes a leftover temp archive (e.g. after a crash-free but
// unmoved run) on a best-effort basis; failures are logged, not propagated.
func cleanupStale(tmpPath string) {
	if _, err := os.Stat(tmpPath); err != nil {
		return
	}

	if err := os.Remove(tmpPath); err != nil {
		slog.Warn("snapshot: failed to clean up stale temp archive", "path", tmpPath, "error", err)
	}
}

// ingestInput is one file queued for the worker pipeline.
type ingestInput struct {
	file walker.FileInfo
}

// ingestOutput is the archived entry the sink writes, in write order.
type ingestOutput struct {
	entry       archive.Entry
	payload     []byte
	transformed bool // the transformer chain changed the file's bytes
}

// ingestCtx is the pipeline's sink state: the archive under construction.
type ingestCtx struct {
	writer  *archive.Writer
	metrics *observability.Metrics
}

func ingest(root, tmpPath string, opts Options) (digest string, err error) {
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("snapshot: create temp archive: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	aw := archive.NewWriter(io.MultiWriter(f, hasher))

	ctx := &ingestCtx{writer: aw, metrics: opts.Metrics}

	p := pipeline.New[ingestInput, ingestOutput, ingestCtx, struct{}](ctx, ingestSink)
	p.SpawnWorkers(opts.Workers, opts.BufferBound, struct{}{}, ingestProcessFn(opts.Chain))

	walkErr := walker.Walk(root, func(fi walker.FileInfo) error {
		if writeErr := p.Write(ingestInput{file: fi}); writeErr != nil {
			return writeErr
		}

		if err := p.Poll(); err != nil {
			return err
		}

		opts.Metrics.SetPipelineQueueDepth(p.QueueDepth())

		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("snapshot: walk working tree: %w", walkErr)
	}

	if _, err := p.Finalize(); err != nil {
		return "", fmt.Errorf("snapshot: ingest: %w", err)
	}

	if err := aw.Close(); err != nil {
		return "", fmt.Errorf("snapshot: close archive: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("snapshot: close temp archive: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func ingestProcessFn(chain []transformer.Transformer) pipeline.ProcessFunc[struct{}, ingestInput, ingestOutput] {
	return func(_ *struct{}, in ingestInput) (ingestOutput, error) {
		data, err := os.ReadFile(in.file.AbsPath)
		if err != nil {
			return ingestOutput{}, fmt.Errorf("snapshot: read %q: %w", in.file.AbsPath, err)
		}

		transformed, err := transformer.ApplyIn(chain, in.file.RelPath, data)
		if err != nil {
			return ingestOutput{}, err
		}

		entry := archive.Entry{
			Path:    in.file.RelPath,
			Mode:    int64(in.file.Mode.Perm()),
			ModTime: in.file.ModTime,
		}

		return ingestOutput{entry: entry, payload: transformed, transformed: !bytes.Equal(data, transformed)}, nil
	}
}

func ingestSink(ctx *ingestCtx, out ingestOutput) error {
	if err := ctx.writer.Add(out.entry, out.payload); err != nil {
		return fmt.Errorf("snapshot: write archive entry %q: %w", out.entry.Path, err)
	}

	ctx.metrics.RecordArchivedBytes(len(out.payload), out.transformed)

	return nil
}

// Log enumerates every snapshot's metadata, sorted by date ascending.
func Log(root string) ([]*repo.Meta, error) {
	dir := repo.SnapshotsDir(root)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read snapshots directory: %w", err)
	}

	var metas []*repo.Meta

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".meta") {
			continue
		}

		id := strings.TrimSuffix(name, ".meta")

		m, err := repo.LoadMeta(dir, id)
		if err != nil {
			return nil, fmt.Errorf("snapshot: load meta %q: %w", id, err)
		}

		metas = append(metas, m)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Date < metas[j].Date })

	return metas, nil
}
