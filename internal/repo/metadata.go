package repo

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/JaPNaA/jbackup/internal/tskv"
	"github.com/JaPNaA/jbackup/pkg/persist"
)

// ErrMissingBranch is returned when a head file has no "branch" key.
var ErrMissingBranch = errors.New("repo: head is missing required key \"branch\"")

// ErrMissingDate is returned when a meta file has no "date" key.
var ErrMissingDate = errors.New("repo: meta is missing required key \"date\"")

// FullType records how (or whether) a snapshot's full archive is stored.
type FullType string

// Recognized FullType values, per the on-disk "full" meta field.
const (
	FullNone  FullType = ""
	FullTar   FullType = "tar"
	FullTarGz FullType = "tar.gz"
)

func branchesPersister() *persist.Persister[tskv.Contents] {
	return persist.NewPersister[tskv.Contents]("branches", tskv.NewCodec(""))
}

func headPersister() *persist.Persister[tskv.Contents] {
	return persist.NewPersister[tskv.Contents]("head", tskv.NewCodec(""))
}

func configPersister() *persist.Persister[tskv.Contents] {
	return persist.NewPersister[tskv.Contents]("config", tskv.NewCodec("", "transformer"))
}

func metaPersister(id string) *persist.Persister[tskv.Contents] {
	return persist.NewPersister[tskv.Contents](id, tskv.NewCodec(".meta", "child", "parent", "dchild", "dparent"))
}

// Branches maps branch name to the snapshot id it currently points at.
type Branches struct {
	Refs map[string]string
}

// LoadBranches reads the branches file from dir (the repo's ".jbackup"
// directory).
func LoadBranches(dir string) (*Branches, error) {
	var contents tskv.Contents

	if err := branchesPersister().Load(dir, func(c *tskv.Contents) { contents = *c }); err != nil {
		return nil, fmt.Errorf("repo: load branches: %w", err)
	}

	return &Branches{Refs: contents.Single}, nil
}

// Save atomically writes the branches file.
func (b *Branches) Save(dir string) error {
	err := branchesPersister().SaveAtomic(dir, func() *tskv.Contents {
		return &tskv.Contents{Single: b.Refs, Multi: map[string][]string{}}
	})
	if err != nil {
		return fmt.Errorf("repo: save branches: %w", err)
	}

	return nil
}

// Head records the current branch and, once a snapshot exists, the
// snapshot id it points at.
type Head struct {
	Branch     string
	SnapshotID string // empty means None
}

// LoadHead reads the head file from dir.
func LoadHead(dir string) (*Head, error) {
	var contents tskv.Contents

	if err := headPersister().Load(dir, func(c *tskv.Contents) { contents = *c }); err != nil {
		return nil, fmt.Errorf("repo: load head: %w", err)
	}

	branch, ok := contents.Single["branch"]
	if !ok {
		return nil, ErrMissingBranch
	}

	return &Head{Branch: branch, SnapshotID: contents.Single["snapshotid"]}, nil
}

// Save atomically writes the head file.
func (h *Head) Save(dir string) error {
	single := map[string]string{"branch": h.Branch}
	if h.SnapshotID != "" {
		single["snapshotid"] = h.SnapshotID
	}

	err := headPersister().SaveAtomic(dir, func() *tskv.Contents {
		return &tskv.Contents{Single: single, Multi: map[string][]string{}}
	})
	if err != nil {
		return fmt.Errorf("repo: save head: %w", err)
	}

	return nil
}

// Config holds the repository-wide transformer chain, parsed once at init
// time from CLI arguments and applied to every snapshot afterward.
type Config struct {
	Transformers []string
}

// LoadConfig reads the config file from dir.
func LoadConfig(dir string) (*Config, error) {
	var contents tskv.Contents

	if err := configPersister().Load(dir, func(c *tskv.Contents) { contents = *c }); err != nil {
		return nil, fmt.Errorf("repo: load config: %w", err)
	}

	return &Config{Transformers: contents.Multi["transformer"]}, nil
}

// Save atomically writes the config file.
func (c *Config) Save(dir string) error {
	err := configPersister().SaveAtomic(dir, func() *tskv.Contents {
		return &tskv.Contents{
			Single: map[string]string{},
			Multi:  map[string][]string{"transformer": c.Transformers},
		}
	})
	if err != nil {
		return fmt.Errorf("repo: save config: %w", err)
	}

	return nil
}

// Meta is one snapshot's metadata record: its place in the commit graph
// (Parents/Children) and in the delta graph (DiffParents/DiffChildren),
// plus whether it currently holds a full archive.
type Meta struct {
	ID      string
	Date    int64 // unix seconds
	Message string
	Full    FullType

	Parents      []string
	Children     []string
	DiffParents  []string
	DiffChildren []string
}

// LoadMeta reads the {id}.meta file from dir.
func LoadMeta(dir, id string) (*Meta, error) {
	var contents tskv.Contents

	if err := metaPersister(id).Load(dir, func(c *tskv.Contents) { contents = *c }); err != nil {
		return nil, fmt.Errorf("repo: load meta %q: %w", id, err)
	}

	dateStr, ok := contents.Single["date"]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingDate, id)
	}

	date, err := strconv.ParseInt(dateStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("repo: meta %q has malformed date %q: %w", id, dateStr, err)
	}

	return &Meta{
		ID:           id,
		Date:         date,
		Message:      contents.Single["message"],
		Full:         FullType(contents.Single["full"]),
		Parents:      contents.Multi["parent"],
		Children:     contents.Multi["child"],
		DiffParents:  contents.Multi["dparent"],
		DiffChildren: contents.Multi["dchild"],
	}, nil
}

// Save atomically writes the meta file.
func (m *Meta) Save(dir string) error {
	single := map[string]string{
		"date": strconv.FormatInt(m.Date, 10),
		"full": string(m.Full),
	}
	if m.Message != "" {
		single["message"] = m.Message
	}

	err := metaPersister(m.ID).SaveAtomic(dir, func() *tskv.Contents {
		return &tskv.Contents{
			Single: single,
			Multi: map[string][]string{
				"parent":  m.Parents,
				"child":   m.Children,
				"dparent": m.DiffParents,
				"dchild":  m.DiffChildren,
			},
		}
	})
	if err != nil {
		return fmt.Errorf("repo: save meta %q: %w", m.ID, err)
	}

	return nil
}
