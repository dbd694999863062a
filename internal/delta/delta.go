// Package delta implements the merge algorithms that generate and apply a
// delta-list between two archives. Generate and Apply use base/target names
// instead of the "old"/"new" labels: Generate(base, target) produces
// records such that Apply(base, records, dst) writes target's contents
// into dst.
package delta

import (
	"errors"
	"fmt"
	"io"

	"github.com/JaPNaA/jbackup/internal/archive"
	"github.com/JaPNaA/jbackup/internal/bindiff"
	"github.com/JaPNaA/jbackup/internal/deltalist"
)

// Sentinel errors for patching conflicts, per the application algorithm.
var (
	ErrAddOnExistingPath   = errors.New("delta: patching conflict: Add on existing path")
	ErrOpOnNonexistentPath = errors.New("delta: patching conflict: op on nonexistent path")
)

// Generate consumes base and target as sorted entry streams and merges
// them into a delta-list: equal paths with differing payloads become
// Modified records (skipped if the binary diff primitive finds nothing to
// encode); a path only in base becomes Deleted; a path only in target
// becomes Added.
func Generate(base, target *archive.Reader) ([]deltalist.Record, error) {
	baseEntry, basePayload, baseErr := base.Next()
	targetEntry, targetPayload, targetErr := target.Next()

	var records []deltalist.Record

	for {
		baseDone, err := isExhausted(baseErr)
		if err != nil {
			return nil, fmt.Errorf("delta: read base entry: %w", err)
		}

		targetDone, err := isExhausted(targetErr)
		if err != nil {
			return nil, fmt.Errorf("delta: read target entry: %w", err)
		}

		switch {
		case baseDone && targetDone:
			return records, nil

		case baseDone:
			records = append(records, deltalist.Added(targetEntry.Path, targetPayload))
			targetEntry, targetPayload, targetErr = target.Next()

		case targetDone:
			records = append(records, deltalist.Deleted(baseEntry.Path))
			baseEntry, basePayload, baseErr = base.Next()

		case baseEntry.Path == targetEntry.Path:
			patch, ok, err := bindiff.Encode(basePayload, targetPayload)
			if err != nil {
				return nil, fmt.Errorf("delta: encode patch for %q: %w", baseEntry.Path, err)
			}

			if ok {
				records = append(records, deltalist.Modified(baseEntry.Path, patch))
			}

			baseEntry, basePayload, baseErr = base.Next()
			targetEntry, targetPayload, targetErr = target.Next()

		case baseEntry.Path < targetEntry.Path:
			records = append(records, deltalist.Deleted(baseEntry.Path))
			baseEntry, basePayload, baseErr = base.Next()

		default:
			records = append(records, deltalist.Added(targetEntry.Path, targetPayload))
			targetEntry, targetPayload, targetErr = target.Next()
		}
	}
}

// Apply merges base and records by path and writes the resulting entries
// to dst in ascending order, reconstructing whatever archive Generate's
// target argument held.
func Apply(base *archive.Reader, records []deltalist.Record, dst *archive.Writer) error {
	baseEntry, basePayload, baseErr := base.Next()
	i := 0

	for {
		baseDone, err := isExhausted(baseErr)
		if err != nil {
			return fmt.Errorf("delta: read base entry: %w", err)
		}

		recordsDone := i >= len(records)

		switch {
		case baseDone && recordsDone:
			return nil

		case baseDone:
			rec := records[i]
			if err := writeAddedRecord(dst, rec); err != nil {
				return err
			}

			i++

		case recordsDone:
			if err := dst.Add(baseEntry, basePayload); err != nil {
				return fmt.Errorf("delta: write %q: %w", baseEntry.Path, err)
			}

			baseEntry, basePayload, baseErr = base.Next()

		case baseEntry.Path == records[i].Path:
			rec := records[i]

			switch rec.Op {
			case deltalist.OpModified:
				// A patch that does not decode leaves the base payload as is,
				// the same outcome as a path Generate found nothing to encode for.
				target, err := bindiff.Decode(basePayload, rec.Payload)
				if err != nil {
					target = basePayload
				}

				entry := archive.Entry{Path: baseEntry.Path, Mode: baseEntry.Mode, ModTime: baseEntry.ModTime}
				if err := dst.Add(entry, target); err != nil {
					return fmt.Errorf("delta: write %q: %w", rec.Path, err)
				}

			case deltalist.OpDeleted:
				// drop the entry

			case deltalist.OpAdded:
				return fmt.Errorf("%w: %q", ErrAddOnExistingPath, rec.Path)

			default:
				return fmt.Errorf("%w: %d", deltalist.ErrUnknownOp, rec.Op)
			}

			baseEntry, basePayload, baseErr = base.Next()
			i++

		case baseEntry.Path < records[i].Path:
			if err := dst.Add(baseEntry, basePayload); err != nil {
				return fmt.Errorf("delta: write %q: %w", baseEntry.Path, err)
			}

			baseEntry, basePayload, baseErr = base.Next()

		default:
			rec := records[i]
			if err := writeAddedRecord(dst, rec); err != nil {
				return err
			}

			i++
		}
	}
}

func writeAddedRecord(dst *archive.Writer, rec deltalist.Record) error {
	if rec.Op != deltalist.OpAdded {
		return fmt.Errorf("%w: %q", ErrOpOnNonexistentPath, rec.Path)
	}

	if err := dst.Add(archive.Entry{Path: rec.Path}, rec.Payload); err != nil {
		return fmt.Errorf("delta: write %q: %w", rec.Path, err)
	}

	return nil
}

func isExhausted(err error) (bool, error) {
	if err == nil {
		return false, nil
	}

	if errors.Is(err, io.EOF) {
		return true, nil
	}

	return false, err
}
