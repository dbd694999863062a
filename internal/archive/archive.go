// Package archive implements the tar.gz container used to store a snapshot's
// full payload: a streaming writer/reader pair over compressed tar, with
// entries required to appear in ascending UTF-8-byte path order.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

// Sentinel errors.
var (
	ErrNonUTF8Path    = errors.New("archive: entry path is not valid UTF-8")
	ErrOutOfOrder     = errors.New("archive: entry path does not sort after the previous entry")
	ErrWriterFinished = errors.New("archive: writer already finalized")
)

// Entry is one file captured in the archive.
type Entry struct {
	Path    string
	Mode    int64
	ModTime int64 // unix seconds
	Size    int64
}

// Writer builds a tar stream over a gzip encoder, entry by entry, enforcing
// ascending path order as the last line of defense for the invariant the
// walker and pipeline are also responsible for upholding.
type Writer struct {
	gz       *gzip.Writer
	tw       *tar.Writer
	lastPath string
	hasEntry bool
	done     bool
}

// NewWriter wraps w as a gzip-compressed tar builder.
func NewWriter(w io.Writer) *Writer {
	gz := gzip.NewWriter(w)

	return &Writer{
		gz: gz,
		tw: tar.NewWriter(gz),
	}
}

// Add appends one entry. path must be valid UTF-8 and must sort strictly
// after the previously added path.
func (w *Writer) Add(entry Entry, payload []byte) error {
	if w.done {
		return ErrWriterFinished
	}

	if !utf8.ValidString(entry.Path) {
		return fmt.Errorf("%w: %q", ErrNonUTF8Path, entry.Path)
	}

	if w.hasEntry && entry.Path <= w.lastPath {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, entry.Path, w.lastPath)
	}

	hdr := &tar.Header{
		Name:    entry.Path,
		Mode:    entry.Mode,
		Size:    int64(len(payload)),
		ModTime: unixSeconds(entry.ModTime),
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("archive: write header for %q: %w", entry.Path, err)
	}

	if _, err := w.tw.Write(payload); err != nil {
		return fmt.Errorf("archive: write payload for %q: %w", entry.Path, err)
	}

	w.lastPath = entry.Path
	w.hasEntry = true

	return nil
}

// Close flushes the tar trailer and the gzip stream. It must be called
// exactly once, after the last Add.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}

	w.done = true

	if err := w.tw.Close(); err != nil {
		return fmt.Errorf("archive: close tar writer: %w", err)
	}

	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("archive: close gzip writer: %w", err)
	}

	return nil
}

// Reader decodes a gzip-compressed tar stream entry by entry, in the order
// written.
type Reader struct {
	gz *gzip.Reader
	tr *tar.Reader
}

// NewReader opens r as a gzip-decoded tar entry stream.
func NewReader(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("archive: open gzip stream: %w", err)
	}

	return &Reader{gz: gz, tr: tar.NewReader(gz)}, nil
}

// Next returns the next entry and its payload, or io.EOF when the stream is
// exhausted.
func (r *Reader) Next() (Entry, []byte, error) {
	hdr, err := r.tr.Next()
	if errors.Is(err, io.EOF) {
		return Entry{}, nil, io.EOF
	}

	if err != nil {
		return Entry{}, nil, fmt.Errorf("archive: read header: %w", err)
	}

	if !utf8.ValidString(hdr.Name) {
		return Entry{}, nil, fmt.Errorf("%w: %q", ErrNonUTF8Path, hdr.Name)
	}

	payload := make([]byte, hdr.Size)

	if _, err := io.ReadFull(r.tr, payload); err != nil {
		return Entry{}, nil, fmt.Errorf("archive: read payload for %q: %w", hdr.Name, err)
	}

	entry := Entry{
		Path:    hdr.Name,
		Mode:    hdr.Mode,
		ModTime: hdr.ModTime.Unix(),
		Size:    hdr.Size,
	}

	return entry, payload, nil
}

// Close releases the underlying gzip reader.
func (r *Reader) Close() error {
	if err := r.gz.Close(); err != nil {
		return fmt.Errorf("archive: close gzip reader: %w", err)
	}

	return nil
}
