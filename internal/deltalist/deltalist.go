// Package deltalist implements the binary wire format for a snapshot's
// delta-list: a magic-prefixed, versioned sequence of per-path operations
// against a pair of sorted archive entry streams.
package deltalist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

const (
	version uint32 = 1

	// maxFieldLength guards against malformed or adversarial length
	// fields; no legitimate path or payload approaches this size.
	maxFieldLength = 1_000_000_000
)

var magic = [2]byte{'D', 'L'}

// Op tags.
const (
	OpDeleted  byte = 1
	OpModified byte = 2
	OpAdded    byte = 3
)

// ErrNotADeltaList is returned when the header's magic or version does not
// match, or the stream is shorter than a header.
var ErrNotADeltaList = errors.New("deltalist: not a delta list")

// ErrFieldTooLarge is returned when a decoded length field exceeds the
// sanity bound.
var ErrFieldTooLarge = errors.New("deltalist: length field too large")

// ErrUnknownOp is returned when a record's op tag is not one of the three
// recognized values.
var ErrUnknownOp = errors.New("deltalist: unknown op tag")

// ErrNonUTF8Path is returned when a record's path is not valid UTF-8.
var ErrNonUTF8Path = errors.New("deltalist: path is not valid UTF-8")

// Record is one per-path operation. Path is always set. Payload holds the
// patch bytes for OpModified or the content bytes for OpAdded; it is nil
// for OpDeleted.
type Record struct {
	Path    string
	Op      byte
	Payload []byte
}

// Deleted builds a Deleted record.
func Deleted(path string) Record { return Record{Path: path, Op: OpDeleted} }

// Modified builds a Modified record carrying a binary patch.
func Modified(path string, patch []byte) Record {
	return Record{Path: path, Op: OpModified, Payload: patch}
}

// Added builds an Added record carrying full content.
func Added(path string, content []byte) Record {
	return Record{Path: path, Op: OpAdded, Payload: content}
}

// EncodeTo writes the uncompressed wire frame for records to w. Records
// must already be in ascending path order; EncodeTo does not verify this.
func EncodeTo(w io.Writer, records []Record) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("deltalist: write magic: %w", err)
	}

	if err := writeUint32(w, version); err != nil {
		return fmt.Errorf("deltalist: write version: %w", err)
	}

	for _, rec := range records {
		if !utf8.ValidString(rec.Path) {
			return fmt.Errorf("%w: %q", ErrNonUTF8Path, rec.Path)
		}

		if err := writeUint64(w, uint64(len(rec.Path))); err != nil {
			return fmt.Errorf("deltalist: write path length: %w", err)
		}

		if _, err := io.WriteString(w, rec.Path); err != nil {
			return fmt.Errorf("deltalist: write path: %w", err)
		}

		if _, err := w.Write([]byte{rec.Op}); err != nil {
			return fmt.Errorf("deltalist: write op tag: %w", err)
		}

		switch rec.Op {
		case OpDeleted:
			// no payload
		case OpModified, OpAdded:
			if err := writeUint64(w, uint64(len(rec.Payload))); err != nil {
				return fmt.Errorf("deltalist: write payload length: %w", err)
			}

			if _, err := w.Write(rec.Payload); err != nil {
				return fmt.Errorf("deltalist: write payload: %w", err)
			}
		default:
			return fmt.Errorf("%w: %d", ErrUnknownOp, rec.Op)
		}
	}

	return nil
}

// DecodeFrom reads an uncompressed wire frame from r.
func DecodeFrom(r io.Reader) ([]Record, error) {
	var header [6]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotADeltaList, err)
	}

	if !bytes.Equal(header[:2], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrNotADeltaList)
	}

	if got := binary.BigEndian.Uint32(header[2:6]); got != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrNotADeltaList, got)
	}

	var records []Record

	for {
		pathLen, err := readUint64(r)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("deltalist: read path length: %w", err)
		}

		if pathLen > maxFieldLength {
			return nil, fmt.Errorf("%w: path length %d", ErrFieldTooLarge, pathLen)
		}

		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBytes); err != nil {
			return nil, fmt.Errorf("deltalist: read path: %w", err)
		}

		path := string(pathBytes)
		if !utf8.Valid(pathBytes) {
			return nil, fmt.Errorf("%w: %q", ErrNonUTF8Path, path)
		}

		var opBuf [1]byte
		if _, err := io.ReadFull(r, opBuf[:]); err != nil {
			return nil, fmt.Errorf("deltalist: read op tag: %w", err)
		}

		op := opBuf[0]

		var payload []byte

		switch op {
		case OpDeleted:
			// no payload
		case OpModified, OpAdded:
			payloadLen, err := readUint64(r)
			if err != nil {
				return nil, fmt.Errorf("deltalist: read payload length: %w", err)
			}

			if payloadLen > maxFieldLength {
				return nil, fmt.Errorf("%w: payload length %d", ErrFieldTooLarge, payloadLen)
			}

			payload = make([]byte, payloadLen)
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, fmt.Errorf("deltalist: read payload: %w", err)
			}
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnknownOp, op)
		}

		records = append(records, Record{Path: path, Op: op, Payload: payload})
	}

	return records, nil
}

// WriteGz gzip-compresses the wire frame for records and writes it to w.
func WriteGz(w io.Writer, records []Record) error {
	gz := gzip.NewWriter(w)

	if err := EncodeTo(gz, records); err != nil {
		return err
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("deltalist: close gzip writer: %w", err)
	}

	return nil
}

// ReadGz reads and decodes a gzip-compressed delta-list from r.
func ReadGz(r io.Reader) ([]Record, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotADeltaList, err)
	}
	defer gz.Close()

	return DecodeFrom(gz)
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])

	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])

	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(buf[:]), nil
}
