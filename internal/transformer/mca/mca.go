// Package mca implements the Minecraft Anvil region-file re-framing
// transformer: on ingestion every zlib-compressed chunk is decompressed in
// place (scheme 2 -> 3) so later bsdiff passes see raw NBT bytes instead of
// an opaque compressed blob; on restore the chunks are recompressed
// (scheme 3 -> 2) to rebuild a file a Minecraft server will load.
package mca

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/JaPNaA/jbackup/pkg/safeconv"
)

const (
	sectorSize     = 4096
	headerSectors  = 2
	numChunkSlots  = 1024
	schemeZlib     = 2
	schemeRaw      = 3
	maxSectorField = 1<<24 - 1
)

// Sentinel errors.
var (
	ErrTruncatedHeader  = errors.New("mca: truncated region file header")
	ErrTruncatedPayload = errors.New("mca: truncated chunk payload")
	ErrSectorOverflow   = errors.New("mca: reassigned sector offset exceeds 2^24-1")
)

// Transformer re-frames Minecraft region files. It is stateless and safe
// for concurrent use across distinct calls.
type Transformer struct{}

// New constructs the region-file transformer.
func New() Transformer {
	return Transformer{}
}

// TransformIn decompresses every zlib chunk in a .mca file to scheme 3.
// Paths not ending in ".mca" pass through unchanged.
func (Transformer) TransformIn(path string, data []byte) ([]byte, error) {
	if !strings.HasSuffix(path, ".mca") {
		return data, nil
	}

	return reframe(data, func(scheme byte, payload []byte) (byte, []byte, error) {
		if scheme != schemeZlib {
			return scheme, payload, nil
		}

		raw, err := inflate(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("mca: inflate chunk: %w", err)
		}

		return schemeRaw, raw, nil
	})
}

// TransformOut recompresses every scheme-3 chunk in a .mca file back to
// zlib. Paths not ending in ".mca" pass through unchanged.
func (Transformer) TransformOut(path string, data []byte) ([]byte, error) {
	if !strings.HasSuffix(path, ".mca") {
		return data, nil
	}

	return reframe(data, func(scheme byte, payload []byte) (byte, []byte, error) {
		if scheme != schemeRaw {
			return scheme, payload, nil
		}

		compressed, err := deflate(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("mca: deflate chunk: %w", err)
		}

		return schemeZlib, compressed, nil
	})
}

type parsedChunk struct {
	index   int
	scheme  byte
	payload []byte
}

const headerSize = headerSectors * sectorSize

// reframe parses a region file, applies convert to every existing chunk's
// (scheme, payload) pair in ascending chunk-index order, and rebuilds the
// file with compactly reassigned sector offsets starting at sector 2.
// Timestamps are preserved verbatim.
func reframe(data []byte, convert func(scheme byte, payload []byte) (byte, []byte, error)) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedHeader, len(data))
	}

	locations := data[:sectorSize]
	timestamps := data[sectorSize:headerSize]

	chunks := make([]parsedChunk, 0, numChunkSlots)

	for i := range numChunkSlots {
		entry := binary.BigEndian.Uint32(locations[i*4 : i*4+4])
		offset := entry >> 8
		sectorCount := entry & 0xff

		if offset == 0 || sectorCount == 0 {
			continue
		}

		byteOffset := int64(offset) * sectorSize
		if byteOffset+4 > int64(len(data)) {
			return nil, fmt.Errorf("%w: chunk %d header at %d", ErrTruncatedPayload, i, byteOffset)
		}

		length := binary.BigEndian.Uint32(data[byteOffset : byteOffset+4])
		if length == 0 {
			return nil, fmt.Errorf("%w: chunk %d has zero length", ErrTruncatedPayload, i)
		}

		recordEnd := byteOffset + 4 + int64(length)
		if recordEnd > int64(len(data)) {
			return nil, fmt.Errorf("%w: chunk %d payload at %d len %d", ErrTruncatedPayload, i, byteOffset, length)
		}

		scheme := data[byteOffset+4]
		payload := data[byteOffset+5 : recordEnd]

		newScheme, newPayload, err := convert(scheme, payload)
		if err != nil {
			return nil, err
		}

		chunks = append(chunks, parsedChunk{index: i, scheme: newScheme, payload: newPayload})
	}

	return build(chunks, timestamps)
}

// build reassembles a region file from the given chunks (already in
// ascending index order) and the original timestamp table.
func build(chunks []parsedChunk, timestamps []byte) ([]byte, error) {
	newLocations := make([]byte, sectorSize)

	var body bytes.Buffer

	nextSector := headerSectors

	var lastIndex = -1

	for _, c := range chunks {
		if c.index <= lastIndex {
			return nil, fmt.Errorf("mca: chunk %d written out of order after %d", c.index, lastIndex)
		}

		lastIndex = c.index

		recordLen := 1 + len(c.payload)
		sectorsNeeded := (recordLen + 4 + sectorSize - 1) / sectorSize

		if nextSector > maxSectorField {
			return nil, fmt.Errorf("%w: chunk %d at sector %d", ErrSectorOverflow, c.index, nextSector)
		}

		locEntry := uint32(nextSector)<<8 | uint32(sectorsNeeded)
		binary.BigEndian.PutUint32(newLocations[c.index*4:c.index*4+4], locEntry)

		var lengthField [4]byte
		binary.BigEndian.PutUint32(lengthField[:], safeconv.MustIntToUint32(recordLen))
		body.Write(lengthField[:])
		body.WriteByte(c.scheme)
		body.Write(c.payload)

		padded := sectorsNeeded * sectorSize
		if pad := padded - (4 + recordLen); pad > 0 {
			body.Write(make([]byte, pad))
		}

		nextSector += sectorsNeeded
	}

	out := make([]byte, 0, headerSize+body.Len())
	out = append(out, newLocations...)
	out = append(out, timestamps...)
	out = append(out, body.Bytes()...)

	return out, nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mca: open zlib stream: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("mca: read zlib stream: %w", err)
	}

	return raw, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := zlib.NewWriterLevel(&buf, zlib.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("mca: open zlib writer: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("mca: write zlib stream: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("mca: close zlib stream: %w", err)
	}

	return buf.Bytes(), nil
}
