package tskv

import (
	"fmt"
	"io"
)

// Codec adapts the TSKV format to pkg/persist.Codec, so repository metadata
// files can be saved and loaded through pkg/persist.Persister[tskv.Contents]
// the same way the rest of the ecosystem persists generic state.
type Codec struct {
	// MultiKeys names the keys that accumulate multiple values for this
	// particular file kind (e.g. "transformer" for config, "child" and
	// "parent" for meta files).
	MultiKeys map[string]bool

	// FileExtension is appended to a Persister's basename. Repository
	// files like "branches" and "head" carry no extension; meta files use
	// ".meta".
	FileExtension string
}

// NewCodec builds a Codec for the given multi-value key names and file
// extension (including the leading dot, or empty for none).
func NewCodec(fileExtension string, multiKeys ...string) *Codec {
	m := make(map[string]bool, len(multiKeys))
	for _, k := range multiKeys {
		m[k] = true
	}

	return &Codec{MultiKeys: m, FileExtension: fileExtension}
}

// Encode implements persist.Codec.
func (c *Codec) Encode(w io.Writer, state any) error {
	contents, ok := state.(*Contents)
	if !ok {
		return fmt.Errorf("tskv: encode: state is %T, want *Contents", state)
	}

	return Write(w, contents)
}

// Decode implements persist.Codec.
func (c *Codec) Decode(r io.Reader, state any) error {
	contents, ok := state.(*Contents)
	if !ok {
		return fmt.Errorf("tskv: decode: state is %T, want *Contents", state)
	}

	read, err := Read(r, c.MultiKeys)
	if err != nil {
		return err
	}

	*contents = *read

	return nil
}

// Extension implements persist.Codec.
func (c *Codec) Extension() string {
	return c.FileExtension
}
