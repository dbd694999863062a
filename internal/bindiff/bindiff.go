// Package bindiff wraps the bsdiff/bspatch binary delta algorithm behind a
// base/target naming convention: Encode(base, target) produces a patch such
// that Decode(base, patch) reconstructs target.
package bindiff

import (
	"bytes"
	"fmt"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
)

// Encode computes a binary patch that turns base into target. ok is false
// when base and target are byte-identical; patch is nil in that case and
// callers should skip storing a patch entirely.
func Encode(base, target []byte) (patch []byte, ok bool, err error) {
	if bytes.Equal(base, target) {
		return nil, false, nil
	}

	patch, err = bsdiff.Bytes(base, target)
	if err != nil {
		return nil, false, fmt.Errorf("bindiff: encode: %w", err)
	}

	return patch, true, nil
}

// Decode applies patch to base, reconstructing target.
func Decode(base, patch []byte) ([]byte, error) {
	target, err := bspatch.Bytes(base, patch)
	if err != nil {
		return nil, fmt.Errorf("bindiff: decode: %w", err)
	}

	return target, nil
}
