// Package delta implements the binary delta codec between two
// snapshot byte blobs: a bsdiff-class patch, compressed with an
// LZMA-class coder, written atomically via temp-file-then-rename.
package delta

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
	"github.com/ulikunitz/xz"
)

// xzDictCap approximates an LZMA-class coder at compression level 6:
// the ulikunitz/xz package configures compression via dictionary
// capacity rather than a numbered preset, and 8 MiB sits in the range a
// level-6 xz preset would pick.
const xzDictCap = 8 << 20

// Kind distinguishes the category of delta codec failure, per the
// error taxonomy's IoError/CompressionFailed/DecompressionFailed/
// DeltaGenerationFailed/DeltaApplicationFailed split.
type Kind int

const (
	KindIO Kind = iota
	KindCompression
	KindDecompression
	KindPatchGeneration
	KindPatchApply
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCompression:
		return "compression"
	case KindDecompression:
		return "decompression"
	case KindPatchGeneration:
		return "patch_generation"
	case KindPatchApply:
		return "patch_apply"
	default:
		return "unknown"
	}
}

// Error reports a delta-codec failure tagged with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("delta: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Result reports the outcome of GenerateDelta.
type Result struct {
	Size         int64
	OriginalSize int64
	RatioPct     float64
}

// GenerateDelta computes a bsdiff patch from oldPath to newPath,
// compresses it with xz, and writes it atomically to deltaPath. The
// caller is responsible for special-casing the table's initial delta
// (index 0), which is stored as raw content rather than via this
// function — see internal/table.
func GenerateDelta(oldPath, newPath, deltaPath string) (Result, error) {
	oldBytes, err := os.ReadFile(oldPath)
	if err != nil {
		return Result{}, &Error{KindIO, err}
	}
	newBytes, err := os.ReadFile(newPath)
	if err != nil {
		return Result{}, &Error{KindIO, err}
	}

	patch, err := bsdiff.Bytes(oldBytes, newBytes)
	if err != nil {
		return Result{}, &Error{KindPatchGeneration, err}
	}

	var compressed bytes.Buffer
	cfg := xz.WriterConfig{DictCap: xzDictCap}
	w, err := cfg.NewWriter(&compressed)
	if err != nil {
		return Result{}, &Error{KindCompression, err}
	}
	if _, err := w.Write(patch); err != nil {
		w.Close()
		return Result{}, &Error{KindCompression, err}
	}
	if err := w.Close(); err != nil {
		return Result{}, &Error{KindCompression, err}
	}

	if err := writeAtomic(deltaPath, compressed.Bytes()); err != nil {
		return Result{}, &Error{KindIO, err}
	}

	originalSize := int64(len(newBytes))
	size := int64(compressed.Len())
	var ratio float64
	if originalSize > 0 {
		ratio = float64(size) / float64(originalSize) * 100
	}
	return Result{Size: size, OriginalSize: originalSize, RatioPct: ratio}, nil
}

// ApplyDelta reconstructs the new snapshot by patching oldPath with the
// delta at deltaPath, writing the result atomically to outPath.
func ApplyDelta(oldPath, deltaPath, outPath string) error {
	oldBytes, err := os.ReadFile(oldPath)
	if err != nil {
		return &Error{KindIO, err}
	}
	compressed, err := os.ReadFile(deltaPath)
	if err != nil {
		return &Error{KindIO, err}
	}

	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return &Error{KindDecompression, err}
	}
	patch, err := io.ReadAll(r)
	if err != nil {
		return &Error{KindDecompression, err}
	}

	newBytes, err := bspatch.Bytes(oldBytes, patch)
	if err != nil {
		return &Error{KindPatchApply, err}
	}

	if err := writeAtomic(outPath, newBytes); err != nil {
		return &Error{KindIO, err}
	}
	return nil
}

// writeAtomic writes data to a temp file in the same directory as path
// and renames it into place, so a crash never leaves a half-written
// file at path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
