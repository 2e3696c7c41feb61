package compress

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	apperrors "github.com/spgill/sbackup/internal/errors"
)

type Algorithm string

const (
	Zstd Algorithm = "zstd"
	Lz4  Algorithm = "lz4"
	Gzip Algorithm = "gzip"
)

// Default is the archive compression used when the configuration does
// not choose one.
const Default = Zstd

// Parse normalizes a configured algorithm name.
func Parse(name string) (Algorithm, error) {
	switch name {
	case "", string(Zstd):
		return Zstd, nil
	case string(Lz4):
		return Lz4, nil
	case string(Gzip):
		return Gzip, nil
	default:
		return "", apperrors.Newf(apperrors.TypeValidation,
			"unsupported compression algorithm %q (want zstd, lz4 or gzip)", name)
	}
}

// Extension returns the file extension for an algorithm, dot included.
func Extension(algo Algorithm) string {
	switch algo {
	case Lz4:
		return ".lz4"
	case Gzip:
		return ".gz"
	default:
		return ".zst"
	}
}

// ExternalCompress returns the external streaming compressor command for
// the pipeline composer. The flags are a stable contract with each tool.
func ExternalCompress(algo Algorithm) (string, []string) {
	switch algo {
	case Lz4:
		return "lz4", []string{"-z", "-c"}
	case Gzip:
		return "gzip", []string{"-c"}
	default:
		return "zstd", []string{"-c", "-T8"}
	}
}

// ExternalDecompress returns the external streaming decompressor command.
func ExternalDecompress(algo Algorithm) (string, []string) {
	switch algo {
	case Lz4:
		return "lz4", []string{"-d", "-c"}
	case Gzip:
		return "gzip", []string{"-dc"}
	default:
		return "zstd", []string{"-dc", "-T8"}
	}
}

// NewWriter returns an in-process streaming compressor, used when the
// external binaries are unavailable. Output is byte-compatible with the
// corresponding external tool.
func NewWriter(w io.Writer, algo Algorithm) (io.WriteCloser, error) {
	switch algo {
	case Lz4:
		return lz4.NewWriter(w), nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	default:
		return nil, apperrors.Newf(apperrors.TypeValidation,
			"unsupported compression algorithm %q", algo)
	}
}

// NewReader returns an in-process streaming decompressor.
func NewReader(r io.Reader, algo Algorithm) (io.ReadCloser, error) {
	switch algo {
	case Lz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return gz, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, apperrors.Newf(apperrors.TypeValidation,
			"unsupported compression algorithm %q", algo)
	}
}

var magics = []struct {
	algo  Algorithm
	bytes []byte
}{
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{Lz4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{Gzip, []byte{0x1f, 0x8b}},
}

// DetectReader sniffs the stream's magic number and returns a
// decompressor for whichever supported algorithm produced it.
func DetectReader(r io.Reader) (io.ReadCloser, Algorithm, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && len(head) < 2 {
		return nil, "", apperrors.Wrap(err, apperrors.TypeValidation,
			"stream too short to detect compression format", "")
	}

	for _, m := range magics {
		if len(head) >= len(m.bytes) && bytes.Equal(head[:len(m.bytes)], m.bytes) {
			rc, err := NewReader(br, m.algo)
			return rc, m.algo, err
		}
	}
	return nil, "", apperrors.New(apperrors.TypeValidation,
		"unrecognized compression format",
		"expected a zstd, lz4 or gzip stream")
}
