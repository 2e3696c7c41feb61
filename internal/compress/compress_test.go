package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndExtension(t *testing.T) {
	algo, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Zstd, algo)

	algo, err = Parse("lz4")
	require.NoError(t, err)
	assert.Equal(t, ".lz4", Extension(algo))

	_, err = Parse("brotli")
	assert.Error(t, err)

	assert.Equal(t, ".zst", Extension(Zstd))
	assert.Equal(t, ".gz", Extension(Gzip))
}

func TestExternalCommands(t *testing.T) {
	name, args := ExternalCompress(Zstd)
	assert.Equal(t, "zstd", name)
	assert.Equal(t, []string{"-c", "-T8"}, args)

	name, args = ExternalDecompress(Zstd)
	assert.Equal(t, "zstd", name)
	assert.Equal(t, []string{"-dc", "-T8"}, args)

	name, _ = ExternalCompress(Gzip)
	assert.Equal(t, "gzip", name)
}

func TestRoundTripAndDetect(t *testing.T) {
	payload := bytes.Repeat([]byte("sbackup archive payload "), 512)

	for _, algo := range []Algorithm{Zstd, Lz4, Gzip} {
		var compressed bytes.Buffer
		w, err := NewWriter(&compressed, algo)
		require.NoError(t, err, algo)
		_, err = w.Write(payload)
		require.NoError(t, err, algo)
		require.NoError(t, w.Close(), algo)
		assert.Less(t, compressed.Len(), len(payload), algo)

		// Decompress with the format detected from the magic number
		// alone, the way the builtin decrypt path does.
		r, detected, err := DetectReader(bytes.NewReader(compressed.Bytes()))
		require.NoError(t, err, algo)
		assert.Equal(t, algo, detected)

		out, err := io.ReadAll(r)
		require.NoError(t, err, algo)
		require.NoError(t, r.Close(), algo)
		assert.Equal(t, payload, out, algo)
	}
}

func TestDetectReader_Unknown(t *testing.T) {
	_, _, err := DetectReader(bytes.NewReader([]byte("plain text, not compressed")))
	assert.Error(t, err)
}
