package restic

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spgill/sbackup/internal/errors"
)

type fakeExecutor struct {
	calls  [][]string
	output map[string]string // keyed by subcommand
}

func (f *fakeExecutor) Output(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	for sub, out := range f.output {
		for _, a := range args {
			if a == sub {
				return []byte(out), nil
			}
		}
	}
	return []byte("null"), nil
}

func TestLookupSnapshot(t *testing.T) {
	fake := &fakeExecutor{output: map[string]string{
		"snapshots": `[{"id":"f00dbeefcafe","short_id":"f00dbeef","time":"2024-03-01T10:15:30.123456789Z","hostname":"atlas","tags":["home"]}]`,
	}}
	c := NewClientWithExecutor(fake)

	snap, err := c.LookupSnapshot(context.Background(),
		[]string{"--no-cache", "--repo", "/srv/backup"}, nil, "latest")
	require.NoError(t, err)
	assert.Equal(t, "f00dbeef", snap.ShortID)
	assert.Equal(t, "atlas", snap.Hostname)

	parsed, err := snap.ParsedTime()
	require.NoError(t, err)
	assert.Equal(t, "20240301101530", parsed.Format("20060102150405"))

	// The query reuses the synthesized location args verbatim.
	require.Len(t, fake.calls, 1)
	call := strings.Join(fake.calls[0], " ")
	assert.Contains(t, call, "restic --no-cache --repo /srv/backup")
	assert.Contains(t, call, "snapshots latest --json")
}

func TestLookupSnapshot_NotFound(t *testing.T) {
	c := NewClientWithExecutor(&fakeExecutor{})
	_, err := c.LookupSnapshot(context.Background(), nil, nil, "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}

func TestSnapshotSize(t *testing.T) {
	fake := &fakeExecutor{output: map[string]string{
		"stats": `{"total_size":123456789,"total_file_count":42}`,
	}}
	c := NewClientWithExecutor(fake)

	size, err := c.SnapshotSize(context.Background(), nil, nil, "f00dbeef")
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), size)
}

func TestFixTimestamp(t *testing.T) {
	assert.Equal(t,
		"2024-03-01T10:15:30.123456Z",
		FixTimestamp("2024-03-01T10:15:30.123456789Z"))

	// Already short enough: unchanged.
	assert.Equal(t,
		"2024-03-01T10:15:30.123Z",
		FixTimestamp("2024-03-01T10:15:30.123Z"))

	// No fraction at all: unchanged.
	assert.Equal(t,
		"2024-03-01T10:15:30Z",
		FixTimestamp("2024-03-01T10:15:30Z"))
}

func TestSnapshotSavedPattern(t *testing.T) {
	out := "processed 1204 files\nsnapshot abc123 saved\n"
	m := SnapshotSavedPattern.FindStringSubmatch(out)
	require.Len(t, m, 2)
	assert.Equal(t, "abc123", m[1])
}
