package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgill/sbackup/internal/compress"
	"github.com/spgill/sbackup/internal/config"
	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
	"github.com/spgill/sbackup/internal/restic"
)

const (
	testSnapshotJSON = `[{"id":"f00dbeef1234","short_id":"f00dbeef",` +
		`"time":"2024-03-01T10:15:30.123456789Z","hostname":"dbhost","paths":["/"]}]`
	testStatsJSON = `{"total_size": 1048576}`
)

// queryExecutor answers the snapshot metadata queries and records every
// command it is asked to run.
type queryExecutor struct {
	calls [][]string
}

func (e *queryExecutor) Output(_ context.Context, _ []string, name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	e.calls = append(e.calls, call)
	for _, arg := range args {
		switch arg {
		case "snapshots":
			return []byte(testSnapshotJSON), nil
		case "stats":
			return []byte(testStatsJSON), nil
		}
	}
	return nil, nil
}

func (e *queryExecutor) sawSubcommand(sub string) bool {
	for _, call := range e.calls {
		for _, arg := range call {
			if arg == sub {
				return true
			}
		}
	}
	return false
}

func testManager(t *testing.T) (*Manager, *queryExecutor, string) {
	t.Helper()
	dir := t.TempDir()

	passwordFile := filepath.Join(dir, "repo.key")
	require.NoError(t, os.WriteFile(passwordFile, []byte("repo secret\n"), 0600))

	cfg := &config.Config{
		V: config.CurrentVersion,
		Locations: map[string]config.Location{
			"local": {Path: filepath.Join(dir, "repo"), PasswordFile: passwordFile},
		},
		Policies: map[string]config.Policy{
			"standard": {Location: "local"},
		},
		Profiles: map[string]config.Profile{
			"db": {Policy: "standard"},
		},
	}

	var logBuf bytes.Buffer
	log := logger.New(logger.Config{Writer: &logBuf, NoColor: true})
	m := NewManager(cfg, log)

	exec := &queryExecutor{}
	m.client = restic.NewClientWithExecutor(exec)
	m.diskFree = func(string) (uint64, error) { return 1 << 40, nil }
	m.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	return m, exec, dir
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)

	assert.Equal(t, "db_20240301101530_f00dbeef.tar.zst",
		FileName("db", ts, "f00dbeef", compress.Zstd, false))
	assert.Equal(t, "db_20240301101530_f00dbeef.tar.zst.aes",
		FileName("db", ts, "f00dbeef", compress.Zstd, true))
	assert.Equal(t, "db_20240301101530_f00dbeef.tar.lz4",
		FileName("db", ts, "f00dbeef", compress.Lz4, false))
	assert.Equal(t, "db_20240301101530_f00dbeef.tar.gz",
		FileName("db", ts, "f00dbeef", compress.Gzip, false))
}

func TestRun_RefusesToOverwriteExistingArchive(t *testing.T) {
	m, exec, dir := testManager(t)

	dest := filepath.Join(dir, "archives")
	require.NoError(t, os.MkdirAll(dest, 0700))
	existing := filepath.Join(dest, "db_20240301101530_f00dbeef.tar.zst")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0600))

	err := m.Run(context.Background(), Options{
		Destination: dest,
		Profile:     "db",
		Snapshots:   []string{"latest"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeResource))
	assert.Contains(t, err.Error(), "already exists")

	// The collision is detected before anything is dumped, so the
	// existing file is untouched.
	assert.False(t, exec.sawSubcommand("dump"))
	content, readErr := os.ReadFile(existing)
	require.NoError(t, readErr)
	assert.Equal(t, "old", string(content))
}

func TestRun_InsufficientSpaceNamesShortfall(t *testing.T) {
	m, exec, dir := testManager(t)
	m.diskFree = func(string) (uint64, error) { return 1024, nil }

	dest := filepath.Join(dir, "archives")
	require.NoError(t, os.MkdirAll(dest, 0700))

	err := m.Run(context.Background(), Options{
		Destination: dest,
		Profile:     "db",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeResource))
	assert.Contains(t, err.Error(), "1.0 MiB")
	assert.Contains(t, err.Error(), "short by")
	assert.False(t, exec.sawSubcommand("dump"))
}

func TestRun_MissingDestinationDirectory(t *testing.T) {
	m, _, dir := testManager(t)

	err := m.Run(context.Background(), Options{
		Destination: filepath.Join(dir, "no-such-dir"),
		Profile:     "db",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeResource))
}

func TestRun_EncryptWithoutPassword(t *testing.T) {
	m, _, dir := testManager(t)

	dest := filepath.Join(dir, "archives")
	require.NoError(t, os.MkdirAll(dest, 0700))

	err := m.Run(context.Background(), Options{
		Destination: dest,
		Profile:     "db",
		Encrypt:     true,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeSecurity))
}

func TestRun_UnknownProfile(t *testing.T) {
	m, _, dir := testManager(t)

	err := m.Run(context.Background(), Options{
		Destination: dir,
		Profile:     "missing",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}

func TestExternalToolsAvailable(t *testing.T) {
	m, _, _ := testManager(t)

	assert.True(t, m.externalToolsAvailable(true, compress.Zstd))

	m.lookPath = func(name string) (string, error) {
		if name == "pv" {
			return "", os.ErrNotExist
		}
		return "/usr/bin/" + name, nil
	}
	assert.False(t, m.externalToolsAvailable(false, compress.Zstd))
}
