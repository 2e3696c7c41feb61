package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
)

func testLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Config{Writer: buf, NoColor: true})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sbackup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_CreatesSkeleton(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "sbackup.yaml")

	cfg, err := Load(path, testLogger(&buf))
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, cfg.V)
	assert.Empty(t, cfg.Profiles)
	assert.Contains(t, buf.String(), "creating skeleton")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultSkeleton, string(data))
}

func TestLoad_FullDocument(t *testing.T) {
	var buf bytes.Buffer
	path := writeConfig(t, `
v: 1
cache: /var/cache/sbackup
locations:
  vault:
    path: s3:s3.amazonaws.com/bucket
    password_file: ~/.vault.pass
    env:
      AWS_ACCESS_KEY_ID: abc
policies:
  standard:
    location: [vault]
    schedule: "0 2 * * *"
    retention:
      keep_daily: 7
      keep_weekly: 4
profiles:
  home:
    policy: standard
    include: [/home]
    exclude: ["*.tmp"]
    groups:
      media:
        include: [/home/media]
`)

	cfg, err := Load(path, testLogger(&buf))
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/sbackup", cfg.Cache)
	assert.Equal(t, "s3:s3.amazonaws.com/bucket", cfg.Locations["vault"].Path)
	assert.Equal(t, "abc", cfg.Locations["vault"].Env["AWS_ACCESS_KEY_ID"])

	pol := cfg.Policies["standard"]
	locs, err := pol.Locations()
	require.NoError(t, err)
	assert.Equal(t, []string{"vault"}, locs)
	require.NotNil(t, pol.Retention)
	require.NotNil(t, pol.Retention.KeepDaily)
	assert.Equal(t, 7, *pol.Retention.KeepDaily)
	assert.Nil(t, pol.Retention.KeepLast)

	prof := cfg.Profiles["home"]
	assert.Equal(t, "standard", prof.Policy)
	assert.Equal(t, []string{"/home"}, prof.Include)
	assert.Contains(t, prof.Groups, "media")
}

func TestLoad_EnvKeysKeepTheirCase(t *testing.T) {
	var buf bytes.Buffer
	path := writeConfig(t, `
v: 1
locations:
  vault:
    path: s3:s3.amazonaws.com/bucket
    env:
      AWS_ACCESS_KEY_ID: abc
      AWS_SECRET_ACCESS_KEY: xyz
  stripped:
    path: b2:bucket
    clean_env:
      B2_ACCOUNT_ID: "123"
`)

	cfg, err := Load(path, testLogger(&buf))
	require.NoError(t, err)

	// Environment variable names are case-sensitive contracts with the
	// engine; a lowercased AWS_ACCESS_KEY_ID would never be read.
	assert.Equal(t, map[string]string{
		"AWS_ACCESS_KEY_ID":     "abc",
		"AWS_SECRET_ACCESS_KEY": "xyz",
	}, cfg.Locations["vault"].Env)
	assert.Equal(t, map[string]string{"B2_ACCOUNT_ID": "123"},
		cfg.Locations["stripped"].CleanEnv)
}

func TestLoad_StaleVersionWarnsOnly(t *testing.T) {
	var buf bytes.Buffer
	path := writeConfig(t, "v: 0\nprofiles: {}\n")

	_, err := Load(path, testLogger(&buf))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "may be incompatible")
}

func TestLoad_InvalidName(t *testing.T) {
	var buf bytes.Buffer
	path := writeConfig(t, `
v: 1
locations:
  "Bad Name!":
    path: /srv/backup
`)

	_, err := Load(path, testLogger(&buf))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
}

func TestValidate_NamePattern(t *testing.T) {
	ok := Config{
		Locations: map[string]Location{"local_1": {Path: "/srv"}},
		Policies:  map[string]Policy{"standard": {}},
		Profiles:  map[string]Profile{"home": {}},
	}
	assert.NoError(t, ok.Validate())

	bad := Config{Profiles: map[string]Profile{"Home-Dir": {}}}
	assert.Error(t, bad.Validate())

	tooLong := Config{Profiles: map[string]Profile{
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": {}, // 33 chars
	}}
	assert.Error(t, tooLong.Validate())
}

func TestAbsPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "exists.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	got, err := AbsPath(file, true)
	require.NoError(t, err)
	assert.Equal(t, file, got)

	_, err = AbsPath(filepath.Join(dir, "missing.txt"), true)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeResource))

	got, err = AbsPath(filepath.Join(dir, "missing.txt"), false)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}
