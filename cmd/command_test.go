package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `v: 1
locations:
  local:
    path: /srv/restic-repo
    password_command: "pass show restic"
    env:
      B2_ACCOUNT_ID: abc123
policies:
  standard:
    location: local
profiles:
  docs:
    policy: standard
    include:
      - /home/docs
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sbackup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0600))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandPrintsEngineInvocation(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := executeCommand(t, "--config", cfgPath, "command", "local")
	require.NoError(t, err)

	assert.Contains(t, out, "env B2_ACCOUNT_ID=abc123")
	assert.Contains(t, out, "restic")
	assert.Contains(t, out, "--repo /srv/restic-repo")
	assert.Contains(t, out, "--password-command")
	// Destination spellings only; this is not a two-repo operation.
	assert.NotContains(t, out, "--from-repo")
}

func TestCommandUnknownLocation(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := executeCommand(t, "--config", cfgPath, "command", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestListShowsConfiguredNames(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := executeCommand(t, "--config", cfgPath, "list")
	require.NoError(t, err)

	assert.Contains(t, out, "Locations:")
	assert.Contains(t, out, "- local")
	assert.Contains(t, out, "- standard")
	assert.Contains(t, out, "- docs")
}
