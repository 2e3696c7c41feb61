package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameConfigFile(t *testing.T) {
	abs := "/etc/sbackup/sbackup.yaml"

	assert.True(t, sameConfigFile("/etc/sbackup/sbackup.yaml", abs))
	// Unclean event names still match.
	assert.True(t, sameConfigFile("/etc/sbackup/../sbackup/sbackup.yaml", abs))
	assert.False(t, sameConfigFile("/etc/sbackup/other.yaml", abs))

	// Relative event names resolve against the working directory.
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.True(t, sameConfigFile("sbackup.yaml", filepath.Join(wd, "sbackup.yaml")))
	assert.False(t, sameConfigFile("sbackup.yaml", "/elsewhere/sbackup.yaml"))
}
