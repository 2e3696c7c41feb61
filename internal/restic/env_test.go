package restic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgill/sbackup/internal/config"
)

func TestExecutionEnv_Overlay(t *testing.T) {
	t.Setenv("SBACKUP_TEST_AMBIENT", "ambient")
	t.Setenv("SBACKUP_TEST_SHADOWED", "process")

	cfg := &config.Config{Locations: map[string]config.Location{
		"vault": {
			Path: "/srv/backup",
			Env: map[string]string{
				"SBACKUP_TEST_SHADOWED": "location",
				"AWS_ACCESS_KEY_ID":     "abc",
			},
		},
	}}
	b, _ := testBuilder(cfg)

	env, err := b.ExecutionEnv("vault")
	require.NoError(t, err)

	assert.Equal(t, "ambient", env["SBACKUP_TEST_AMBIENT"])
	assert.Equal(t, "location", env["SBACKUP_TEST_SHADOWED"])
	assert.Equal(t, "abc", env["AWS_ACCESS_KEY_ID"])
}

func TestExecutionEnv_CleanReplacesEverything(t *testing.T) {
	t.Setenv("SBACKUP_TEST_AMBIENT", "ambient")

	cfg := &config.Config{Locations: map[string]config.Location{
		"sealed": {
			Path:     "/srv/backup",
			Env:      map[string]string{"IGNORED": "yes"},
			CleanEnv: map[string]string{"ONLY": "this"},
		},
	}}
	b, _ := testBuilder(cfg)

	env, err := b.ExecutionEnv("sealed")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"ONLY": "this"}, env)
}

func TestMergeAndFlattenEnv(t *testing.T) {
	merged := MergeEnv(
		map[string]string{"A": "1", "B": "old"},
		map[string]string{"B": "new", "C": "3"},
	)
	assert.Equal(t, map[string]string{"A": "1", "B": "new", "C": "3"}, merged)

	flat := FlattenEnv(merged)
	assert.Equal(t, []string{"A=1", "B=new", "C=3"}, flat)
}
