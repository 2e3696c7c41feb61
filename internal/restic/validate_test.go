package restic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgill/sbackup/internal/config"
	apperrors "github.com/spgill/sbackup/internal/errors"
)

func TestValidateTwoLocationOperation(t *testing.T) {
	cfg := &config.Config{Locations: map[string]config.Location{
		"a": {Path: "/srv/a", Env: map[string]string{"AWS_ACCESS_KEY_ID": "first"}},
		"b": {Path: "/srv/b", Env: map[string]string{"AWS_ACCESS_KEY_ID": "second"}},
		"c": {Path: "/srv/c", Env: map[string]string{"B2_ACCOUNT_ID": "third"}},
		"d": {
			Path:     "/srv/d",
			Env:      map[string]string{"AWS_ACCESS_KEY_ID": "shadowed"},
			CleanEnv: map[string]string{"B2_ACCOUNT_ID": "clean"},
		},
	}}
	b, _ := testBuilder(cfg)

	// Self-copy rejected.
	err := b.ValidateTwoLocationOperation("a", "a")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))

	// Colliding env keys rejected before any process is launched.
	err = b.ValidateTwoLocationOperation("a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_ACCESS_KEY_ID")

	// Disjoint keys are fine.
	assert.NoError(t, b.ValidateTwoLocationOperation("a", "c"))

	// clean_env fully replaces env when computing the effective set; d's
	// shadowed AWS key does not collide with a, but its clean B2 key
	// collides with c.
	assert.NoError(t, b.ValidateTwoLocationOperation("a", "d"))
	err = b.ValidateTwoLocationOperation("c", "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B2_ACCOUNT_ID")

	// Unknown names surface as not-found.
	err = b.ValidateTwoLocationOperation("a", "ghost")
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}
