package apperrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	plain := New(TypeConfig, "no such profile", "check the config file")
	assert.Equal(t, "no such profile", plain.Error())

	wrapped := Wrap(fmt.Errorf("boom"), TypeExternal, "restic failed", "")
	assert.Equal(t, "restic failed: boom", wrapped.Error())
	assert.ErrorContains(t, wrapped, "boom")
}

func TestIsType(t *testing.T) {
	err := New(TypeNotFound, "missing", "")
	assert.True(t, IsType(err, TypeNotFound))
	assert.False(t, IsType(err, TypeConfig))

	chained := fmt.Errorf("outer: %w", err)
	assert.True(t, IsType(chained, TypeNotFound))

	assert.False(t, IsType(fmt.Errorf("plain"), TypeNotFound))
}

func TestExitCode(t *testing.T) {
	err := External("restic exited", 3)
	assert.Equal(t, 3, ExitCode(err, 1))
	assert.Equal(t, 3, err.Code)

	assert.Equal(t, 1, ExitCode(fmt.Errorf("plain"), 1))
	assert.Equal(t, 1, ExitCode(New(TypeConfig, "bad", ""), 1))
}
