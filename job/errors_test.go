package job

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessagePrefix(t *testing.T) {
	err := Errorf(KindFileNotFound, "/tmp/missing.m4a")
	assert.Equal(t, "file not found: /tmp/missing.m4a", err.Error())

	err = Errorf(KindCli, "worker exited with code 3")
	assert.Equal(t, "CLI execution failed: worker exited with code 3", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := os.ErrNotExist
	err := NewError(KindFileNotFound, "stat failed", cause)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestKindOf(t *testing.T) {
	err := Errorf(KindSystem, "out of memory")
	assert.Equal(t, KindSystem, KindOf(err))
	assert.True(t, IsKind(err, KindSystem))
	assert.False(t, IsKind(err, KindIo))

	// Kind survives wrapping.
	wrapped := fmt.Errorf("while launching: %w", err)
	assert.Equal(t, KindSystem, KindOf(wrapped))

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestErrorNilReceiver(t *testing.T) {
	var e *Error
	assert.Equal(t, "", e.Error())
	require.NoError(t, e.Unwrap())
}
